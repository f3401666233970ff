package imgbuf

import "sync"

// Pool provides efficient reuse of Buffer allocations via sync.Pool, keyed
// by (format, width, height). Adapted from the teacher's
// internal/parallel/tile_pool.go sync.Pool-per-size scheme. A Render draws
// each new Tile's buffer from its Pool; a relocated Tile keeps its buffer
// and resizes it in place via Rebind, so relocation never returns a buffer
// to the pool.
//
// Pool is safe for concurrent use.
type Pool struct {
	pools sync.Map // key -> *sync.Pool
}

type poolKey struct {
	format Format
	width  int
	height int
}

// NewPool creates an empty buffer pool.
func NewPool() *Pool {
	return &Pool{}
}

// Get returns a Buffer of the given format/dimensions, reusing a pooled
// allocation if one of that exact size is available.
func (p *Pool) Get(width, height int, format Format) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if !format.IsValid() {
		return nil, ErrInvalidFormat
	}

	key := poolKey{format: format, width: width, height: height}
	sp := p.getOrCreate(key)

	b := sp.Get().(*Buffer)
	b.Clear()
	return b, nil
}

// Put returns a Buffer to the pool for reuse. The buffer's data is left
// as-is; the next Get clears it. If buf is nil, this is a no-op.
func (p *Pool) Put(buf *Buffer) {
	if buf == nil {
		return
	}
	key := poolKey{format: buf.format, width: buf.width, height: buf.height}
	if sp, ok := p.pools.Load(key); ok {
		sp.(*sync.Pool).Put(buf)
	}
	// If no pool exists for this size yet, let GC reclaim the buffer.
}

func (p *Pool) getOrCreate(key poolKey) *sync.Pool {
	if sp, ok := p.pools.Load(key); ok {
		return sp.(*sync.Pool)
	}
	sp := &sync.Pool{
		New: func() any {
			return &Buffer{
				data:   make([]byte, key.format.RowBytes(key.width)*key.height),
				width:  key.width,
				height: key.height,
				format: key.format,
			}
		},
	}
	actual, _ := p.pools.LoadOrStore(key, sp)
	return actual.(*sync.Pool)
}
