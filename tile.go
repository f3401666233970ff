package screensink

import "github.com/gogpu/screensink/internal/imgbuf"

// tileKey is the (left, top) position key used by Render.tiles (spec.md
// §3: "hash combines left/width and top/height"). Since our keyspace is
// already floor-aligned before lookup, a plain struct key off of the Go
// map's built-in hashing does the same job without hand-rolling one.
type tileKey struct{ left, top int }

func keyOf(area Rect) tileKey { return tileKey{left: area.X, top: area.Y} }

// Tile is a fixed-size rectangular cache entry (spec.md §3).
//
// Tile embeds its own dirty-list linkage (prev/next) rather than being
// wrapped in a separate list node, adapting the teacher's intrusive
// doubly-linked list (internal/cache/lru.go's lruList[K]) directly onto
// the cached object instead of onto a key — the Tile already carries
// its own identity, so no separate node/key indirection is needed.
type Tile struct {
	area    Rect
	painted bool
	buffer  *imgbuf.Buffer
	ticks   uint64

	// dirty-list linkage; both nil/unset when the tile is not in dirty.
	prev, next *Tile
	inDirty    bool
}

// Area returns the tile's current unclipped rectangle.
func (t *Tile) Area() Rect { return t.area }

// Painted reports whether the buffer holds valid pixels for Area().
func (t *Tile) Painted() bool { return t.painted && !t.buffer.Invalid() }

// Buffer returns the tile's pixel buffer.
func (t *Tile) Buffer() *imgbuf.Buffer { return t.buffer }

// dirtyList is Render.dirty: an ordered sequence of unpainted tiles,
// most-recently-queued first (spec.md §3). Adapted from
// internal/cache/lru.go's lruList, generalized to splice *Tile nodes
// directly instead of wrapping keys.
type dirtyList struct {
	head, tail *Tile
	len        int
}

func (l *dirtyList) Len() int { return l.len }

// PushFront inserts t at the head (most-recently-queued).
func (l *dirtyList) PushFront(t *Tile) {
	if t.inDirty {
		return
	}
	t.prev, t.next = nil, l.head
	if l.head != nil {
		l.head.prev = t
	} else {
		l.tail = t
	}
	l.head = t
	t.inDirty = true
	l.len++
}

// MoveToFront bumps t to the head if it is already present. Per
// spec.md §9's preserved behavior, a tile that is dirty but not
// currently in the list (e.g. popped by the dispatcher and mid-compute)
// is left alone — callers must not PushFront here "to fix it", since
// that would double-queue against spec.md's stated semantics.
func (l *dirtyList) MoveToFront(t *Tile) {
	if !t.inDirty || t == l.head {
		return
	}
	l.unlink(t)
	t.prev, t.next = nil, l.head
	if l.head != nil {
		l.head.prev = t
	}
	l.head = t
	if l.tail == nil {
		l.tail = t
	}
	t.inDirty = true
	l.len++
}

// PopFront removes and returns the head (most-recently-queued tile),
// used by the dispatch allocate step (spec.md §4.6 "pop the head of
// render.dirty").
func (l *dirtyList) PopFront() *Tile {
	if l.head == nil {
		return nil
	}
	t := l.head
	l.unlink(t)
	return t
}

// Remove unlinks t if present.
func (l *dirtyList) Remove(t *Tile) {
	if !t.inDirty {
		return
	}
	l.unlink(t)
}

// RemoveOldest removes and returns the tail (oldest pending tile),
// used by tile_request's evict-dirty step (spec.md §4.2 step 4 — "the
// tail of dirty is chosen... the head is most-recently-requested").
func (l *dirtyList) RemoveOldest() *Tile {
	if l.tail == nil {
		return nil
	}
	t := l.tail
	l.unlink(t)
	return t
}

func (l *dirtyList) unlink(t *Tile) {
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		l.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	} else {
		l.tail = t.prev
	}
	t.prev, t.next = nil, nil
	t.inDirty = false
	l.len--
}
