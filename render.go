package screensink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/screensink/internal/dispatch"
	"github.com/gogpu/screensink/internal/imgbuf"
)

// Render is one cache instance: it owns its tiles, the position→tile
// index, the dirty list, configuration, a lock, and a reference count
// (spec.md §3 "Render").
type Render struct {
	// Configuration, immutable after Screen returns.
	id        uuid.UUID
	in        Producer
	out       RegionSink
	mask      MaskSink
	tileW     int
	tileH     int
	maxTiles  int
	priority  int
	notify    NotifyFunc
	notifyArg any
	workers   int
	format    imgbuf.Format
	logger    *slog.Logger

	registry *dispatch.Registry
	resched  *dispatch.Reschedule
	pool     *imgbuf.Pool

	// lock protects every field below (spec.md §3 "lock: coarse-grained
	// mutex protecting every field below").
	lock   sync.Mutex
	all    []*Tile
	tiles  map[tileKey]*Tile
	dirty  dirtyList
	ticks  uint64
	closed bool

	// refMu is deliberately distinct from lock: ref/unref must never
	// block behind a fill, and a fill must never block behind a close
	// racing on the other output (spec.md §5 lock-ordering rule).
	refMu    sync.Mutex
	refCount int
}

// ID returns this Render's identity, used only for log correlation — it
// plays no part in any invariant or equality check (spec.md §D.5).
func (r *Render) ID() uuid.UUID { return r.id }

func (r *Render) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return Logger()
}

// touch is tile_touch (spec.md §4.1). Caller must hold r.lock.
func (r *Render) touch(t *Tile) {
	t.ticks = r.ticks
	r.ticks++
	if !t.painted {
		r.dirty.MoveToFront(t)
	}
}

// queue is tile_queue (spec.md §4.1). Caller must hold r.lock. area must
// already be tile-aligned; the caller is responsible for having removed
// t's old tiles[] key first if this is a relocation. Returns true when
// the tile was pushed onto the async dirty queue, meaning the caller
// must enqueue r with the registry once r.lock is released (spec.md §5
// "No deadlock": render.lock is always dropped before registry_put).
func (r *Render) queue(t *Tile, area Rect) bool {
	t.painted = false
	t.area = area
	if err := t.buffer.Rebind(area.Width, area.Height); err != nil {
		// Spec.md §9: the source swallows a rebind failure with a print;
		// we log it instead and leave the tile painted=false with
		// whatever buffer it has. Callers tolerate this via the
		// zero-fill path in RegionFill/MaskFill.
		r.log().Warn("tile buffer rebind failed", slog.String("render", r.id.String()), slog.Any("error", err))
	}
	r.tiles[keyOf(area)] = t

	async := r.notify != nil
	if async {
		r.dirty.PushFront(t)
		return true
	}

	// Sync mode: paint inline, no notification.
	if err := r.in.Compute(context.Background(), t.buffer, t.area); err == nil {
		t.painted = true
	}
	return false
}

// request is tile_request (spec.md §4.2). Caller must hold r.lock. The
// second return reports whether the request queued async work, mirroring
// queue's own contract: the caller must call registry.Put(r) after
// releasing r.lock if it is true.
func (r *Render) request(area Rect) (*Tile, bool) {
	key := keyOf(area)

	// 1. Hit.
	if t, ok := r.tiles[key]; ok {
		var queued bool
		if !t.painted || t.buffer.Invalid() {
			queued = r.queue(t, area)
		}
		r.touch(t)
		return t, queued
	}

	// 2. Grow.
	if r.maxTiles == Unlimited || len(r.all) < r.maxTiles {
		buf, err := r.pool.Get(area.Width, area.Height, r.format)
		if err != nil {
			return nil, false
		}
		t := &Tile{area: area, buffer: buf}
		r.all = append(r.all, t)
		queued := r.queue(t, area)
		r.touch(t)
		return t, queued
	}

	// 3. Evict-painted: LRU among painted tiles.
	if t := r.lruPainted(); t != nil {
		delete(r.tiles, keyOf(t.area))
		queued := r.queue(t, area)
		r.touch(t)
		return t, queued
	}

	// 4. Evict-dirty: tail of dirty (oldest pending).
	if t := r.dirty.RemoveOldest(); t != nil {
		delete(r.tiles, keyOf(t.area))
		queued := r.queue(t, area)
		r.touch(t)
		return t, queued
	}

	// 5. Fail.
	return nil, false
}

// lruPainted scans r.all for the painted tile with the smallest ticks
// (spec.md §4.2 step 3, §9 "LRU scan cost" — O(n), acceptable at the
// small max_tiles this cache targets).
func (r *Render) lruPainted() *Tile {
	var best *Tile
	for _, t := range r.all {
		if !t.Painted() {
			continue
		}
		if best == nil || t.ticks < best.ticks {
			best = t
		}
	}
	return best
}

// RegionFill is region_fill (spec.md §4.3). registry.Put is deliberately
// called after r.lock is released, never while held, per spec.md §5's
// lock-ordering rule ("render.lock → release → registry_put").
func (r *Render) RegionFill(out Region) error {
	grid := out.Rect.AlignedGrid(r.tileW, r.tileH)

	r.lock.Lock()
	if r.closed {
		r.lock.Unlock()
		return ErrClosed
	}

	needsPut := false
	for _, cell := range grid {
		t, queued := r.request(cell)
		if queued {
			needsPut = true
		}
		visible := cell.Intersect(out.Rect)
		if visible.Empty() {
			continue
		}
		if t != nil && t.Painted() {
			origin := imgbuf.Point{X: visible.X - out.Rect.X, Y: visible.Y - out.Rect.Y}
			src := imgbuf.Rect{X: visible.X - cell.X, Y: visible.Y - cell.Y, Width: visible.Width, Height: visible.Height}
			imgbuf.CopyRect(out.Buffer, origin, t.buffer, src)
			continue
		}
		zero := imgbuf.Rect{X: visible.X - out.Rect.X, Y: visible.Y - out.Rect.Y, Width: visible.Width, Height: visible.Height}
		imgbuf.ZeroRect(out.Buffer, zero)
	}
	r.lock.Unlock()

	if needsPut {
		r.registry.Put(r)
	}
	return nil
}

// MaskFill is mask_fill (spec.md §4.4): lookup-only, never calls
// request, never queues work — observing coverage must not generate
// demand.
func (r *Render) MaskFill(out Region) error {
	grid := out.Rect.AlignedGrid(r.tileW, r.tileH)

	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closed {
		return ErrClosed
	}

	for _, cell := range grid {
		visible := cell.Intersect(out.Rect)
		if visible.Empty() {
			continue
		}
		local := imgbuf.Rect{X: visible.X - out.Rect.X, Y: visible.Y - out.Rect.Y, Width: visible.Width, Height: visible.Height}

		t, ok := r.tiles[keyOf(cell)]
		valid := ok && t.Painted()
		fillMaskRect(out.Buffer, local, valid)
	}
	return nil
}

// fillMaskRect writes 255 (valid) or 0 (not yet painted/invalidated)
// across rect of a FormatGray8 buffer (spec.md §6 "Mask bit format").
// Assumes one byte per pixel; neither Screen nor MaskFill sets or checks
// the mask buffer's format, so the host supplies a FormatGray8 buffer.
func fillMaskRect(buf *imgbuf.Buffer, rect Rect, valid bool) {
	var v byte
	if valid {
		v = 255
	}
	data := buf.Data()
	stride := buf.Stride()
	for y := 0; y < rect.Height; y++ {
		rowStart := (rect.Y+y)*stride + rect.X
		row := data[rowStart : rowStart+rect.Width]
		for i := range row {
			row[i] = v
		}
	}
}

// ref increments the reference count (spec.md §4.7 ref(r)).
func (r *Render) ref() {
	r.refMu.Lock()
	r.refCount++
	r.refMu.Unlock()
}

// unref decrements the reference count and destroys the Render if it
// reaches zero (spec.md §4.7 unref(r)).
func (r *Render) unref() {
	r.refMu.Lock()
	r.refCount--
	dead := r.refCount == 0
	r.refMu.Unlock()
	if dead {
		r.destroy()
	}
}

// destroy tears down tile storage and removes r from the registry
// (spec.md §4.7 "Destruction removes r from the registry... frees every
// Tile in all, frees the tiles mapping and dirty list").
func (r *Render) destroy() {
	r.lock.Lock()
	r.closed = true
	r.all = nil
	r.tiles = nil
	r.dirty = dirtyList{}
	r.lock.Unlock()

	r.registry.Remove(r)
	r.log().Debug("render destroyed", slog.String("render", r.id.String()))
}

// --- dispatch.Job implementation ---

// Priority implements dispatch.Job (spec.md §4.5: "fixed at creation").
func (r *Render) Priority() int { return r.priority }

// RefDispatch implements dispatch.Job.
func (r *Render) RefDispatch() { r.ref() }

// UnrefDispatch implements dispatch.Job.
func (r *Render) UnrefDispatch() { r.unref() }

// HasPendingWork implements dispatch.Job.
func (r *Render) HasPendingWork() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.dirty.Len() > 0
}

// RunDispatch implements dispatch.Job: one full background pass over
// this Render's dirty tiles (spec.md §4.6 step 3), using an errgroup
// whose SetLimit bounds concurrent work goroutines — the Go form of
// "run a worker pool over render.in with allocate/work callbacks".
func (r *Render) RunDispatch(ctx context.Context, resched *dispatch.Reschedule) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for {
		t, ok := r.allocate(resched)
		if !ok {
			break
		}
		g.Go(func() error {
			r.work(gctx, t)
			return nil
		})
	}
	_ = g.Wait()
}

// allocate is the worker pool's allocate callback (spec.md §4.6 step 3):
// under Render lock, stop if reschedule was requested or dirty is
// empty; otherwise pop the head of dirty.
func (r *Render) allocate(resched *dispatch.Reschedule) (*Tile, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closed || resched.Requested() || r.dirty.Len() == 0 {
		return nil, false
	}
	return r.dirty.PopFront(), true
}

// work is the worker pool's work callback (spec.md §4.6 step 3). It
// reads t.buffer/t.area without holding r.lock: spec.md §4.2's edge case
// and §9's third open question both document that a dirty tile can be
// evicted and relocated while a worker is mid-compute, and that the
// race is preserved rather than fixed. When Compute returns, the tile is
// marked painted only if its area is still the one computed; otherwise
// the result is discarded and the relocated tile stays dirty.
func (r *Render) work(ctx context.Context, t *Tile) {
	if t.Painted() {
		return
	}
	buf, area := t.buffer, t.area
	if err := r.in.Compute(ctx, buf, area); err != nil {
		r.log().Warn("compute failed", slog.String("render", r.id.String()), slog.Any("error", err))
		return
	}

	r.lock.Lock()
	if t.area != area {
		r.lock.Unlock()
		return
	}
	t.painted = true
	r.lock.Unlock()

	if r.notify != nil {
		r.notify(r.out, area, r.notifyArg)
	}
}
