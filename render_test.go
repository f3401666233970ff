package screensink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/gogpu/screensink/internal/dispatch"
	"github.com/gogpu/screensink/internal/imgbuf"
)

// --- shared test doubles ---

// stampProducer fills every pixel with a fixed byte and counts calls.
type stampProducer struct {
	mu    sync.Mutex
	calls int
	value byte
	fail  bool
}

func (p *stampProducer) Compute(_ context.Context, buf *imgbuf.Buffer, _ Rect) error {
	p.mu.Lock()
	p.calls++
	fail := p.fail
	v := p.value
	p.mu.Unlock()
	if fail {
		return errors.New("stampProducer: compute failed")
	}
	data := buf.Data()
	for i := range data {
		data[i] = v
	}
	return nil
}

func (p *stampProducer) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeSink is a minimal RegionSink/MaskSink test double.
type fakeSink struct {
	mu      sync.Mutex
	filler  func(Region) error
	closeCB func()
}

func (s *fakeSink) SetRegionFiller(fn func(Region) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filler = fn
}

func (s *fakeSink) SetCloseCallback(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCB = fn
}

func (s *fakeSink) fill(region Region) error {
	s.mu.Lock()
	fn := s.filler
	s.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(region)
}

func (s *fakeSink) close() {
	s.mu.Lock()
	cb := s.closeCB
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func newGrayBuffer(w, h int) (*imgbuf.Buffer, error) {
	return imgbuf.New(w, h, imgbuf.FormatGray8)
}

// newTestRender builds a *Render with its own private registry that
// nothing drains, so request/queue/touch can be exercised deterministically
// without racing a live dispatcher goroutine.
func newTestRender(priority, maxTiles int, async bool) *Render {
	resched := &dispatch.Reschedule{}
	registry := dispatch.NewRegistry(resched)
	r := &Render{
		id:       uuid.New(),
		in:       &stampProducer{value: 0xAB},
		out:      &fakeSink{},
		tileW:    64,
		tileH:    64,
		maxTiles: maxTiles,
		priority: priority,
		workers:  2,
		format:   imgbuf.FormatRGBA8,
		registry: registry,
		resched:  resched,
		pool:     imgbuf.NewPool(),
		tiles:    make(map[tileKey]*Tile),
		refCount: 1,
	}
	if async {
		r.notify = func(RegionSink, Rect, any) {}
	}
	return r
}

// --- tile_request / tile_queue scenarios (spec.md §8 scenarios 1, 3, 5) ---

func TestRequestGrowAsyncQueuesDirtyAndRegistry(t *testing.T) {
	r := newTestRender(0, 4, true)

	r.lock.Lock()
	tile, queued := r.request(Rect{X: 0, Y: 0, Width: 64, Height: 64})
	r.lock.Unlock()
	if queued {
		r.registry.Put(r)
	}

	if tile == nil {
		t.Fatal("request returned nil")
	}
	if len(r.all) != 1 {
		t.Fatalf("ntiles = %d, want 1", len(r.all))
	}
	if r.dirty.Len() != 1 {
		t.Fatalf("dirty len = %d, want 1", r.dirty.Len())
	}
	if tile.painted {
		t.Error("a freshly queued async tile should not be painted yet")
	}
	if r.registry.Len() != 1 {
		t.Fatalf("registry len = %d, want 1 (Render should be enqueued)", r.registry.Len())
	}
}

func TestRequestSyncModePaintsInline(t *testing.T) {
	r := newTestRender(0, 4, false)

	r.lock.Lock()
	tile, queued := r.request(Rect{X: 0, Y: 0, Width: 64, Height: 64})
	r.lock.Unlock()
	if queued {
		t.Fatal("sync mode should never report an async queue")
	}

	if tile == nil || !tile.painted {
		t.Fatal("sync mode should paint the tile inline")
	}
	if r.dirty.Len() != 0 {
		t.Fatalf("dirty len = %d, want 0 in sync mode", r.dirty.Len())
	}
	if r.registry.Len() != 0 {
		t.Fatalf("registry len = %d, want 0 in sync mode", r.registry.Len())
	}
}

func TestRequestEvictsLRUPainted(t *testing.T) {
	r := newTestRender(0, 2, false) // sync mode: every request paints immediately
	cells := []Rect{
		{X: 0, Y: 0, Width: 64, Height: 64},
		{X: 64, Y: 0, Width: 64, Height: 64},
		{X: 128, Y: 0, Width: 64, Height: 64},
		{X: 192, Y: 0, Width: 64, Height: 64},
	}

	r.lock.Lock()
	r.request(cells[0])
	r.request(cells[1])
	r.lock.Unlock()

	r.lock.Lock()
	r.request(cells[2]) // evicts cells[0], the LRU painted tile
	r.lock.Unlock()

	r.lock.Lock()
	_, has0 := r.tiles[keyOf(cells[0])]
	_, has1 := r.tiles[keyOf(cells[1])]
	_, has2 := r.tiles[keyOf(cells[2])]
	r.lock.Unlock()
	if has0 {
		t.Error("cells[0] should have been evicted")
	}
	if !has1 || !has2 {
		t.Error("cells[1] and cells[2] should remain cached")
	}

	r.lock.Lock()
	r.request(cells[3]) // evicts cells[1], now the LRU painted tile
	r.lock.Unlock()

	r.lock.Lock()
	defer r.lock.Unlock()
	_, has1b := r.tiles[keyOf(cells[1])]
	_, has2b := r.tiles[keyOf(cells[2])]
	_, has3b := r.tiles[keyOf(cells[3])]
	if has1b {
		t.Error("cells[1] should have been evicted")
	}
	if !has2b || !has3b {
		t.Error("cells[2] and cells[3] should remain cached")
	}
	if len(r.tiles) != 2 {
		t.Fatalf("final tiles count = %d, want 2", len(r.tiles))
	}
}

func TestRequestEvictsDirtyTailWhenNoPaintedTileExists(t *testing.T) {
	r := newTestRender(0, 1, true) // async: nothing drains dirty in this test

	r.lock.Lock()
	r.request(Rect{X: 0, Y: 0, Width: 64, Height: 64})
	r.request(Rect{X: 64, Y: 0, Width: 64, Height: 64}) // evicts & relocates the first tile
	r.lock.Unlock()

	r.lock.Lock()
	defer r.lock.Unlock()
	if len(r.tiles) != 1 {
		t.Fatalf("tiles count = %d, want 1 (max_tiles=1)", len(r.tiles))
	}
	if _, ok := r.tiles[keyOf(Rect{X: 64, Y: 0, Width: 64, Height: 64})]; !ok {
		t.Error("the surviving tile should have relocated to (64,0)")
	}
	if len(r.all) != 1 {
		t.Fatalf("all count = %d, want 1 (relocation reuses the existing Tile)", len(r.all))
	}
}

func TestRequestHitReturnsSameTileWithoutGrowing(t *testing.T) {
	r := newTestRender(0, 4, false)
	area := Rect{X: 0, Y: 0, Width: 64, Height: 64}

	r.lock.Lock()
	first, _ := r.request(area)
	second, _ := r.request(area)
	r.lock.Unlock()

	if first != second {
		t.Fatal("repeated requests for the same area should return the same Tile")
	}
	if len(r.all) != 1 {
		t.Fatalf("ntiles = %d, want 1 (hit must not grow)", len(r.all))
	}
}

func TestRequestFailsWhenPoolAllocationFails(t *testing.T) {
	r := newTestRender(0, 4, false)

	r.lock.Lock()
	defer r.lock.Unlock()
	tile, _ := r.request(Rect{X: 0, Y: 0, Width: 0, Height: 0}) // invalid dimensions
	if tile != nil {
		t.Fatal("request should fail (return nil) for an invalid area rather than panic")
	}
}

// --- RegionFill / MaskFill (spec.md §4.3, §4.4, §8 laws) ---

func TestRegionFillZeroFillsUnpaintedArea(t *testing.T) {
	r := newTestRender(0, 4, true) // async: freshly requested tiles stay unpainted
	out, err := imgbuf.New(32, 32, imgbuf.FormatRGBA8)
	if err != nil {
		t.Fatal(err)
	}
	for i := range out.Data() {
		out.Data()[i] = 0xFF // poison, so zero-fill is observable
	}

	if err := r.RegionFill(Region{Rect: Rect{X: 0, Y: 0, Width: 32, Height: 32}, Buffer: out}); err != nil {
		t.Fatalf("RegionFill error = %v", err)
	}
	for i, b := range out.Data() {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 (unpainted area must zero-fill)", i, b)
			break
		}
	}
}

func TestRegionFillCopiesPaintedPixels(t *testing.T) {
	r := newTestRender(0, 4, false) // sync: paints inline
	out, err := imgbuf.New(64, 64, imgbuf.FormatRGBA8)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.RegionFill(Region{Rect: Rect{X: 0, Y: 0, Width: 64, Height: 64}, Buffer: out}); err != nil {
		t.Fatalf("RegionFill error = %v", err)
	}
	for i, b := range out.Data() {
		if b != 0xAB {
			t.Fatalf("byte %d = %#x, want 0xab (painted tile contents)", i, b)
		}
	}
}

// TestIdempotentFill is spec.md §8's "idempotent fill" law: calling
// RegionFill twice in succession with no intervening upstream change
// yields identical pixels.
func TestIdempotentFill(t *testing.T) {
	r := newTestRender(0, 4, false)
	rect := Rect{X: 0, Y: 0, Width: 64, Height: 64}

	first, _ := imgbuf.New(64, 64, imgbuf.FormatRGBA8)
	second, _ := imgbuf.New(64, 64, imgbuf.FormatRGBA8)

	if err := r.RegionFill(Region{Rect: rect, Buffer: first}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegionFill(Region{Rect: rect, Buffer: second}); err != nil {
		t.Fatal(err)
	}
	if string(first.Data()) != string(second.Data()) {
		t.Fatal("two successive fills with no upstream change should be identical")
	}
}

func TestMaskFillNeverQueuesWork(t *testing.T) {
	r := newTestRender(0, 4, true)
	out, err := newGrayBuffer(64, 64)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.MaskFill(Region{Rect: Rect{X: 0, Y: 0, Width: 64, Height: 64}, Buffer: out}); err != nil {
		t.Fatalf("MaskFill error = %v", err)
	}
	r.lock.Lock()
	ntiles := len(r.all)
	r.lock.Unlock()
	if ntiles != 0 {
		t.Fatalf("ntiles = %d, want 0: MaskFill must be lookup-only and never allocate", ntiles)
	}
	for i, b := range out.Data() {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 (no tile exists yet)", i, b)
		}
	}
}

func TestMaskFillReportsCoverage(t *testing.T) {
	r := newTestRender(0, 4, false) // sync: request paints inline
	area := Rect{X: 0, Y: 0, Width: 64, Height: 64}

	r.lock.Lock()
	r.request(area)
	r.lock.Unlock()

	out, err := newGrayBuffer(64, 64)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.MaskFill(Region{Rect: area, Buffer: out}); err != nil {
		t.Fatalf("MaskFill error = %v", err)
	}
	for i, b := range out.Data() {
		if b != 255 {
			t.Fatalf("byte %d = %d, want 255 (painted tile)", i, b)
		}
	}
}

// --- reference counting (spec.md §4.7, §8 scenario 6) ---

func TestRefUnrefDestroysAtZero(t *testing.T) {
	r := newTestRender(0, 4, true)
	r.refCount = 2 // simulate a mask attached

	r.lock.Lock()
	_, queued := r.request(Rect{X: 0, Y: 0, Width: 64, Height: 64})
	r.lock.Unlock()
	if queued {
		r.registry.Put(r)
	}
	if r.registry.Len() != 1 {
		t.Fatalf("registry len = %d, want 1 before destruction", r.registry.Len())
	}

	r.unref() // output closes; worker still holds its ref conceptually via refCount=2
	r.lock.Lock()
	closed := r.closed
	r.lock.Unlock()
	if closed {
		t.Fatal("Render should not be destroyed while a second ref is outstanding")
	}

	r.unref() // second close (e.g. the dispatcher's UnrefDispatch)
	r.lock.Lock()
	closed = r.closed
	r.lock.Unlock()
	if !closed {
		t.Fatal("Render should be destroyed once refCount reaches 0")
	}
	if r.registry.Len() != 0 {
		t.Fatalf("registry len = %d, want 0 after destruction", r.registry.Len())
	}
}

// --- dispatch.Job wiring ---

func TestRunDispatchPaintsDirtyTilesAndClearsThem(t *testing.T) {
	r := newTestRender(0, 4, true)
	r.workers = 2

	r.lock.Lock()
	r.request(Rect{X: 0, Y: 0, Width: 64, Height: 64})
	r.request(Rect{X: 64, Y: 0, Width: 64, Height: 64})
	r.lock.Unlock()

	resched := &dispatch.Reschedule{}
	r.RunDispatch(context.Background(), resched)

	if r.HasPendingWork() {
		t.Fatal("RunDispatch should drain all dirty tiles when never preempted")
	}
	producer := r.in.(*stampProducer)
	if producer.callCount() != 2 {
		t.Fatalf("Compute called %d times, want 2", producer.callCount())
	}
}

func TestRunDispatchStopsWhenRescheduleRequested(t *testing.T) {
	r := newTestRender(0, 4, true)

	r.lock.Lock()
	r.request(Rect{X: 0, Y: 0, Width: 64, Height: 64})
	r.lock.Unlock()

	resched := &dispatch.Reschedule{}
	resched.Set() // already requested before RunDispatch starts

	r.RunDispatch(context.Background(), resched)

	if !r.HasPendingWork() {
		t.Fatal("RunDispatch should leave the tile dirty when reschedule was already requested")
	}
	producer := r.in.(*stampProducer)
	if producer.callCount() != 0 {
		t.Fatalf("Compute called %d times, want 0 (allocate should have stopped immediately)", producer.callCount())
	}
}

func TestWorkSwallowsComputeFailure(t *testing.T) {
	r := newTestRender(0, 4, true)
	r.in = &stampProducer{fail: true}

	r.lock.Lock()
	tile, _ := r.request(Rect{X: 0, Y: 0, Width: 64, Height: 64})
	r.lock.Unlock()

	r.work(context.Background(), tile)

	if tile.painted {
		t.Fatal("a failed Compute must not mark the tile painted")
	}
}

func TestUuidIdentityIsStable(t *testing.T) {
	r := newTestRender(0, 4, false)
	if r.ID() == uuid.Nil {
		t.Fatal("Render.ID() should never be the nil UUID")
	}
	if r.ID() != r.id {
		t.Fatal("ID() should expose the Render's own identity")
	}
}
