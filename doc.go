// Package screensink provides an asynchronous screen-sink tile cache.
//
// # Overview
//
// screensink sits between a slow pixel producer — an image pipeline whose
// per-pixel computation may be expensive — and one or more fast, pull-based
// consumers, typically an interactive viewer requesting sub-regions
// repeatedly. A consumer asks for a rectangular region; the cache returns
// whatever pixels it already has immediately and schedules any missing
// tiles for computation on a background worker. A companion coverage mask
// reports, per tile, whether the pixels currently visible through the main
// output are valid.
//
// # Quick Start
//
//	import "github.com/gogpu/screensink"
//
//	producer := myPipeline{} // implements screensink.Producer
//	out := newViewerOutput() // implements screensink.RegionSink
//	mask := newMaskOutput()  // implements screensink.MaskSink
//
//	r, err := screensink.Screen(producer, out, mask,
//	    screensink.WithTileSize(64, 64),
//	    screensink.WithMaxTiles(256),
//	    screensink.WithPriority(0),
//	    screensink.WithNotify(func(out screensink.RegionSink, area screensink.Rect, a any) {
//	        // marshal to the consumer thread; must not block or re-enter the cache
//	    }, nil),
//	)
//
// # Synchronous vs asynchronous mode
//
// When WithNotify is not set, the cache computes tiles synchronously
// inline with the fill call. Otherwise missing tiles are queued and
// painted by a single process-wide background dispatcher (see the
// internal/dispatch package), and Notify fires from a dispatch goroutine
// once a tile is painted.
//
// # Architecture
//
//   - Public API: Screen, Render, Tile, Producer, RegionSink, MaskSink
//   - internal/imgbuf: the pixel buffer backing each tile
//   - internal/dispatch: the process-wide dirty registry and the single
//     background dispatcher goroutine
//
// # Non-goals
//
// screensink does not guarantee that any requested pixel has been computed
// by the time a fill returns — fills are non-blocking, best-effort reads.
// It does not persist tile contents across process restarts, does not
// reorder or merge overlapping requests beyond the stated LRU/dirty policy,
// and is not a correctness layer: if the producer reports a tile invalid,
// screensink repaints it, but silent upstream changes are never detected.
package screensink
