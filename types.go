package screensink

import (
	"context"

	"github.com/gogpu/screensink/internal/imgbuf"
)

// Rect is an axis-aligned rectangle in the upstream producer's pixel
// coordinate space. This is spec.md's `area`: left, top, width, height.
type Rect = imgbuf.Rect

// Unlimited is the max_tiles sentinel meaning "no cap" (spec.md §3, §6).
const Unlimited = -1

// Region is what a consumer asks a fill callback to satisfy: a
// rectangle of producer-space pixels, and the destination buffer to
// write them into. Buffer's dimensions always equal Rect.Width x
// Rect.Height; Buffer's local (0,0) corresponds to (Rect.X, Rect.Y).
type Region struct {
	Rect   Rect
	Buffer *imgbuf.Buffer
}

// Producer is the upstream pixel-computation capability consumed by the
// cache (spec.md §6 "compute(buffer, area) -> ok|fail"). Compute must be
// safe to call concurrently from distinct pool goroutines, each with its
// own buffer, and must fill buf with the source image's pixels over area.
type Producer interface {
	Compute(ctx context.Context, buf *imgbuf.Buffer, area Rect) error
}

// RegionSink is a pull-based output: the host wires RegionFill (or
// MaskFill, for a MaskSink) as the handler it calls once per demanded
// rectangle, and registers the close notification.
type RegionSink interface {
	// SetRegionFiller installs the cache's fill callback. Called once
	// during Screen.
	SetRegionFiller(func(Region) error)

	// SetCloseCallback installs the callback the cache uses to learn
	// this output has closed (spec.md §4.7, fires exactly once).
	SetCloseCallback(func())
}

// MaskSink is the coverage output (spec.md §4.4, §6): same wiring shape
// as RegionSink, but receives 255/0 coverage bytes instead of pixels.
type MaskSink interface {
	RegionSink
}

// NotifyFunc is invoked from a dispatch goroutine whenever a tile
// transitions to painted (spec.md §6). It must be non-blocking, must
// not re-enter the cache, and must not hold any lock the consumer holds
// — the contract is the caller's responsibility to honor; screensink
// only guarantees it is never called while render.lock is held.
type NotifyFunc func(out RegionSink, area Rect, a any)
