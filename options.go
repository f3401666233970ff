package screensink

import (
	"log/slog"
	"runtime"

	"github.com/gogpu/screensink/internal/imgbuf"
)

// Option configures a Render during Screen. Functional options, adapted
// from the teacher's ContextOption/defaultOptions pattern (options.go).
type Option func(*config)

type config struct {
	tileW, tileH int
	maxTiles     int
	priority     int
	notify       NotifyFunc
	notifyArg    any
	workers      int
	logger       *slog.Logger
	format       imgbuf.Format
}

func defaultConfig() config {
	return config{
		tileW:    64,
		tileH:    64,
		maxTiles: Unlimited,
		priority: 0,
		workers:  runtime.GOMAXPROCS(0),
		format:   imgbuf.FormatRGBA8,
	}
}

// WithTileSize sets tile_w and tile_h. Both must be positive (spec.md §6);
// Screen validates this and returns ErrInvalidTileSize otherwise.
func WithTileSize(w, h int) Option {
	return func(c *config) {
		c.tileW, c.tileH = w, h
	}
}

// WithMaxTiles sets max_tiles. Pass Unlimited (-1) for no cap.
func WithMaxTiles(n int) Option {
	return func(c *config) {
		c.maxTiles = n
	}
}

// WithPriority sets the Render's fixed scheduling priority (larger =
// sooner, spec.md §3). Consulted only at registry-enqueue time.
func WithPriority(p int) Option {
	return func(c *config) {
		c.priority = p
	}
}

// WithNotify installs the paint-completion callback and its opaque
// argument. Setting a non-nil Notify is what puts the Render into async
// mode (spec.md §4.1); omitting it keeps fills synchronous.
func WithNotify(fn NotifyFunc, a any) Option {
	return func(c *config) {
		c.notify = fn
		c.notifyArg = a
	}
}

// WithWorkers bounds the number of goroutines a single dispatch round
// runs concurrently over one Render's dirty tiles. Defaults to
// runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger scopes a logger to this Render's log lines, overriding the
// package-level logger set via SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithFormat sets the pixel format tile buffers are allocated in. The
// main output format defaults to FormatRGBA8. The mask output is not
// affected by this option: MaskFill always writes one FormatGray8 byte
// per pixel into the buffer the host supplies.
func WithFormat(f imgbuf.Format) Option {
	return func(c *config) {
		c.format = f
	}
}
