package screensink

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gogpu/screensink/internal/dispatch"
	"github.com/gogpu/screensink/internal/imgbuf"
)

// Screen is sink_screen (spec.md §6): it validates configuration,
// creates a Render, wires RegionFill/MaskFill as pull-based providers on
// out/mask, installs close callbacks, and ensures the process-wide
// background dispatcher exists.
//
// mask may be nil (no coverage output). When present, the host is
// responsible for handing MaskFill a Region backed by an
// imgbuf.FormatGray8 buffer — screensink always writes 255/0
// coverage bytes there regardless of WithFormat, which only affects the
// main output's tile buffers.
func Screen(in Producer, out RegionSink, mask MaskSink, opts ...Option) (*Render, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.tileW <= 0 || cfg.tileH <= 0 {
		return nil, ErrInvalidTileSize
	}
	if cfg.maxTiles < Unlimited {
		return nil, ErrInvalidMaxTiles
	}
	if in == nil {
		return nil, ErrNilProducer
	}
	if out == nil {
		return nil, ErrNilOutput
	}

	logger := cfg.logger
	loggerFn := Logger
	if logger != nil {
		loggerFn = func() *slog.Logger { return logger }
	}

	registry, resched, err := dispatch.Start(loggerFn)
	if err != nil {
		return nil, fmt.Errorf("screensink: %w: %w", ErrDispatcherStart, err)
	}

	r := &Render{
		id:        uuid.New(),
		in:        in,
		out:       out,
		mask:      mask,
		tileW:     cfg.tileW,
		tileH:     cfg.tileH,
		maxTiles:  cfg.maxTiles,
		priority:  cfg.priority,
		notify:    cfg.notify,
		notifyArg: cfg.notifyArg,
		workers:   cfg.workers,
		format:    cfg.format,
		logger:    cfg.logger,
		registry:  registry,
		resched:   resched,
		pool:      imgbuf.NewPool(),
		tiles:     make(map[tileKey]*Tile),
		refCount:  1,
	}

	out.SetRegionFiller(r.RegionFill)
	out.SetCloseCallback(func() {
		resched.Set()
		r.unref()
	})

	if mask != nil {
		r.refCount = 2
		mask.SetRegionFiller(r.MaskFill)
		mask.SetCloseCallback(func() {
			resched.Set()
			r.unref()
		})
	}

	r.log().Debug("render created",
		"render", r.id.String(),
		"tile_w", r.tileW, "tile_h", r.tileH,
		"max_tiles", r.maxTiles, "priority", r.priority,
		"async", r.notify != nil,
	)

	return r, nil
}
