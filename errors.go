package screensink

import "errors"

// Package errors for screensink.
var (
	// ErrInvalidTileSize is returned when tile_w or tile_h is not positive.
	ErrInvalidTileSize = errors.New("screensink: tile width and height must be positive")

	// ErrInvalidMaxTiles is returned when max_tiles is less than -1.
	ErrInvalidMaxTiles = errors.New("screensink: max_tiles must be -1 (unlimited) or non-negative")

	// ErrNilProducer is returned when Screen is called without an upstream producer.
	ErrNilProducer = errors.New("screensink: nil producer")

	// ErrNilOutput is returned when Screen is called without a main output.
	ErrNilOutput = errors.New("screensink: nil output")

	// ErrDispatcherStart is returned when the process-wide background
	// dispatcher fails to start.
	ErrDispatcherStart = errors.New("screensink: failed to start background dispatcher")

	// ErrClosed is returned by fill calls made after the Render has been destroyed.
	ErrClosed = errors.New("screensink: render closed")
)
