// Command screensinkdemo drives screensink end-to-end against a
// synthetic producer, without needing a real image pipeline or
// windowing toolkit. Grounded on the teacher's cmd/ggdemo shape (parse
// flags, build a scene, save output), adapted to cobra per
// dshills-goflow's pkg/cli command style.
package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/cmplx"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogpu/screensink"
	"github.com/gogpu/screensink/internal/imgbuf"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "screensinkdemo:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		width, height int
		tileSize      int
		maxTiles      int
		outputPath    string
		computeDelay  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "screensinkdemo",
		Short: "Render a Mandelbrot view through a screensink cache and save it as PNG",
		Long: `screensinkdemo wires a synthetic per-pixel Mandelbrot generator into
screensink.Screen, requests the full canvas through RegionFill, waits for
the background dispatcher to paint every tile, prints per-tile paint
progress as tiles complete, and saves the result to a PNG file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), demoConfig{
				width:        width,
				height:       height,
				tileSize:     tileSize,
				maxTiles:     maxTiles,
				outputPath:   outputPath,
				computeDelay: computeDelay,
			})
		},
	}

	cmd.Flags().IntVar(&width, "width", 512, "canvas width in pixels")
	cmd.Flags().IntVar(&height, "height", 512, "canvas height in pixels")
	cmd.Flags().IntVar(&tileSize, "tile-size", 64, "tile width/height in pixels")
	cmd.Flags().IntVar(&maxTiles, "max-tiles", screensink.Unlimited, "cache capacity in tiles (-1 = unlimited)")
	cmd.Flags().StringVar(&outputPath, "out", "mandelbrot.png", "output PNG path")
	cmd.Flags().DurationVar(&computeDelay, "compute-delay", 20*time.Millisecond, "artificial per-tile compute latency")

	return cmd
}

type demoConfig struct {
	width, height int
	tileSize      int
	maxTiles      int
	outputPath    string
	computeDelay  time.Duration
}

func runDemo(ctx context.Context, cfg demoConfig) error {
	producer := &mandelbrotProducer{
		canvasW: cfg.width,
		canvasH: cfg.height,
		delay:   cfg.computeDelay,
	}

	out := newToySink(cfg.width, cfg.height, imgbuf.FormatRGBA8)
	mask := newToySink(cfg.width, cfg.height, imgbuf.FormatGray8)

	painted := make(chan screensink.Rect, 256)
	r, err := screensink.Screen(producer, out, mask,
		screensink.WithTileSize(cfg.tileSize, cfg.tileSize),
		screensink.WithMaxTiles(cfg.maxTiles),
		screensink.WithPriority(0),
		screensink.WithNotify(func(_ screensink.RegionSink, area screensink.Rect, _ any) {
			painted <- area
		}, nil),
	)
	if err != nil {
		return fmt.Errorf("screen: %w", err)
	}

	full := screensink.Rect{X: 0, Y: 0, Width: cfg.width, Height: cfg.height}
	if err := out.fill(full); err != nil {
		return fmt.Errorf("initial fill: %w", err)
	}

	total := len(full.AlignedGrid(cfg.tileSize, cfg.tileSize))
	fmt.Printf("requested %d tiles across a %dx%d canvas\n", total, cfg.width, cfg.height)

	done := 0
	for done < total {
		select {
		case area := <-painted:
			done++
			fmt.Printf("painted %d/%d: (%d,%d) %dx%d\n", done, total, area.X, area.Y, area.Width, area.Height)
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
			return fmt.Errorf("timed out waiting for %d/%d tiles", done, total)
		}
	}

	if err := out.fill(full); err != nil {
		return fmt.Errorf("final fill: %w", err)
	}
	if err := mask.fill(full); err != nil {
		return fmt.Errorf("mask fill: %w", err)
	}

	if err := savePNG(cfg.outputPath, out.toImage()); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	fmt.Println("wrote", cfg.outputPath)

	out.close()
	mask.close()
	_ = r
	return nil
}

// mandelbrotProducer computes escape-time Mandelbrot pixels, with an
// artificial delay so the async background dispatch is observable.
type mandelbrotProducer struct {
	canvasW, canvasH int
	delay            time.Duration
}

func (p *mandelbrotProducer) Compute(ctx context.Context, buf *imgbuf.Buffer, area screensink.Rect) error {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	stride := buf.Stride()
	data := buf.Data()
	for y := 0; y < area.Height; y++ {
		py := area.Y + y
		for x := 0; x < area.Width; x++ {
			px := area.X + x
			v := mandelbrotEscape(px, py, p.canvasW, p.canvasH)
			o := y*stride + x*4
			if o+4 > len(data) {
				continue
			}
			data[o], data[o+1], data[o+2], data[o+3] = v, v/2, 255-v, 255
		}
	}
	return nil
}

func mandelbrotEscape(px, py, w, h int) byte {
	const maxIter = 64
	re := (float64(px)/float64(w))*3.5 - 2.5
	im := (float64(py)/float64(h))*2.0 - 1.0
	c := complex(re, im)
	z := complex(0, 0)
	var i int
	for ; i < maxIter; i++ {
		if cmplx.Abs(z) > 2 {
			break
		}
		z = z*z + c
	}
	return byte(math.Round(255 * float64(i) / maxIter))
}

// toySink is a minimal in-process RegionSink/MaskSink: it stores the
// cache's fill callback and an owned backing image, and exposes fill()
// as a way for this demo to pull a region on demand.
type toySink struct {
	mu      sync.Mutex
	w, h    int
	format  imgbuf.Format
	filler  func(screensink.Region) error
	closeCB func()
	buf     *imgbuf.Buffer
}

func newToySink(w, h int, format imgbuf.Format) *toySink {
	buf, err := imgbuf.New(w, h, format)
	if err != nil {
		panic(err) // demo-only: w/h/format are caller-controlled constants
	}
	return &toySink{w: w, h: h, format: format, buf: buf}
}

func (s *toySink) SetRegionFiller(fn func(screensink.Region) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filler = fn
}

func (s *toySink) SetCloseCallback(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCB = fn
}

func (s *toySink) fill(rect screensink.Rect) error {
	s.mu.Lock()
	fn := s.filler
	s.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(screensink.Region{Rect: rect, Buffer: s.buf})
}

func (s *toySink) close() {
	s.mu.Lock()
	cb := s.closeCB
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (s *toySink) toImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, s.w, s.h))
	data := s.buf.Data()
	stride := s.buf.Stride()
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			o := y*stride + x*4
			img.Set(x, y, color.RGBA{R: data[o], G: data[o+1], B: data[o+2], A: data[o+3]})
		}
	}
	return img
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
