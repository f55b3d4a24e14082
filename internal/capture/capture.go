// Package capture grabs visual evidence for recorded actions.
//
// Captures run fire-and-forget off the input pump; a failed or slow grab is
// a warning, never an error that blocks recording.
package capture

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/kbinani/screenshot"
)

// Capturer writes a screenshot to the given path.
type Capturer interface {
	Capture(path string) error
}

// Screen captures a region of a physical display.
type Screen struct {
	display int
	region  image.Rectangle // zero-sized means the whole display
}

// Options configures a screen capturer.
type Options struct {
	Display int
	X       int
	Y       int
	Width   int
	Height  int
}

// NewScreen creates a display capturer.
func NewScreen(opts Options) (*Screen, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays")
	}
	if opts.Display < 0 || opts.Display >= n {
		return nil, fmt.Errorf("display %d out of range (have %d)", opts.Display, n)
	}

	var region image.Rectangle
	if opts.Width > 0 && opts.Height > 0 {
		region = image.Rect(opts.X, opts.Y, opts.X+opts.Width, opts.Y+opts.Height)
	}
	return &Screen{display: opts.Display, region: region}, nil
}

// Capture grabs the configured region and writes it as PNG.
func (s *Screen) Capture(path string) error {
	bounds := screenshot.GetDisplayBounds(s.display)
	if !s.region.Empty() {
		bounds = s.region.Intersect(bounds)
		if bounds.Empty() {
			return fmt.Errorf("capture region lies outside display %d", s.display)
		}
	}

	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return fmt.Errorf("failed to capture display %d: %w", s.display, err)
	}
	return writePNG(path, img)
}

// Noop discards capture requests. Used when capture is disabled and in
// headless test environments.
type Noop struct{}

func (Noop) Capture(string) error { return nil }

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot folder: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create screenshot file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode screenshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
