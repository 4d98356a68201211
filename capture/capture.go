// Package capture provides frame sources for the translation pipeline. A
// frame is a PNG of the current broadcast mix.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/kbinani/screenshot"

	"github.com/onnwee/dialogue-tender/imageutil"
)

// ErrNoDisplay is returned when the host reports no active display.
var ErrNoDisplay = errors.New("no active display")

// Screen captures a display (or a rectangle of the virtual screen) of the
// local machine.
type Screen struct {
	// Display is the index passed to screenshot.CaptureDisplay.
	Display int
	// Region, when non-empty, is captured instead of the whole display.
	Region image.Rectangle
}

// Capture grabs the screen and encodes it as PNG.
func (s Screen) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		img *image.RGBA
		err error
	)
	if !s.Region.Empty() {
		img, err = screenshot.CaptureRect(s.Region)
	} else {
		n := screenshot.NumActiveDisplays()
		if n == 0 {
			return nil, ErrNoDisplay
		}
		if s.Display < 0 || s.Display >= n {
			return nil, fmt.Errorf("display %d out of range (have %d)", s.Display, n)
		}
		img, err = screenshot.CaptureDisplay(s.Display)
	}
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	return imageutil.Encode(img)
}

// File re-reads an image from disk on every capture, so an external process
// (or a test) can swap the frame underneath the pipeline.
type File struct {
	Path string
}

// Capture reads the file and re-encodes it as PNG when it is not one already.
func (f File) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if isPNG(b) {
		return b, nil
	}
	img, err := imageutil.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", f.Path, err)
	}
	return imageutil.Encode(img)
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func isPNG(b []byte) bool {
	return len(b) >= len(pngMagic) && string(b[:len(pngMagic)]) == string(pngMagic)
}

// Static serves a fixed frame that can be replaced at runtime. It backs the
// push endpoint, where an external capturer posts frames to the service.
type Static struct {
	mu    sync.RWMutex
	frame []byte
}

// ErrNoFrame is returned by Static before the first Set.
var ErrNoFrame = errors.New("no frame available")

// Set replaces the served frame. The bytes must be a decodable image.
func (s *Static) Set(b []byte) error {
	img, err := imageutil.Decode(b)
	if err != nil {
		return err
	}
	if !isPNG(b) {
		if b, err = imageutil.Encode(img); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.frame = b
	s.mu.Unlock()
	return nil
}

// Capture returns the last frame passed to Set.
func (s *Static) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return nil, ErrNoFrame
	}
	return s.frame, nil
}
