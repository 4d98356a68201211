package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/onnwee/dialogue-tender/imageutil"
)

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFile_Capture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.png")
	png, err := imageutil.Encode(solid(color.White))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, png, 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := File{Path: path}.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if string(got) != string(png) {
		t.Error("png frame was not passed through unchanged")
	}
}

func TestFile_ReencodesJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(f, solid(color.Black), nil); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := File{Path: path}.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !isPNG(got) {
		t.Error("jpeg frame was not re-encoded as png")
	}
}

func TestFile_Missing(t *testing.T) {
	if _, err := (File{Path: filepath.Join(t.TempDir(), "nope.png")}).Capture(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestStatic(t *testing.T) {
	var s Static
	if _, err := s.Capture(context.Background()); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("Capture before Set err = %v", err)
	}
	if err := s.Set([]byte("garbage")); err == nil {
		t.Error("Set accepted garbage")
	}
	png, _ := imageutil.Encode(solid(color.White))
	if err := s.Set(png); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Capture(context.Background())
	if err != nil || string(got) != string(png) {
		t.Errorf("Capture = %d bytes, %v", len(got), err)
	}
}

func TestCapture_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (File{Path: "x"}).Capture(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("File err = %v", err)
	}
	if _, err := (Screen{}).Capture(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Screen err = %v", err)
	}
}
