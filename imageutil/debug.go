package imageutil

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// SaveDebug writes img to dir/label.png, creating dir if needed, and returns
// the written path.
func SaveDebug(img image.Image, dir, label string) (string, error) {
	// MkdirAll returns nil when another writer created dir first.
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}
	path := filepath.Join(dir, label+".png")
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("save debug image: %w", err)
	}
	return path, nil
}
