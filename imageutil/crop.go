package imageutil

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Crop returns the part of img covered by box. A box that extends past the
// image edge is clamped to the image bounds; a box with no overlap at all, or
// with a non-positive size, yields ErrInvalidRegion.
func Crop(img image.Image, box Box) (image.Image, error) {
	if !box.Valid() {
		return nil, fmt.Errorf("crop %s: %w: non-positive size", box, ErrInvalidRegion)
	}
	r := box.Rect().Intersect(img.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("crop %s: %w: outside image bounds %v", box, ErrInvalidRegion, img.Bounds())
	}
	return imaging.Crop(img, r), nil
}

// Encode serializes img as PNG.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses PNG (or any format registered with image) bytes.
func Decode(b []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
