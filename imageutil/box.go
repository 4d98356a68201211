package imageutil

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
)

// ErrInvalidRegion is returned when a box cannot be applied to an image.
var ErrInvalidRegion = errors.New("invalid region")

// Box is an axis-aligned rectangle in source pixel coordinates.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether the box has a positive area.
func (b Box) Valid() bool { return b.Width > 0 && b.Height > 0 }

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// String renders the box in the "x,y,w,h" form accepted by ParseBox.
func (b Box) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", b.X, b.Y, b.Width, b.Height)
}

// ParseBox parses "x,y,w,h". Whitespace around each field is ignored.
func ParseBox(s string) (Box, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Box{}, fmt.Errorf("parse box %q: want 4 comma-separated integers, got %d fields", s, len(parts))
	}
	var vals [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Box{}, fmt.Errorf("parse box %q: %w", s, err)
		}
		vals[i] = n
	}
	b := Box{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
	if !b.Valid() {
		return Box{}, fmt.Errorf("parse box %q: %w: width and height must be positive", s, ErrInvalidRegion)
	}
	return b, nil
}
