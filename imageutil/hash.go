package imageutil

import (
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"github.com/corona10/goimagehash"
)

// Hash is a 64-bit perceptual hash of an image.
type Hash uint64

// String renders the hash as fixed-width hex.
func (h Hash) String() string { return fmt.Sprintf("%016x", uint64(h)) }

// ParseHash is the inverse of Hash.String.
func ParseHash(s string) (Hash, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hash %q: %w", s, err)
	}
	return Hash(v), nil
}

// ComputeHash returns the pHash of img. Identical pixel content always yields
// the same hash.
func ComputeHash(img image.Image) (Hash, error) {
	if img == nil {
		return 0, fmt.Errorf("compute hash: nil image")
	}
	ph, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("compute hash: %w", err)
	}
	return Hash(ph.GetHash()), nil
}

// HammingDistance counts the differing bits between a and b.
func HammingDistance(a, b Hash) int {
	return bits.OnesCount64(uint64(a ^ b))
}
