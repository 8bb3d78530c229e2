// Package githash provides the object identifier type used throughout the
// pack engine: a fixed-size SHA-1 hash that is totally ordered, hashable and
// cheap to copy.
package githash

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
)

// Constants for hash operations.
const (
	// Size is the size of a SHA-1 hash in bytes.
	Size = 20
	// HexSize is the size of a hex-encoded SHA-1 hash.
	HexSize = 40
)

// ErrInvalidHash indicates a string that is not a 40-character hex hash.
var ErrInvalidHash = errors.New("invalid object hash")

// Hash identifies an object by its SHA-1 digest.
type Hash [Size]byte

// Zero returns the all-zero hash.
func Zero() Hash {
	return Hash{}
}

// FromBytes copies the first Size bytes of raw into a Hash.
// raw must hold at least Size bytes.
func FromBytes(raw []byte) Hash {
	var h Hash

	copy(h[:], raw)

	return h
}

// Parse decodes a 40-character hex string into a Hash.
func Parse(hexStr string) (Hash, error) {
	var h Hash

	if len(hexStr) != HexSize {
		return h, fmt.Errorf("%w: %q has length %d, want %d", ErrInvalidHash, hexStr, len(hexStr), HexSize)
	}

	_, err := hex.Decode(h[:], []byte(hexStr))
	if err != nil {
		return h, fmt.Errorf("%w: %q: %v", ErrInvalidHash, hexStr, err)
	}

	return h, nil
}

// MustParse decodes a 40-character hex string, panicking on malformed input.
// Intended for tests and compile-time-known constants.
func MustParse(hexStr string) Hash {
	h, err := Parse(hexStr)
	if err != nil {
		panic(err)
	}

	return h
}

// String returns the hex representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the leading shortLen hex digits of the hash, for display.
func (h Hash) Short(shortLen int) string {
	s := h.String()
	if shortLen <= 0 || shortLen > len(s) {
		return s
	}

	return s[:shortLen]
}

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Compare orders hashes lexicographically: -1 if h < other, 0 if equal, 1 otherwise.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}
