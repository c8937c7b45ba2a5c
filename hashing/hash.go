// Package hashing provides the H() content-hash function used for chunk
// naming, plaintext segment hashes, data-map hashing, and peer-identity
// derivation.
package hashing

import (
	"github.com/zeebo/blake3"

	"github.com/antstorage/ant/addr"
)

// H computes the BLAKE3-256 content hash of b as an Address.
func H(b []byte) addr.Address {
	sum := blake3.Sum256(b)
	var a addr.Address
	copy(a[:], sum[:])
	return a
}

// Hasher is a streaming BLAKE3 hasher for large inputs (e.g. a data map's
// serialized bytes) where materializing the full input before hashing
// would be wasteful.
type Hasher struct {
	h *blake3.Hasher
}

// NewHasher returns a new streaming hasher.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New()}
}

// Write implements io.Writer.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum returns the final Address.
func (h *Hasher) Sum() addr.Address {
	sum := h.h.Sum(nil)
	var a addr.Address
	copy(a[:], sum)
	return a
}
