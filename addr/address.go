// Package addr implements the 256-bit XOR-metric address space that every
// entity in the network — peers, chunks, graph entries, pointers, and
// scratchpads — is identified by.
package addr

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/luxfi/ids"
)

// Size is the width of an Address in bytes (256 bits).
const Size = 32

// ErrWrongLength is returned when decoding bytes of the wrong length.
var ErrWrongLength = errors.New("addr: wrong length, want 32 bytes")

// Address is an opaque 256-bit identifier in the XOR-metric name space.
type Address [Size]byte

// FromBytes copies b into a new Address. len(b) must be Size.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != Size {
		return a, ErrWrongLength
	}
	copy(a[:], b)
	return a, nil
}

// FromHex parses a hex-encoded address, as used for record-store file names.
func FromHex(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, err
	}
	return FromBytes(b)
}

// Hex returns the lowercase hex encoding of a, used as the record store's
// on-disk file name.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

// Bytes returns a copy of the address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, a[:])
	return out
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// ID returns the address as an ids.ID, the key type the index database
// and test helpers work in.
func (a Address) ID() ids.ID {
	return ids.ID(a)
}

// FromID converts an ids.ID back into an Address.
func FromID(id ids.ID) Address {
	return Address(id)
}

// Distance is the XOR distance between two addresses, interpreted as a
// big-endian unsigned integer for ordering purposes.
type Distance [Size]byte

// Dist computes d(a, b) = a XOR b.
func Dist(a, b Address) Distance {
	var d Distance
	for i := 0; i < Size; i++ {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// Cmp compares two distances as big-endian unsigned integers: -1, 0, or 1.
func (d Distance) Cmp(other Distance) int {
	return bytes.Compare(d[:], other[:])
}

// IsZero reports whether the distance is zero, i.e. the two addresses are equal.
func (d Distance) IsZero() bool {
	return d == Distance{}
}

// BigInt returns the distance as a big.Int for arithmetic such as the
// density-derived responsibility-distance floor.
func (d Distance) BigInt() *big.Int {
	return new(big.Int).SetBytes(d[:])
}

// LeadingZeros returns the number of leading zero bits in the distance,
// used to compute a Kademlia bucket index.
func (d Distance) LeadingZeros() int {
	for i := 0; i < Size; i++ {
		if d[i] == 0 {
			continue
		}
		// Count leading zero bits within this non-zero byte.
		b := d[i]
		n := 0
		for mask := byte(0x80); mask > 0 && b&mask == 0; mask >>= 1 {
			n++
		}
		return i*8 + n
	}
	return Size * 8
}

// BucketIndex returns 255 - leading_zeros(d(self, other)), clamped to
// [0, 255]. Returns -1 when self == other, which has no bucket.
func BucketIndex(self, other Address) int {
	if self == other {
		return -1
	}
	d := Dist(self, other)
	idx := Size*8 - 1 - d.LeadingZeros()
	if idx < 0 {
		idx = 0
	}
	return idx
}

// Less orders addresses by distance from a reference point ref, breaking
// ties on raw address bytes so the ordering is total and independent of
// insertion order.
func Less(ref, a, b Address) bool {
	da, db := Dist(ref, a), Dist(ref, b)
	if c := da.Cmp(db); c != 0 {
		return c < 0
	}
	return bytes.Compare(a[:], b[:]) < 0
}

// MaxDistance is the maximum possible XOR distance (all bits set), used by
// the density-derived responsibility floor.
func MaxDistance() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), Size*8)
	return max.Sub(max, big.NewInt(1))
}
