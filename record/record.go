// Package record defines the record kinds stored by the network: Chunk,
// GraphEntry, Pointer, and Scratchpad, plus the Quote and
// PaymentProof types used to gate writes.
package record

import (
	"bytes"
	"fmt"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/hashing"
	"github.com/antstorage/ant/keys"
)

// Kind is the record-kind discriminator carried in the wire header.
type Kind uint8

const (
	KindChunk Kind = iota + 1
	KindGraphEntry
	KindPointer
	KindScratchpad
)

func (k Kind) String() string {
	switch k {
	case KindChunk:
		return "Chunk"
	case KindGraphEntry:
		return "GraphEntry"
	case KindPointer:
		return "Pointer"
	case KindScratchpad:
		return "Scratchpad"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Chunk is an immutable (name, bytes) pair with name = H(bytes). A
// chunk is addressed by its name.
type Chunk struct {
	Name  addr.Address
	Bytes []byte
}

// NewChunk builds a Chunk and computes its content-addressed name.
func NewChunk(b []byte) Chunk {
	return Chunk{Name: hashing.H(b), Bytes: b}
}

// Verify checks the chunk-immutability invariant: name == H(bytes).
func (c Chunk) Verify() error {
	if c.Name != hashing.H(c.Bytes) {
		return fmt.Errorf("record: chunk name mismatch: want %s", hashing.H(c.Bytes))
	}
	return nil
}

// GraphEntry is an append-only node in a content-addressed DAG, stored at
// address H(owner_pk). Multiple signed entries may coexist at the same
// address; readers receive the set.
type GraphEntry struct {
	OwnerPK     []byte // compressed secp256k1 public key
	Parents     []addr.Address
	Payload     [32]byte
	Descendants []GraphDescendant
	Signature   []byte
}

// GraphDescendant is one (pk, payload) pointer out of a GraphEntry.
type GraphDescendant struct {
	PK      []byte
	Payload [32]byte
}

// Address returns H(owner_pk), the storage address of this entry's set.
func (g GraphEntry) Address() (addr.Address, error) {
	pub, err := keys.PublicKeyFromBytes(g.OwnerPK)
	if err != nil {
		return addr.Address{}, err
	}
	return pub.Address(), nil
}

// SigningBytes returns the canonical byte sequence a GraphEntry's
// signature covers: owner_pk || parents (sorted) || payload || descendants.
func (g GraphEntry) SigningBytes() []byte {
	var buf bytes.Buffer
	buf.Write(g.OwnerPK)
	parents := append([]addr.Address(nil), g.Parents...)
	addr.SortByDistance(addr.Address{}, parents)
	for _, p := range parents {
		buf.Write(p[:])
	}
	buf.Write(g.Payload[:])
	for _, d := range g.Descendants {
		buf.Write(d.PK)
		buf.Write(d.Payload[:])
	}
	return buf.Bytes()
}

// Verify checks the entry's signature against its own owner_pk.
func (g GraphEntry) Verify() error {
	pub, err := keys.PublicKeyFromBytes(g.OwnerPK)
	if err != nil {
		return fmt.Errorf("record: graph entry owner key: %w", err)
	}
	if !keys.Verify(pub, g.SigningBytes(), g.Signature) {
		return anterrs.ErrInvalidSignature
	}
	return nil
}

// Equal reports whether two GraphEntry values are the same signed entry
// (used to detect duplicate inserts into the per-address set).
func (g GraphEntry) Equal(other GraphEntry) bool {
	return bytes.Equal(g.Signature, other.Signature) && bytes.Equal(g.OwnerPK, other.OwnerPK)
}

// Pointer is a mutable single-value cell at address H(owner_pk). Higher
// counter supersedes lower.
type Pointer struct {
	OwnerPK   []byte
	Counter   uint64
	Target    addr.Address
	Signature []byte
}

// Address returns H(owner_pk).
func (p Pointer) Address() (addr.Address, error) {
	pub, err := keys.PublicKeyFromBytes(p.OwnerPK)
	if err != nil {
		return addr.Address{}, err
	}
	return pub.Address(), nil
}

// Verify checks the pointer's signature using the legacy-compatible
// counter encoding.
func (p Pointer) Verify() error {
	pub, err := keys.PublicKeyFromBytes(p.OwnerPK)
	if err != nil {
		return fmt.Errorf("record: pointer owner key: %w", err)
	}
	msg, err := PointerSigningBytes(p.OwnerPK, p.Counter, p.Target)
	if err != nil {
		return err
	}
	if !keys.Verify(pub, msg, p.Signature) {
		return anterrs.ErrInvalidSignature
	}
	return nil
}

// Scratchpad is a mutable opaque blob at address H(owner_pk). Supersedence:
// higher counter wins; equal counter with equal content deduplicates;
// equal counter with different content is a fork.
type Scratchpad struct {
	OwnerPK          []byte
	ContentType      uint64
	EncryptedPayload []byte
	Counter          uint64
	Signature        []byte
}

// Address returns H(owner_pk).
func (s Scratchpad) Address() (addr.Address, error) {
	pub, err := keys.PublicKeyFromBytes(s.OwnerPK)
	if err != nil {
		return addr.Address{}, err
	}
	return pub.Address(), nil
}

// SigningBytes is the canonical byte sequence a Scratchpad's signature covers.
func (s Scratchpad) SigningBytes() []byte {
	var buf bytes.Buffer
	buf.Write(s.OwnerPK)
	var ct [8]byte
	putUint64(ct[:], s.ContentType)
	buf.Write(ct[:])
	buf.Write(s.EncryptedPayload)
	var cnt [8]byte
	putUint64(cnt[:], s.Counter)
	buf.Write(cnt[:])
	return buf.Bytes()
}

// Verify checks the scratchpad's signature.
func (s Scratchpad) Verify() error {
	pub, err := keys.PublicKeyFromBytes(s.OwnerPK)
	if err != nil {
		return fmt.Errorf("record: scratchpad owner key: %w", err)
	}
	if !keys.Verify(pub, s.SigningBytes(), s.Signature) {
		return anterrs.ErrInvalidSignature
	}
	return nil
}

// ContentEqual reports whether two scratchpads carry the same payload,
// used for equal-counter deduplication.
func (s Scratchpad) ContentEqual(other Scratchpad) bool {
	return bytes.Equal(s.EncryptedPayload, other.EncryptedPayload) && s.ContentType == other.ContentType
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
}
