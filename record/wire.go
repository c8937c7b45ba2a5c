package record

import (
	"errors"

	"github.com/antstorage/ant/addr"
)

// errUnknownKind is returned by WireRecord.Address for an unset Kind.
var errUnknownKind = errors.New("record: unknown kind")

// WireRecord is the tagged union over the four record kinds plus an
// optional attached payment proof for write requests. Its wire form is
// `u8 kind | u8 has_payment | body`; encoding/decoding lives in the
// rpc package so that record stays free of wire-format concerns.
type WireRecord struct {
	Kind    Kind
	Payment *PaymentProof // nil unless this is a write request

	Chunk      *Chunk
	GraphEntry *GraphEntry
	Pointer    *Pointer
	Scratchpad *Scratchpad
}

// Address returns the storage address of the wrapped record.
func (w WireRecord) Address() (addr.Address, error) {
	switch w.Kind {
	case KindChunk:
		return w.Chunk.Name, nil
	case KindGraphEntry:
		return w.GraphEntry.Address()
	case KindPointer:
		return w.Pointer.Address()
	case KindScratchpad:
		return w.Scratchpad.Address()
	default:
		return addr.Address{}, errUnknownKind
	}
}

// Verify checks the wrapped record's kind-specific invariants (chunk
// naming, or signature verification for the mutable kinds).
func (w WireRecord) Verify() error {
	switch w.Kind {
	case KindChunk:
		return w.Chunk.Verify()
	case KindGraphEntry:
		return w.GraphEntry.Verify()
	case KindPointer:
		return w.Pointer.Verify()
	case KindScratchpad:
		return w.Scratchpad.Verify()
	default:
		return errUnknownKind
	}
}
