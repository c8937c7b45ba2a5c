package message

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/antstorage/ant/anterrs"
)

// FrameKind distinguishes a request from its response on the wire.
type FrameKind uint8

const (
	FrameRequest FrameKind = iota + 1
	FrameResponse
)

// Op enumerates the query and command kinds.
type Op uint8

const (
	OpPing Op = iota + 1
	OpFindNode
	OpGetRecord
	OpGetQuote
	OpGetReplicatedRecord
	OpStoreRecord
	OpReplicateKeys
	OpChunkProofChallenge
)

func (o Op) String() string {
	switch o {
	case OpPing:
		return "Ping"
	case OpFindNode:
		return "FindNode"
	case OpGetRecord:
		return "GetRecord"
	case OpGetQuote:
		return "GetQuote"
	case OpGetReplicatedRecord:
		return "GetReplicatedRecord"
	case OpStoreRecord:
		return "StoreRecord"
	case OpReplicateKeys:
		return "ReplicateKeys"
	case OpChunkProofChallenge:
		return "ChunkProofChallenge"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

// Idempotent reports whether a retry of this op is always safe at
// this layer. Every request is idempotent except StoreRecord, whose
// idempotency instead comes from the record's content-addressable
// nature (same record -> same effect).
func (o Op) Idempotent() bool {
	return o != OpStoreRecord
}

// MaxFrameLength bounds a single frame's payload to guard against a
// malformed or hostile length prefix forcing an unbounded allocation.
const MaxFrameLength = 64 << 20

// Header is the fixed-width prefix of every frame: kind, op, and the
// 64-bit request id that correlates a Response with its Request.
type Header struct {
	Kind      FrameKind
	Op        Op
	RequestID uint64
}

const headerSize = 1 + 1 + 8

// WriteFrame writes `u32 length | header | payload` to w, where length
// counts the header and payload bytes that follow it.
func WriteFrame(w io.Writer, h Header, payload []byte) error {
	total := headerSize + len(payload)
	if total > MaxFrameLength {
		return anterrs.ErrTooLarge
	}

	buf := make([]byte, 4+total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	buf[4] = byte(h.Kind)
	buf[5] = byte(h.Op)
	binary.BigEndian.PutUint64(buf[6:14], h.RequestID)
	copy(buf[14:], payload)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Header{}, nil, err
	}
	total := binary.BigEndian.Uint32(lenBuf[:])
	if total > MaxFrameLength || int(total) < headerSize {
		return Header{}, nil, anterrs.ErrTooLarge
	}

	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		return Header{}, nil, err
	}

	h := Header{
		Kind:      FrameKind(body[0]),
		Op:        Op(body[1]),
		RequestID: binary.BigEndian.Uint64(body[2:10]),
	}
	return h, body[headerSize:], nil
}
