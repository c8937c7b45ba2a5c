package record

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/antstorage/ant/addr"
)

// legacyCounterCutover is the largest counter value still serialized as a
// 4-byte little-endian integer for signature compatibility with the
// original 32-bit counter encoding.
const legacyCounterCutover = 1<<32 - 1

// PointerSigningBytes computes the exact byte sequence a Pointer's
// signature covers: owner_pk || counter_bytes || msgpack(target), where
// counter_bytes is 4-byte little-endian when counter <= 2^32-1, else
// 8-byte little-endian. msgpack is used (rather than the module's own
// Packer codec) specifically to preserve bit-for-bit compatibility with
// pointers signed by the legacy encoder.
func PointerSigningBytes(ownerPK []byte, counter uint64, target addr.Address) ([]byte, error) {
	targetBytes, err := msgpack.Marshal(target[:])
	if err != nil {
		return nil, fmt.Errorf("record: marshal pointer target: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(ownerPK)
	if counter <= legacyCounterCutover {
		var c [4]byte
		putUint32LE(c[:], uint32(counter))
		buf.Write(c[:])
	} else {
		var c [8]byte
		putUint64LE(c[:], counter)
		buf.Write(c[:])
	}
	buf.Write(targetBytes)
	return buf.Bytes(), nil
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
