package selfenc

import (
	"encoding/binary"
	"fmt"

	"github.com/antstorage/ant/addr"
)

// Serialize encodes a DataMap to bytes, both for storing it as a chunk
// and for self-encrypting it when it exceeds ChunkSizeMax. The format
// is a flat, fixed-width binary layout (no reflection), in keeping with
// the module's wire-encoding convention.
func Serialize(m DataMap) []byte {
	buf := make([]byte, 0, 32+len(m.Chunks)*(8+addr.Size*2+8))
	buf = append(buf, byte(m.Form))
	buf = appendUint32(buf, uint32(m.Level))
	buf = appendUint64(buf, uint64(m.TotalLen))
	buf = appendUint32(buf, uint32(m.PadLen))
	buf = appendUint32(buf, uint32(len(m.Chunks)))
	for _, ci := range m.Chunks {
		buf = appendUint32(buf, uint32(ci.Index))
		buf = append(buf, ci.Name[:]...)
		buf = append(buf, ci.PlainHash[:]...)
		buf = appendUint32(buf, uint32(ci.PlainLen))
	}
	return buf
}

// Deserialize reverses Serialize.
func Deserialize(b []byte) (DataMap, error) {
	var m DataMap
	if len(b) < 1+4+8+4+4 {
		return m, fmt.Errorf("selfenc: data map bytes too short (%d)", len(b))
	}
	off := 0
	m.Form = MapForm(b[off])
	off++
	m.Level = int(binary.BigEndian.Uint32(b[off:]))
	off += 4
	m.TotalLen = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	m.PadLen = int(binary.BigEndian.Uint32(b[off:]))
	off += 4
	count := int(binary.BigEndian.Uint32(b[off:]))
	off += 4

	entrySize := 4 + addr.Size*2 + 4
	if len(b) < off+count*entrySize {
		return m, fmt.Errorf("selfenc: data map truncated")
	}
	m.Chunks = make([]ChunkInfo, count)
	for i := 0; i < count; i++ {
		var ci ChunkInfo
		ci.Index = int(binary.BigEndian.Uint32(b[off:]))
		off += 4
		name, err := addr.FromBytes(b[off : off+addr.Size])
		if err != nil {
			return m, err
		}
		off += addr.Size
		ph, err := addr.FromBytes(b[off : off+addr.Size])
		if err != nil {
			return m, err
		}
		off += addr.Size
		ci.Name = name
		ci.PlainHash = ph
		ci.PlainLen = int(binary.BigEndian.Uint32(b[off:]))
		off += 4
		m.Chunks[i] = ci
	}
	return m, nil
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}
