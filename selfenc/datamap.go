package selfenc

import "github.com/antstorage/ant/addr"

// ChunkInfo is one entry of a DataMap, identifying a segment's
// content-addressed cipher chunk and the information needed to decrypt
// and validate it.
type ChunkInfo struct {
	Index     int
	Name      addr.Address // dst_hash_i: the chunk's content address
	PlainHash addr.Address // plain_hash_i: H(plaintext segment)
	PlainLen  int          // len(segment_i)
}

// MapForm distinguishes a top-level data map (small enough to hand back to
// the caller directly) from an intermediate one produced when recursively
// self-encrypting an oversized data map.
type MapForm uint8

const (
	// FormFirst is the top-level map: either it is a level-0 map over the
	// original plaintext's chunks, or its own chunks encode the
	// serialized bytes of the next map level down.
	FormFirst MapForm = iota + 1
	// FormAdditional tags every level below the top.
	FormAdditional
)

// DataMap is the ordered index of chunks produced by self-encryption,
// sufficient to reconstruct the plaintext.
//
// Level 0 maps index chunks of the original plaintext directly. A Level >
// 0 map's Chunks index chunks whose decrypted, concatenated bytes are the
// serialized form of the Level-1 map below it (the
// hierarchical data map). Decoding walks levels down to 0 to recover the
// original chunk list; codec.go implements this recursion.
type DataMap struct {
	Form     MapForm
	Level    int
	TotalLen int64
	PadLen   int // padding length recorded by pad; 0 for maps Encrypt produces, since inputs below Lmin are rejected
	Chunks   []ChunkInfo
}

// IsLeaf reports whether this map directly indexes data chunks (level 0).
func (m DataMap) IsLeaf() bool {
	return m.Level == 0
}
