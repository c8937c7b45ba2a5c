// Package selfenc implements the deterministic self-encryption codec:
// it turns an arbitrary byte stream into a content-addressed set of
// chunks plus a DataMap sufficient to reconstruct it exactly.
package selfenc

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/hashing"
	"github.com/antstorage/ant/record"
)

const (
	// ChunkSizeTarget is the target plaintext segment size.
	ChunkSizeTarget = 1 << 20 // 1 MiB

	// ChunkSizeMax is the hard cap on a stored chunk's size; a serialized
	// DataMap larger than this recurses into a higher-level map
	// during chunking.
	ChunkSizeMax = 4 << 20 // 4 MiB

	// MinSegmentSize is the smallest a final segment may be.
	MinSegmentSize = 1

	// Lmin is the minimum total input length, 3 * MinSegmentSize.
	Lmin = 3 * MinSegmentSize

	minSegments = 3
)

// Chunks is the set of cipher chunks produced by Encrypt, keyed by name.
type Chunks map[addr.Address]record.Chunk

func (c Chunks) merge(other Chunks) {
	for k, v := range other {
		c[k] = v
	}
}

// Encrypt deterministically encrypts b into a DataMap plus its data
// chunks. Encryption never touches disk or the network; callers on the
// upload path run it on a bounded worker pool so it does not stall
// network goroutines.
func Encrypt(b []byte) (DataMap, Chunks, error) {
	dm, chunks, err := encryptLevel(b, 0)
	if err != nil {
		return DataMap{}, nil, err
	}
	return wrapIfOversized(dm, chunks)
}

// encryptLevel runs one level of the chunking/encryption algorithm
// over b, tagging the resulting map at the given level.
func encryptLevel(b []byte, level int) (DataMap, Chunks, error) {
	if len(b) < Lmin {
		return DataMap{}, nil, fmt.Errorf("selfenc: input length %d below Lmin %d: %w", len(b), Lmin, anterrs.ErrInputTooSmall)
	}

	padded, padLen := pad(b)
	segments := partition(padded)

	plainHashes := make([]addr.Address, len(segments))
	for i, seg := range segments {
		plainHashes[i] = hashing.H(seg)
	}

	chunks := make(Chunks, len(segments))
	infos := make([]ChunkInfo, len(segments))
	for i, seg := range segments {
		key, nonce := deriveKeyIV(plainHashes, i)
		cipher, err := streamEncrypt(seg, key, nonce)
		if err != nil {
			return DataMap{}, nil, fmt.Errorf("selfenc: encrypt segment %d: %w", i, err)
		}
		obfuscate(cipher, key, nonce)

		name := hashing.H(cipher)
		chunks[name] = record.Chunk{Name: name, Bytes: cipher}
		infos[i] = ChunkInfo{
			Index:     i,
			Name:      name,
			PlainHash: plainHashes[i],
			PlainLen:  len(seg),
		}
	}

	return DataMap{
		Form:     FormFirst,
		Level:    level,
		TotalLen: int64(len(b)),
		PadLen:   padLen,
		Chunks:   infos,
	}, chunks, nil
}

// wrapIfOversized recurses: if dm's serialized form exceeds ChunkSizeMax,
// self-encrypt the serialized bytes to produce a higher map level, per
// the hierarchical data-map recursion.
func wrapIfOversized(dm DataMap, chunks Chunks) (DataMap, Chunks, error) {
	if len(Serialize(dm)) <= ChunkSizeMax {
		return dm, chunks, nil
	}
	dm.Form = FormAdditional
	serialized := Serialize(dm)
	outer, outerChunks, err := encryptLevel(serialized, dm.Level+1)
	if err != nil {
		return DataMap{}, nil, fmt.Errorf("selfenc: wrap oversized data map: %w", err)
	}
	chunks.merge(outerChunks)
	return wrapIfOversized(outer, chunks)
}

// FetchFunc retrieves a chunk's bytes by name, typically backed by the
// local chunk cache, then the network.
type FetchFunc func(name addr.Address) ([]byte, error)

// Decrypt reconstructs the original bytes from a DataMap using fetch to
// retrieve each referenced chunk. It recurses through hierarchical data
// maps first.
func Decrypt(dm DataMap, fetch FetchFunc) ([]byte, error) {
	leaf, err := resolveLeaf(dm, fetch)
	if err != nil {
		return nil, err
	}
	return decryptLevelBytes(leaf, fetch)
}

// resolveLeaf peels hierarchical data map levels until it reaches the
// level-0 map that indexes the original plaintext's chunks.
func resolveLeaf(dm DataMap, fetch FetchFunc) (DataMap, error) {
	for dm.Level > 0 {
		raw, err := decryptLevelBytes(dm, fetch)
		if err != nil {
			return DataMap{}, fmt.Errorf("selfenc: resolve map level %d: %w", dm.Level, err)
		}
		next, err := Deserialize(raw)
		if err != nil {
			return DataMap{}, fmt.Errorf("selfenc: deserialize map level %d: %w", dm.Level-1, err)
		}
		dm = next
	}
	return dm, nil
}

// decryptLevelBytes fetches, verifies, and decrypts every chunk of a
// single map level, returning the concatenated, padding-trimmed
// plaintext for that level (which is either the original bytes, for a
// level-0 map, or the serialized bytes of the map one level down).
func decryptLevelBytes(m DataMap, fetch FetchFunc) ([]byte, error) {
	plainHashes := m.plainHashes()
	out := make([]byte, 0, m.TotalLen+int64(m.PadLen))
	for _, ci := range m.Chunks {
		cipher, err := fetch(ci.Name)
		if err != nil {
			return nil, fmt.Errorf("selfenc: fetch chunk %s: %w", ci.Name, err)
		}
		if hashing.H(cipher) != ci.Name {
			return nil, fmt.Errorf("selfenc: chunk %s fails name check", ci.Name)
		}
		plain, err := decryptSegment(cipher, plainHashes, ci.Index)
		if err != nil {
			return nil, err
		}
		if hashing.H(plain) != ci.PlainHash {
			return nil, fmt.Errorf("selfenc: segment %d plaintext hash mismatch", ci.Index)
		}
		out = append(out, plain...)
	}
	if int64(len(out)) < m.TotalLen {
		return nil, fmt.Errorf("selfenc: reconstructed %d bytes, want %d", len(out), m.TotalLen)
	}
	return out[:m.TotalLen], nil
}

// Sink receives decoded plaintext in order, allowing decrypt_stream
// callers to avoid materializing the whole output.
type Sink interface {
	Write(p []byte) (int, error)
}

// BatchFetchFunc retrieves a batch of chunks at once, letting the caller
// bound the number of outstanding fetches.
type BatchFetchFunc func(names []addr.Address) (map[addr.Address][]byte, error)

// DecryptStream writes decoded plaintext to sink in order without
// materializing the full output, fetching chunks in batches of batchSize
// so that peak memory is O(batch x ChunkSizeMax).
func DecryptStream(dm DataMap, fetchBatch BatchFetchFunc, sink Sink, batchSize int) error {
	if batchSize < 1 {
		batchSize = 1
	}
	toFetchFunc := func(single addr.Address) ([]byte, error) {
		res, err := fetchBatch([]addr.Address{single})
		if err != nil {
			return nil, err
		}
		b, ok := res[single]
		if !ok {
			return nil, fmt.Errorf("selfenc: missing chunk %s in batch", single)
		}
		return b, nil
	}
	leaf, err := resolveLeaf(dm, toFetchFunc)
	if err != nil {
		return err
	}
	plainHashes := leaf.plainHashes()

	remaining := leaf.TotalLen
	for start := 0; start < len(leaf.Chunks); start += batchSize {
		end := start + batchSize
		if end > len(leaf.Chunks) {
			end = len(leaf.Chunks)
		}
		batch := leaf.Chunks[start:end]
		names := make([]addr.Address, len(batch))
		for i, ci := range batch {
			names[i] = ci.Name
		}
		fetched, err := fetchBatch(names)
		if err != nil {
			return fmt.Errorf("selfenc: fetch batch: %w", err)
		}
		for _, ci := range batch {
			cipher, ok := fetched[ci.Name]
			if !ok {
				return fmt.Errorf("selfenc: missing chunk %s in batch", ci.Name)
			}
			plain, err := decryptSegment(cipher, plainHashes, ci.Index)
			if err != nil {
				return err
			}
			n := int64(len(plain))
			if n > remaining {
				n = remaining
			}
			if _, err := sink.Write(plain[:n]); err != nil {
				return err
			}
			remaining -= n
		}
	}
	return nil
}

func (m DataMap) plainHashes() []addr.Address {
	out := make([]addr.Address, len(m.Chunks))
	for i, ci := range m.Chunks {
		out[i] = ci.PlainHash
	}
	return out
}

func pad(b []byte) ([]byte, int) {
	if len(b) >= Lmin {
		return b, 0
	}
	padLen := Lmin - len(b)
	out := make([]byte, Lmin)
	copy(out, b)
	return out, padLen
}

// partition splits padded into consecutive segments of target size
// ChunkSizeTarget; the final segment may be shorter but never below
// Lmin/3, and there are always at least minSegments segments. An input
// too short for minSegments target-size segments is instead split into
// minSegments near-equal segments.
func partition(padded []byte) [][]byte {
	n := len(padded) / ChunkSizeTarget
	if len(padded)%ChunkSizeTarget != 0 {
		n++
	}
	if n >= minSegments {
		segments := make([][]byte, 0, n)
		for offset := 0; offset < len(padded); offset += ChunkSizeTarget {
			end := offset + ChunkSizeTarget
			if end > len(padded) {
				end = len(padded)
			}
			segments = append(segments, padded[offset:end])
		}
		return segments
	}
	n = minSegments

	segments := make([][]byte, 0, n)
	base := len(padded) / n
	extra := len(padded) % n
	offset := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		segments = append(segments, padded[offset:offset+size])
		offset += size
	}
	return segments
}

// deriveKeyIV derives segment i's cipher key and nonce from the
// neighboring segments' plaintext hashes, rotated modulo the segment
// count so the derivation is well defined at the boundaries.
func deriveKeyIV(plainHashes []addr.Address, i int) (key [32]byte, nonce [12]byte) {
	n := len(plainHashes)
	h := func(off int) addr.Address {
		return plainHashes[((i+off)%n+n)%n]
	}

	h1, h3 := h(-1), h(1)
	h2, h4 := h(-2), h(2)

	keyMaterial := hashing.NewHasher()
	keyMaterial.Write(h1[:])
	keyMaterial.Write(h3[:])
	key = [32]byte(keyMaterial.Sum())

	nonceMaterial := hashing.NewHasher()
	nonceMaterial.Write(h2[:])
	nonceMaterial.Write(h4[:])
	nonceMaterial.Write([]byte("iv"))
	nonceHash := nonceMaterial.Sum()
	copy(nonce[:], nonceHash[:12])
	return key, nonce
}

func streamEncrypt(plain []byte, key [32]byte, nonce [12]byte) ([]byte, error) {
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(plain))
	c.XORKeyStream(out, plain)
	return out, nil
}

// obfuscate XORs cipher in place with an obfuscation pad derived from the
// same neighbor-hash key material.
func obfuscate(cipher []byte, key [32]byte, nonce [12]byte) {
	pad := expandPad(key, nonce, len(cipher))
	for i := range cipher {
		cipher[i] ^= pad[i]
	}
}

// expandPad derives a pseudo-random pad of length n from key/nonce using
// BLAKE3 as an XOF-like expander: successive 32-byte blocks keyed by an
// incrementing counter.
func expandPad(key [32]byte, nonce [12]byte, n int) []byte {
	out := make([]byte, 0, n+32)
	var counter uint32
	for len(out) < n {
		h := hashing.NewHasher()
		h.Write(key[:])
		h.Write(nonce[:])
		var ctr [4]byte
		binary.BigEndian.PutUint32(ctr[:], counter)
		h.Write(ctr[:])
		sum := h.Sum()
		out = append(out, sum[:]...)
		counter++
	}
	return out[:n]
}

// decryptSegment reverses obfuscate+streamEncrypt for segment index i.
// XOR is its own inverse, so undoing obfuscate before or after the
// stream cipher step is equivalent; we undo it first to mirror Encrypt's
// order symmetrically.
func decryptSegment(cipher []byte, plainHashes []addr.Address, i int) ([]byte, error) {
	key, nonce := deriveKeyIV(plainHashes, i)
	buf := make([]byte, len(cipher))
	copy(buf, cipher)
	obfuscate(buf, key, nonce)
	plain, err := streamEncrypt(buf, key, nonce)
	if err != nil {
		return nil, fmt.Errorf("selfenc: decrypt segment %d: %w", i, err)
	}
	return plain, nil
}
