package selfenc

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/hashing"
)

func fetchFrom(chunks Chunks) FetchFunc {
	return func(name addr.Address) ([]byte, error) {
		c, ok := chunks[name]
		if !ok {
			return nil, fmt.Errorf("no chunk %s", name)
		}
		return c.Bytes, nil
	}
}

func patterned(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 31)
	}
	return b
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	for _, size := range []int{Lmin, 100, 4096, ChunkSizeTarget + 17, 3*ChunkSizeTarget + 1} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			in := patterned(size)
			dm, chunks, err := Encrypt(in)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(chunks), 3)
			require.Equal(t, int64(size), dm.TotalLen)

			out, err := Decrypt(dm, fetchFrom(chunks))
			require.NoError(t, err)
			require.True(t, bytes.Equal(in, out))
		})
	}
}

func TestEncryptIsDeterministic(t *testing.T) {
	in := patterned(50_000)
	dm1, chunks1, err := Encrypt(in)
	require.NoError(t, err)
	dm2, chunks2, err := Encrypt(in)
	require.NoError(t, err)

	require.Equal(t, Serialize(dm1), Serialize(dm2))
	require.Equal(t, len(chunks1), len(chunks2))
	for name, c := range chunks1 {
		other, ok := chunks2[name]
		require.True(t, ok, "chunk %s missing from second run", name)
		require.Equal(t, c.Bytes, other.Bytes)
	}
}

func TestChunkNamesAreContentHashes(t *testing.T) {
	_, chunks, err := Encrypt(patterned(10_000))
	require.NoError(t, err)
	for name, c := range chunks {
		require.Equal(t, name, hashing.H(c.Bytes))
		require.Equal(t, name, c.Name)
	}
}

func TestEncryptRejectsTooSmall(t *testing.T) {
	_, _, err := Encrypt([]byte{0x01})
	require.ErrorIs(t, err, anterrs.ErrInputTooSmall)
	_, _, err = Encrypt(nil)
	require.ErrorIs(t, err, anterrs.ErrInputTooSmall)
}

// Uniform input must still produce the expected chunk count and decrypt
// exactly, even though every segment's plaintext (and hash) is identical.
func TestLargeUniformInput(t *testing.T) {
	const size = 10_000_000
	in := bytes.Repeat([]byte{0xAB}, size)

	dm, chunks, err := Encrypt(in)
	require.NoError(t, err)

	wantSegments := size / ChunkSizeTarget
	require.InDelta(t, wantSegments, len(dm.Chunks), 1)

	out, err := Decrypt(dm, fetchFrom(chunks))
	require.NoError(t, err)
	require.True(t, bytes.Equal(in, out))
}

func TestDecryptDetectsCorruptChunk(t *testing.T) {
	in := patterned(10_000)
	dm, chunks, err := Encrypt(in)
	require.NoError(t, err)

	_, err = Decrypt(dm, func(name addr.Address) ([]byte, error) {
		c := chunks[name]
		flipped := append([]byte(nil), c.Bytes...)
		flipped[0] ^= 0xFF
		return flipped, nil
	})
	require.Error(t, err)
}

type sinkBuf struct{ bytes.Buffer }

func TestDecryptStreamMatchesDecrypt(t *testing.T) {
	in := patterned(2*ChunkSizeTarget + 12345)
	dm, chunks, err := Encrypt(in)
	require.NoError(t, err)

	fetchBatch := func(names []addr.Address) (map[addr.Address][]byte, error) {
		out := make(map[addr.Address][]byte, len(names))
		for _, n := range names {
			c, ok := chunks[n]
			if !ok {
				return nil, fmt.Errorf("no chunk %s", n)
			}
			out[n] = c.Bytes
		}
		return out, nil
	}

	var sink sinkBuf
	require.NoError(t, DecryptStream(dm, fetchBatch, &sink, 2))
	require.True(t, bytes.Equal(in, sink.Bytes()))
}

func TestDataMapSerializeRoundTrip(t *testing.T) {
	dm, _, err := Encrypt(patterned(5 * 1000))
	require.NoError(t, err)

	got, err := Deserialize(Serialize(dm))
	require.NoError(t, err)
	require.Equal(t, dm, got)
}

func TestMinimumLengthInputRoundTrip(t *testing.T) {
	in := []byte{0xDE, 0xAD, 0xBE}
	require.Len(t, in, Lmin)

	dm, chunks, err := Encrypt(in)
	require.NoError(t, err)

	out, err := Decrypt(dm, fetchFrom(chunks))
	require.NoError(t, err)
	require.Equal(t, in, out)
}
