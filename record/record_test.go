package record

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/hashing"
	"github.com/antstorage/ant/keys"
)

func TestChunkVerify(t *testing.T) {
	c := NewChunk([]byte("some chunk body"))
	require.NoError(t, c.Verify())
	require.Equal(t, hashing.H(c.Bytes), c.Name)

	c.Bytes = append(c.Bytes, 0x00)
	require.Error(t, c.Verify())
}

// A pointer signed over the legacy 4-byte little-endian counter
// encoding must verify, deserialize, and read back as a full uint64.
func TestPointerLegacyCounterSignature(t *testing.T) {
	kp, err := keys.Generate()
	require.NoError(t, err)

	target := hashing.H([]byte("target"))
	const counter = 42

	// Reconstruct the legacy signing bytes by hand: owner_pk || 4-byte
	// LE counter || msgpack(target).
	targetBytes, err := msgpack.Marshal(target[:])
	require.NoError(t, err)
	legacy := append([]byte(nil), kp.Public.Bytes()...)
	legacy = append(legacy, 42, 0, 0, 0)
	legacy = append(legacy, targetBytes...)

	p := Pointer{
		OwnerPK:   kp.Public.Bytes(),
		Counter:   counter,
		Target:    target,
		Signature: keys.Sign(kp.Private, legacy),
	}
	require.EqualValues(t, 42, p.Counter)
	require.NoError(t, p.Verify())

	// The module's own signing-bytes computation must agree with the
	// hand-built legacy encoding byte for byte.
	msg, err := PointerSigningBytes(p.OwnerPK, p.Counter, p.Target)
	require.NoError(t, err)
	require.True(t, bytes.Equal(legacy, msg))
}

// Counters above 2^32-1 switch to the 8-byte encoding.
func TestPointerWideCounterSignature(t *testing.T) {
	kp, err := keys.Generate()
	require.NoError(t, err)

	target := hashing.H([]byte("target"))
	counter := uint64(1) << 40

	msg, err := PointerSigningBytes(kp.Public.Bytes(), counter, target)
	require.NoError(t, err)

	narrow, err := PointerSigningBytes(kp.Public.Bytes(), 42, target)
	require.NoError(t, err)
	require.Equal(t, len(narrow)+4, len(msg))

	p := Pointer{
		OwnerPK:   kp.Public.Bytes(),
		Counter:   counter,
		Target:    target,
		Signature: keys.Sign(kp.Private, msg),
	}
	require.NoError(t, p.Verify())
}

func TestPointerRejectsTamperedTarget(t *testing.T) {
	kp, err := keys.Generate()
	require.NoError(t, err)

	target := hashing.H([]byte("target"))
	msg, err := PointerSigningBytes(kp.Public.Bytes(), 7, target)
	require.NoError(t, err)

	p := Pointer{
		OwnerPK:   kp.Public.Bytes(),
		Counter:   7,
		Target:    hashing.H([]byte("elsewhere")),
		Signature: keys.Sign(kp.Private, msg),
	}
	require.Error(t, p.Verify())
}

func TestMergePointerHighestCounterWins(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	const n = 20

	perm := r.Perm(n)
	var current *Pointer
	for _, i := range perm {
		current = MergePointer(current, Pointer{Counter: uint64(i)})
	}
	require.NotNil(t, current)
	require.EqualValues(t, n-1, current.Counter)
}

func TestMergeScratchpads(t *testing.T) {
	sp := func(counter uint64, payload string) Scratchpad {
		return Scratchpad{Counter: counter, EncryptedPayload: []byte(payload)}
	}

	// Two distinct payloads at the same counter fork.
	set := MergeScratchpads(nil, sp(3, "a"))
	set = MergeScratchpads(set, sp(3, "b"))
	require.Len(t, set, 2)

	// The same payload again deduplicates.
	set = MergeScratchpads(set, sp(3, "a"))
	require.Len(t, set, 2)

	// A higher counter collapses the fork.
	set = MergeScratchpads(set, sp(4, "c"))
	require.Len(t, set, 1)
	require.Equal(t, []byte("c"), set[0].EncryptedPayload)

	// A stale write changes nothing.
	set = MergeScratchpads(set, sp(2, "z"))
	require.Len(t, set, 1)
	require.Equal(t, []byte("c"), set[0].EncryptedPayload)
}

func TestGraphEntrySetSemantics(t *testing.T) {
	kp, err := keys.Generate()
	require.NoError(t, err)

	entry := func(payload byte) GraphEntry {
		g := GraphEntry{OwnerPK: kp.Public.Bytes()}
		g.Payload[0] = payload
		g.Signature = keys.Sign(kp.Private, g.SigningBytes())
		return g
	}

	e1, e2 := entry(1), entry(2)
	require.NoError(t, e1.Verify())
	require.NoError(t, e2.Verify())

	set := MergeGraphEntries(nil, e1)
	set = MergeGraphEntries(set, e2)
	set = MergeGraphEntries(set, e1) // duplicate
	require.Len(t, set, 2)

	// Both entries live at the same address.
	a1, err := e1.Address()
	require.NoError(t, err)
	a2, err := e2.Address()
	require.NoError(t, err)
	require.Equal(t, a1, a2)
}

func TestScratchpadSignature(t *testing.T) {
	kp, err := keys.Generate()
	require.NoError(t, err)

	s := Scratchpad{
		OwnerPK:          kp.Public.Bytes(),
		ContentType:      7,
		EncryptedPayload: []byte("opaque"),
		Counter:          1,
	}
	s.Signature = keys.Sign(kp.Private, s.SigningBytes())
	require.NoError(t, s.Verify())

	s.Counter = 2
	require.Error(t, s.Verify())
}

func TestPaymentProofListsPayee(t *testing.T) {
	self := hashing.H([]byte("self"))
	other := hashing.H([]byte("other"))

	p := PaymentProof{Payees: []addr.Address{other}}
	require.False(t, p.ListsPayee(self))

	p.Payees = append(p.Payees, self)
	require.True(t, p.ListsPayee(self))
}
