package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/hashing"
	"github.com/antstorage/ant/message"
	"github.com/antstorage/ant/record"
	"github.com/antstorage/ant/routing"
	"github.com/antstorage/ant/rpc"
	"github.com/antstorage/ant/store"
)

type stubStore struct {
	records map[addr.Address]record.WireRecord
}

func newStubStore() *stubStore { return &stubStore{records: make(map[addr.Address]record.WireRecord)} }

func (s *stubStore) Put(w record.WireRecord) error {
	a, err := w.Address()
	if err != nil {
		return err
	}
	s.records[a] = w
	return nil
}

func (s *stubStore) Get(a addr.Address) (store.Result, error) {
	w, ok := s.records[a]
	if !ok {
		return store.Result{}, anterrs.ErrRecordNotFound
	}
	res := store.Result{Kind: w.Kind}
	switch w.Kind {
	case record.KindChunk:
		res.Chunk = w.Chunk
	case record.KindPointer:
		res.Pointer = w.Pointer
	case record.KindScratchpad:
		res.Scratchpads = []record.Scratchpad{*w.Scratchpad}
	}
	return res, nil
}

type stubQuoter struct {
	self addr.Address
}

func (q *stubQuoter) GetQuote(recordName addr.Address, kind record.Kind, size int64, now time.Time) (record.Quote, error) {
	return record.Quote{PeerID: q.self, Price: 42}, nil
}

func (q *stubQuoter) ValidatePayment(proof record.PaymentProof, quotes []record.Quote, now time.Time) error {
	if !proof.ListsPayee(q.self) {
		return anterrs.ErrPaymentNotForUs
	}
	return nil
}

func (q *stubQuoter) RecordPaymentReceived() {}

type stubReplicator struct {
	called bool
	holder addr.Address
	keys   []addr.Address
}

func (r *stubReplicator) HandleReplicateKeys(ctx context.Context, holder addr.Address, keys []addr.Address) error {
	r.called = true
	r.holder = holder
	r.keys = keys
	return nil
}

type stubTable struct {
	peers []routing.PeerInfo
}

func (t *stubTable) Closest(target addr.Address, n int) []routing.PeerInfo {
	if n > len(t.peers) {
		n = len(t.peers)
	}
	return t.peers[:n]
}

func newTestNode() (*Node, *stubStore, *stubQuoter, *stubReplicator) {
	self := hashing.H([]byte("self"))
	st := newStubStore()
	q := &stubQuoter{self: self}
	repl := &stubReplicator{}
	table := &stubTable{peers: []routing.PeerInfo{
		{Address: hashing.H([]byte("p1"))},
		{Address: hashing.H([]byte("p2"))},
	}}
	return New(self, 20, st, q, repl, table, nil, nil), st, q, repl
}

func TestHandlePing(t *testing.T) {
	n, _, _, _ := newTestNode()
	resp, err := n.Handle(context.Background(), message.Header{Op: message.OpPing}, nil)
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestHandleFindNode(t *testing.T) {
	n, _, _, _ := newTestNode()
	target := hashing.H([]byte("target"))
	resp, err := n.Handle(context.Background(), message.Header{Op: message.OpFindNode}, rpc.EncodeFindNode(target))
	require.NoError(t, err)
	peers, err := rpc.DecodeAddressList(resp)
	require.NoError(t, err)
	require.Len(t, peers, 2)
}

func TestHandleGetQuoteThenStoreRecord(t *testing.T) {
	n, st, _, _ := newTestNode()
	ctx := context.Background()

	chunk := record.NewChunk([]byte("chunk payload"))
	quoteResp, err := n.Handle(ctx, message.Header{Op: message.OpGetQuote}, rpc.EncodeGetQuote(chunk.Name, record.KindChunk, int64(len(chunk.Bytes))))
	require.NoError(t, err)
	quote, err := rpc.DecodeQuote(quoteResp)
	require.NoError(t, err)
	require.Equal(t, uint64(42), quote.Price)

	w := record.WireRecord{
		Kind:  record.KindChunk,
		Chunk: &chunk,
		Payment: &record.PaymentProof{
			Tag:        record.PaymentNative,
			RecordName: chunk.Name,
			Kind:       record.KindChunk,
			Payees:     []addr.Address{quote.PeerID},
			Opaque:     []byte("paid"),
		},
	}
	_, err = n.Handle(ctx, message.Header{Op: message.OpStoreRecord}, rpc.EncodeWireRecord(w))
	require.NoError(t, err)
	require.Contains(t, st.records, chunk.Name)

	getResp, err := n.Handle(ctx, message.Header{Op: message.OpGetRecord}, rpc.EncodeGetRecord(chunk.Name, message.One()))
	require.NoError(t, err)
	got, err := rpc.DecodeWireRecord(getResp)
	require.NoError(t, err)
	require.Equal(t, chunk.Bytes, got.Chunk.Bytes)
}

func TestHandleStoreRecordRejectsWrongPayee(t *testing.T) {
	n, _, _, _ := newTestNode()
	chunk := record.NewChunk([]byte("unpaid"))
	w := record.WireRecord{
		Kind:  record.KindChunk,
		Chunk: &chunk,
		Payment: &record.PaymentProof{
			Tag:        record.PaymentNative,
			RecordName: chunk.Name,
			Kind:       record.KindChunk,
			Payees:     []addr.Address{hashing.H([]byte("someone else"))},
		},
	}
	_, err := n.Handle(context.Background(), message.Header{Op: message.OpStoreRecord}, rpc.EncodeWireRecord(w))
	require.ErrorIs(t, err, anterrs.ErrPaymentNotForUs)
}

func TestHandleChunkProofChallenge(t *testing.T) {
	n, st, _, _ := newTestNode()
	chunk := record.NewChunk([]byte("proof me"))
	st.records[chunk.Name] = record.WireRecord{Kind: record.KindChunk, Chunk: &chunk}

	var nonce [32]byte
	copy(nonce[:], []byte("0123456789012345678901234567890"))
	resp, err := n.Handle(context.Background(), message.Header{Op: message.OpChunkProofChallenge}, rpc.EncodeChunkProofChallenge(chunk.Name, nonce))
	require.NoError(t, err)

	buf := append(append([]byte{}, nonce[:]...), chunk.Bytes...)
	want := hashing.H(buf)
	require.Equal(t, want[:], resp)
}

func TestHandleReplicateKeys(t *testing.T) {
	n, _, _, repl := newTestNode()
	holder := hashing.H([]byte("holder"))
	keys := []addr.Address{hashing.H([]byte("k1")), hashing.H([]byte("k2"))}
	_, err := n.Handle(context.Background(), message.Header{Op: message.OpReplicateKeys}, rpc.EncodeReplicateKeys(holder, keys))
	require.NoError(t, err)
	require.True(t, repl.called)
	require.Equal(t, holder, repl.holder)
	require.Equal(t, keys, repl.keys)
}
