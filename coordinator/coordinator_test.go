package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/antconfig"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/hashing"
	"github.com/antstorage/ant/keys"
	"github.com/antstorage/ant/message"
	"github.com/antstorage/ant/record"
	"github.com/antstorage/ant/routing"
)

// stubView hands back a fixed, fully-connected close group regardless of
// target, enough to exercise the coordinator's fan-out logic without a
// real routing table.
type stubView struct {
	peers []routing.PeerInfo
}

func (v stubView) Closest(target addr.Address, n int) []routing.PeerInfo {
	if n > len(v.peers) {
		n = len(v.peers)
	}
	return v.peers[:n]
}

// stubPeer is an in-memory PeerOps backed by a shared map, standing in
// for a population of storage peers that all happily quote, store, and
// answer chunk-proof challenges.
type stubPeer struct {
	mu      sync.Mutex
	records map[addr.Address]record.WireRecord
	price   uint64
}

func newStubPeer() *stubPeer {
	return &stubPeer{records: make(map[addr.Address]record.WireRecord), price: 1}
}

func (p *stubPeer) GetQuote(ctx context.Context, peer, target addr.Address, kind record.Kind, size int64) (record.Quote, error) {
	return record.Quote{PeerID: peer, Price: p.price}, nil
}

func (p *stubPeer) StoreRecord(ctx context.Context, peer addr.Address, w record.WireRecord) error {
	a, err := w.Address()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[a] = w
	return nil
}

func (p *stubPeer) ChunkProofChallenge(ctx context.Context, peer, target addr.Address, nonce [32]byte) ([]byte, error) {
	p.mu.Lock()
	w, ok := p.records[target]
	p.mu.Unlock()
	if !ok || w.Chunk == nil {
		return nil, anterrs.ErrRecordNotFound
	}
	buf := make([]byte, 0, 32+len(w.Chunk.Bytes))
	buf = append(buf, nonce[:]...)
	buf = append(buf, w.Chunk.Bytes...)
	got := hashing.H(buf)
	return got[:], nil
}

func (p *stubPeer) GetRecord(ctx context.Context, peer, target addr.Address, q message.Quorum) (record.WireRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.records[target]
	if !ok {
		return record.WireRecord{}, anterrs.ErrRecordNotFound
	}
	return w, nil
}

// stubOracle settles immediately with an opaque proof, standing in for
// the out-of-scope on-chain settlement collaborator.
type stubOracle struct{}

func (stubOracle) Settle(ctx context.Context, quotes []record.Quote, recordName addr.Address, kind record.Kind) (record.PaymentProof, error) {
	return record.PaymentProof{Tag: record.PaymentNative, Opaque: []byte("settled")}, nil
}

func testPeers(n int) []routing.PeerInfo {
	out := make([]routing.PeerInfo, n)
	for i := range out {
		var a addr.Address
		a[0] = byte(i + 1)
		out[i] = routing.PeerInfo{Address: a}
	}
	return out
}

func newTestCoordinator(t *testing.T, peer *stubPeer) *Coordinator {
	t.Helper()
	kp, err := keys.Generate()
	require.NoError(t, err)
	cfg := antconfig.Default()
	cfg.CloseGroupSize = 3
	cfg.ChunkUploadConcurrency = 4
	cfg.ChunkDownloadConcurrency = 4
	view := stubView{peers: testPeers(5)}
	return New(kp.Public.Address(), kp, cfg, view, peer, stubOracle{}, nil, antlog.NewNoop(), nil)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	peer := newStubPeer()
	c := newTestCoordinator(t, peer)

	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	ctx := context.Background()
	res, err := c.Upload(ctx, payload, true)
	require.NoError(t, err)
	require.False(t, res.MapAddress.IsZero())

	got, err := c.Download(ctx, res.DataMap)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestUploadSmallPrivate(t *testing.T) {
	peer := newStubPeer()
	c := newTestCoordinator(t, peer)

	ctx := context.Background()
	res, err := c.Upload(ctx, []byte("hello coordinator"), false)
	require.NoError(t, err)
	require.True(t, res.MapAddress.IsZero())
	require.False(t, res.Public)

	got, err := c.Download(ctx, res.DataMap)
	require.NoError(t, err)
	require.Equal(t, []byte("hello coordinator"), got)
}

func TestPutPointerAndGetRecord(t *testing.T) {
	peer := newStubPeer()
	c := newTestCoordinator(t, peer)
	owner, err := keys.Generate()
	require.NoError(t, err)

	ctx := context.Background()
	target := hashing.H([]byte("target"))
	require.NoError(t, c.PutPointer(ctx, owner, 1, target, true))

	w, _, _, err := c.GetRecord(ctx, owner.Public.Address(), message.One())
	require.NoError(t, err)
	require.Equal(t, record.KindPointer, w.Kind)
	require.Equal(t, target, w.Pointer.Target)

	// Creation was payment-gated: the record each peer accepted carried
	// a proof.
	peer.mu.Lock()
	stored := peer.records[owner.Public.Address()]
	peer.mu.Unlock()
	require.NotNil(t, stored.Payment)
}

func TestPutScratchpadPaymentGating(t *testing.T) {
	peer := newStubPeer()
	c := newTestCoordinator(t, peer)
	owner, err := keys.Generate()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.PutScratchpad(ctx, owner, 1, []byte("payload-v1"), 1, true, false))

	w, _, _, err := c.GetRecord(ctx, owner.Public.Address(), message.One())
	require.NoError(t, err)
	require.NotNil(t, w.Scratchpad)
	peer.mu.Lock()
	stored := peer.records[owner.Public.Address()]
	peer.mu.Unlock()
	require.NotNil(t, stored.Payment)

	// A subsequent non-growing update is not payment-gated.
	require.NoError(t, c.PutScratchpad(ctx, owner, 1, []byte("v2-sa"), 2, false, false))
	w2, _, _, err := c.GetRecord(ctx, owner.Public.Address(), message.One())
	require.NoError(t, err)
	require.Equal(t, uint64(2), w2.Scratchpad.Counter)
	peer.mu.Lock()
	stored = peer.records[owner.Public.Address()]
	peer.mu.Unlock()
	require.Nil(t, stored.Payment)
}
