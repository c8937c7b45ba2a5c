package replication

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/antconfig"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/record"
	"github.com/antstorage/ant/routing"
)

// at returns an address at the given XOR distance from the zero
// address, so distances in the tests read as plain integers.
func at(d byte) addr.Address {
	var a addr.Address
	a[addr.Size-1] = d
	return a
}

type fixedView struct {
	peers []routing.PeerInfo
}

func (v fixedView) Closest(target addr.Address, n int) []routing.PeerInfo {
	addrs := make([]addr.Address, len(v.peers))
	for i, p := range v.peers {
		addrs[i] = p.Address
	}
	addr.SortByDistance(target, addrs)
	if len(addrs) > n {
		addrs = addrs[:n]
	}
	out := make([]routing.PeerInfo, len(addrs))
	for i, a := range addrs {
		out[i] = routing.PeerInfo{Address: a}
	}
	return out
}

type fixedLister struct {
	addrs []addr.Address
}

func (l fixedLister) Addresses() []addr.Address { return l.addrs }

type push struct {
	recipient addr.Address
	holder    addr.Address
	keys      []addr.Address
}

type capturePusher struct {
	mu     sync.Mutex
	pushes []push
}

func (p *capturePusher) PushKeys(_ context.Context, recipient, holder addr.Address, keys []addr.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, push{recipient: recipient, holder: holder, keys: append([]addr.Address(nil), keys...)})
	return nil
}

func newTestEngine(self addr.Address, cfg antconfig.Parameters, view RoutingView, lister AddressLister, pusher Pusher, fetch RecordFetcher, admit RecordAdmitter) *Engine {
	return New(self, cfg, view, lister, pusher, fetch, admit, antlog.NewNoop(), nil, nil, func() int { return routing.K })
}

// A record held by the group at distances 2,3,4,5 from its address; the
// peer at distance 4 leaves. The local peer (distance 5) must push the
// record to the peer at distance 6, the new farthest in-group member.
func TestPeerRemovedPushesToNewGroupMember(t *testing.T) {
	recordAddr := at(0)
	self := at(5)
	view := fixedView{peers: []routing.PeerInfo{
		{Address: at(2)}, {Address: at(3)}, {Address: at(6)},
	}}

	cfg := antconfig.Default()
	cfg.CloseGroupSize = 4

	pusher := &capturePusher{}
	e := newTestEngine(self, cfg, view, fixedLister{addrs: []addr.Address{recordAddr}}, pusher, nil, nil)

	e.handleEvent(context.Background(), routing.Event{
		Kind: routing.PeerRemoved,
		Peer: routing.PeerInfo{Address: at(4)},
	})

	require.Len(t, pusher.pushes, 1)
	require.Equal(t, at(6), pusher.pushes[0].recipient)
	require.Equal(t, self, pusher.pushes[0].holder)
	require.Equal(t, []addr.Address{recordAddr}, pusher.pushes[0].keys)
}

// A freshly added peer that lands inside a record's close group gets
// the record pushed to it.
func TestPeerAddedPushesToNewPeer(t *testing.T) {
	recordAddr := at(0)
	self := at(5)
	newcomer := at(1)
	view := fixedView{peers: []routing.PeerInfo{
		{Address: newcomer}, {Address: at(2)}, {Address: at(3)}, {Address: at(6)},
	}}

	cfg := antconfig.Default()
	cfg.CloseGroupSize = 4

	pusher := &capturePusher{}
	e := newTestEngine(self, cfg, view, fixedLister{addrs: []addr.Address{recordAddr}}, pusher, nil, nil)

	e.handleEvent(context.Background(), routing.Event{
		Kind: routing.PeerAdded,
		Peer: routing.PeerInfo{Address: newcomer},
	})

	require.Len(t, pusher.pushes, 1)
	require.Equal(t, newcomer, pusher.pushes[0].recipient)
}

// A new peer that is the farthest of the close set is the one being
// displaced, not a new replica: nothing is pushed.
func TestPeerAddedFarthestIsNotPushed(t *testing.T) {
	recordAddr := at(0)
	self := at(5)
	newcomer := at(9)
	view := fixedView{peers: []routing.PeerInfo{
		{Address: at(1)}, {Address: at(2)}, {Address: at(3)}, {Address: newcomer},
	}}

	cfg := antconfig.Default()
	cfg.CloseGroupSize = 4

	pusher := &capturePusher{}
	e := newTestEngine(self, cfg, view, fixedLister{addrs: []addr.Address{recordAddr}}, pusher, nil, nil)

	e.handleEvent(context.Background(), routing.Event{
		Kind: routing.PeerAdded,
		Peer: routing.PeerInfo{Address: newcomer},
	})

	require.Empty(t, pusher.pushes)
}

// The engine stays quiet while the routing table holds fewer than K
// peers.
func TestImmatureTableSuppressesReplication(t *testing.T) {
	view := fixedView{peers: []routing.PeerInfo{{Address: at(1)}}}
	cfg := antconfig.Default()
	cfg.CloseGroupSize = 4

	pusher := &capturePusher{}
	e := New(at(5), cfg, view, fixedLister{addrs: []addr.Address{at(0)}}, pusher, nil, nil,
		antlog.NewNoop(), nil, nil, func() int { return routing.K - 1 })

	e.handleEvent(context.Background(), routing.Event{
		Kind: routing.PeerAdded,
		Peer: routing.PeerInfo{Address: at(1)},
	})
	require.Empty(t, pusher.pushes)
}

// Pushes to one recipient are split into batches of at most
// MaxReplicationKeysPerRequest keys.
func TestPushBatching(t *testing.T) {
	self := at(5)
	newcomer := at(1)
	view := fixedView{peers: []routing.PeerInfo{
		{Address: newcomer}, {Address: at(2)}, {Address: at(3)}, {Address: at(6)},
	}}

	cfg := antconfig.Default()
	cfg.CloseGroupSize = 4
	cfg.MaxReplicationKeysPerRequest = 2

	held := []addr.Address{at(0), at(16), at(32), at(48), at(64)}
	pusher := &capturePusher{}
	e := newTestEngine(self, cfg, view, fixedLister{addrs: held}, pusher, nil, nil)

	e.handleEvent(context.Background(), routing.Event{
		Kind: routing.PeerAdded,
		Peer: routing.PeerInfo{Address: newcomer},
	})

	total := 0
	for _, p := range pusher.pushes {
		require.Equal(t, newcomer, p.recipient)
		require.LessOrEqual(t, len(p.keys), 2)
		total += len(p.keys)
	}
	require.Equal(t, len(held), total)
	require.Len(t, pusher.pushes, 3)
}

type scriptedFetcher struct {
	holderErr error
	rec       record.WireRecord
	holderHit int
	quorumHit int
}

func (f *scriptedFetcher) FetchFromHolder(_ context.Context, holder, key addr.Address) (record.WireRecord, error) {
	f.holderHit++
	if f.holderErr != nil {
		return record.WireRecord{}, f.holderErr
	}
	return f.rec, nil
}

func (f *scriptedFetcher) FetchQuorum(_ context.Context, key addr.Address) (record.WireRecord, error) {
	f.quorumHit++
	return f.rec, nil
}

type captureAdmitter struct {
	records []record.WireRecord
}

func (a *captureAdmitter) Put(w record.WireRecord) error {
	a.records = append(a.records, w)
	return nil
}

func TestHandleReplicateKeysFallsBackToQuorum(t *testing.T) {
	chunk := record.NewChunk([]byte("replicated body"))
	w := record.WireRecord{Kind: record.KindChunk, Chunk: &chunk}

	fetch := &scriptedFetcher{holderErr: errors.New("holder down"), rec: w}
	admit := &captureAdmitter{}

	cfg := antconfig.Default()
	e := newTestEngine(at(5), cfg, fixedView{}, fixedLister{}, &capturePusher{}, fetch, admit)

	err := e.HandleReplicateKeys(context.Background(), at(4), []addr.Address{chunk.Name})
	require.NoError(t, err)
	require.Equal(t, 1, fetch.holderHit)
	require.Equal(t, 1, fetch.quorumHit)
	require.Len(t, admit.records, 1)
	require.Equal(t, chunk.Name, admit.records[0].Chunk.Name)
}
