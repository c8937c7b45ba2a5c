// Package routing implements the Kademlia-style k-bucket routing table
// structure: 256 buckets indexed by XOR-distance bucket, feeding
// peer selection for lookups and replication targets.
package routing

import (
	"sync"
	"time"

	"github.com/antstorage/ant/addr"
)

// PeerInfo is everything the routing table knows about a peer.
type PeerInfo struct {
	Address  addr.Address
	PeerID   []byte // raw peer public key bytes
	LastSeen time.Time
}

// LivenessProbe checks whether a candidate peer is still reachable before
// it is evicted from a full bucket.
// The message plane supplies the real implementation (a Ping call);
// tests supply a stub.
type LivenessProbe func(p PeerInfo) bool

// EventKind distinguishes the two routing-table churn events consumed by
// the replication engine.
type EventKind int

const (
	PeerAdded EventKind = iota
	PeerRemoved
)

// Event is emitted on bucket membership changes. Routing-table mutations
// are serialized internally; this channel is how the replication engine
// learns about them without holding the table's lock; message passing
// breaks the routing/replication/store ownership cycle.
type Event struct {
	Kind EventKind
	Peer PeerInfo
}

// K is the default bucket capacity.
const K = 20

// Table is a 256-bucket Kademlia routing table keyed by XOR distance from
// Self.
type Table struct {
	mu      sync.Mutex
	Self    addr.Address
	k       int
	buckets [addr.Size * 8]bucket
	probe   LivenessProbe
	events  chan Event
}

type bucket struct {
	// entries is ordered least-recently-seen first, most-recently-seen last.
	entries []PeerInfo
}

// New creates a routing table for the given local address. events, if
// non-nil, receives PeerAdded/PeerRemoved notifications; callers should
// drain it promptly since sends happen under mutation (a buffered channel
// with the replication engine as sole consumer is the intended wiring).
func New(self addr.Address, probe LivenessProbe, events chan Event) *Table {
	if probe == nil {
		probe = func(PeerInfo) bool { return false }
	}
	return &Table{Self: self, k: K, probe: probe, events: events}
}

// OnPeerSeen records that a peer was just observed (e.g. it sent us a
// request or we got a response from it).
func (t *Table) OnPeerSeen(p PeerInfo) {
	idx := addr.BucketIndex(t.Self, p.Address)
	if idx < 0 {
		return // p.Address == t.Self; not a real peer
	}

	t.mu.Lock()
	b := &t.buckets[idx]

	for i, existing := range b.entries {
		if existing.Address == p.Address {
			// Move to MRU.
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			b.entries = append(b.entries, p)
			t.mu.Unlock()
			return
		}
	}

	if len(b.entries) < t.k {
		b.entries = append(b.entries, p)
		t.mu.Unlock()
		t.emit(Event{Kind: PeerAdded, Peer: p})
		return
	}

	// Bucket full: evict the LRU entry only if it fails a liveness probe.
	lru := b.entries[0]
	t.mu.Unlock()
	if t.probe(lru) {
		return // lru is still alive; drop the new candidate
	}

	t.mu.Lock()
	// Re-check the bucket hasn't changed shape while we probed.
	if len(b.entries) > 0 && b.entries[0].Address == lru.Address {
		b.entries = append(b.entries[1:], p)
	}
	t.mu.Unlock()
	t.emit(Event{Kind: PeerRemoved, Peer: lru})
	t.emit(Event{Kind: PeerAdded, Peer: p})
}

// RemovePeer explicitly removes a peer, e.g. on a connection reset the
// message plane treats as a hard disconnect.
func (t *Table) RemovePeer(a addr.Address) {
	idx := addr.BucketIndex(t.Self, a)
	if idx < 0 {
		return
	}
	t.mu.Lock()
	b := &t.buckets[idx]
	var removed *PeerInfo
	for i, existing := range b.entries {
		if existing.Address == a {
			removed = &existing
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
	if removed != nil {
		t.emit(Event{Kind: PeerRemoved, Peer: *removed})
	}
}

func (t *Table) emit(ev Event) {
	if t.events == nil {
		return
	}
	select {
	case t.events <- ev:
	default:
		// Replication engine is the sole consumer and is expected to keep
		// up; when the channel is full the event is dropped without any
		// signal rather than blocking routing-table mutations.
	}
}

// Closest returns up to n peers closest to target, walking every bucket
// outward from bucket_index(target) and sorting the candidates by XOR
// distance to target. The result is a snapshot taken under lock, so callers may hold it across
// awaits without risking a lock held across a blocking call.
func (t *Table) Closest(target addr.Address, n int) []PeerInfo {
	t.mu.Lock()
	startIdx := addr.BucketIndex(t.Self, target)
	if startIdx < 0 {
		startIdx = 0
	}
	candidates := make([]PeerInfo, 0, n*2)
	for dist := 0; dist < len(t.buckets); dist++ {
		for j, idx := range []int{startIdx - dist, startIdx + dist} {
			if idx < 0 || idx >= len(t.buckets) || (dist == 0 && j == 1) {
				continue
			}
			candidates = append(candidates, t.buckets[idx].entries...)
		}
	}
	t.mu.Unlock()

	addrs := make([]addr.Address, len(candidates))
	byAddr := make(map[addr.Address]PeerInfo, len(candidates))
	for i, c := range candidates {
		addrs[i] = c.Address
		byAddr[c.Address] = c
	}
	addr.SortByDistance(target, addrs)
	if len(addrs) > n {
		addrs = addrs[:n]
	}
	out := make([]PeerInfo, len(addrs))
	for i, a := range addrs {
		out[i] = byAddr[a]
	}
	return out
}

// EstimateNetworkSize implements the bucket-fill density estimator:
// (sum of peers in non-full buckets + 1) * 2^(# full buckets).
func (t *Table) EstimateNetworkSize() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sumNonFull int64
	var fullBuckets int
	for _, b := range t.buckets {
		if len(b.entries) >= t.k {
			fullBuckets++
		} else {
			sumNonFull += int64(len(b.entries))
		}
	}
	shift := fullBuckets
	if shift > 62 {
		shift = 62 // avoid overflowing int64 in a near-saturated table
	}
	return (sumNonFull + 1) << uint(shift)
}

// Len returns the total number of peers held across all buckets.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, b := range t.buckets {
		n += len(b.entries)
	}
	return n
}

// All returns a snapshot of every peer in the table.
func (t *Table) All() []PeerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PeerInfo, 0, K)
	for _, b := range t.buckets {
		out = append(out, b.entries...)
	}
	return out
}
