// Package replication implements the routing-churn-driven replication
// engine. It is deliberately decoupled from the
// routing table and the record store by message-passing (it consumes
// routing.Event over a channel and only reads the store's address
// list) rather than by direct ownership, breaking the otherwise
// cyclic routing -> replication -> store -> routing dependency:
// components communicate through channels and narrow interfaces, not
// shared mutable structures.
package replication

import (
	"context"
	"sort"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/antconfig"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/antmetrics"
	"github.com/antstorage/ant/record"
	"github.com/antstorage/ant/routing"
)

// RoutingView is the subset of routing.Table the engine needs to
// recompute closest-peer sets on a churn event.
type RoutingView interface {
	Closest(target addr.Address, n int) []routing.PeerInfo
}

// AddressLister is the subset of store.Store the engine needs: the
// full set of locally-held addresses to re-evaluate on churn.
type AddressLister interface {
	Addresses() []addr.Address
}

// Pusher sends a ReplicateKeys command naming holder as the place the
// recipient can fetch keys from.
type Pusher interface {
	PushKeys(ctx context.Context, recipient addr.Address, holder addr.Address, keys []addr.Address) error
}

// RecordFetcher is the recipient-side fetch path for a ReplicateKeys
// command: try the advertised holder first, then fall back to a
// network-wide quorum read.
type RecordFetcher interface {
	FetchFromHolder(ctx context.Context, holder, key addr.Address) (record.WireRecord, error)
	FetchQuorum(ctx context.Context, key addr.Address) (record.WireRecord, error)
}

// RecordAdmitter is the local store's write path, used to persist
// records this engine fetches on another peer's behalf.
type RecordAdmitter interface {
	Put(w record.WireRecord) error
}

// Engine is the replication engine: one goroutine drains routing
// events and reacts, sending PushKeys inline on that goroutine;
// HandleReplicateKeys (fetch and admission of pushed keys) runs on its
// caller's goroutine. Nothing here needs more concurrency than the
// churn events themselves provide.
type Engine struct {
	self   addr.Address
	cfg    antconfig.Parameters
	view   RoutingView
	store  AddressLister
	pusher Pusher
	fetch  RecordFetcher
	admit  RecordAdmitter
	log    antlog.Logger
	met    *antmetrics.Metrics

	events    <-chan routing.Event
	tableSize func() int
}

// New constructs an Engine. events is the routing table's churn
// channel; tableSize reports the routing table's current peer count so
// the engine can stay quiet until the table holds at least K peers.
func New(self addr.Address, cfg antconfig.Parameters, view RoutingView, store AddressLister, pusher Pusher, fetch RecordFetcher, admit RecordAdmitter, log antlog.Logger, met *antmetrics.Metrics, events <-chan routing.Event, tableSize func() int) *Engine {
	return &Engine{
		self: self, cfg: cfg, view: view, store: store, pusher: pusher,
		fetch: fetch, admit: admit, log: log, met: met, events: events, tableSize: tableSize,
	}
}

// Run drains the routing event channel until ctx is cancelled or the
// channel is closed.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.events:
			if !ok {
				return
			}
			e.handleEvent(ctx, ev)
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev routing.Event) {
	if e.tableSize != nil && e.tableSize() < routing.K {
		return
	}

	pushes := make(map[addr.Address][]addr.Address)
	for _, a := range e.store.Addresses() {
		recipient, ok := e.decide(a, ev)
		if ok {
			pushes[recipient] = append(pushes[recipient], a)
		}
	}

	for recipient, keys := range pushes {
		e.pushBatches(ctx, recipient, keys)
	}
}

// decide picks the push target, if any, for a single stored address.
func (e *Engine) decide(a addr.Address, ev routing.Event) (addr.Address, bool) {
	k := e.cfg.CloseGroupSize
	close := e.closeSetIncluding(a, ev.Peer.Address, k)

	idx := -1
	for i, p := range close {
		if p.Address == ev.Peer.Address {
			idx = i
			break
		}
	}
	if idx < 0 {
		return addr.Address{}, false
	}
	farthest := close[len(close)-1].Address

	switch ev.Kind {
	case routing.PeerAdded:
		if ev.Peer.Address == farthest {
			return addr.Address{}, false
		}
		return ev.Peer.Address, true
	case routing.PeerRemoved:
		if farthest == ev.Peer.Address {
			return addr.Address{}, false
		}
		return farthest, true
	default:
		return addr.Address{}, false
	}
}

// closeSetIncluding returns the k+1 peers closest to target, forcing p
// into the candidate set first — required for PeerRemoved, where p has
// already left the routing table by the time the event is handled.
func (e *Engine) closeSetIncluding(target, p addr.Address, k int) []routing.PeerInfo {
	candidates := e.view.Closest(target, k+1)
	found := false
	for _, c := range candidates {
		if c.Address == p {
			found = true
			break
		}
	}
	if !found {
		candidates = append(candidates, routing.PeerInfo{Address: p})
	}

	addrs := make([]addr.Address, len(candidates))
	byAddr := make(map[addr.Address]routing.PeerInfo, len(candidates))
	for i, c := range candidates {
		addrs[i] = c.Address
		byAddr[c.Address] = c
	}
	sort.Slice(addrs, func(i, j int) bool { return addr.Less(target, addrs[i], addrs[j]) })
	if len(addrs) > k+1 {
		addrs = addrs[:k+1]
	}
	out := make([]routing.PeerInfo, len(addrs))
	for i, a := range addrs {
		out[i] = byAddr[a]
	}
	return out
}

func (e *Engine) pushBatches(ctx context.Context, recipient addr.Address, keys []addr.Address) {
	batchSize := e.cfg.MaxReplicationKeysPerRequest
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		if err := e.pusher.PushKeys(ctx, recipient, e.self, batch); err != nil {
			if e.log != nil {
				e.log.Warn("replication push failed",
					"recipient", recipient.Hex(),
					"keys", len(batch),
					"err", err)
			}
			continue
		}
		if e.met != nil {
			e.met.ReplicationPushes.Inc()
		}
	}
}

// HandleReplicateKeys is the recipient side of the fetch
// path: for each key, try the advertised holder via
// GetReplicatedRecord, fall back to a network quorum read, then
// validate and store.
func (e *Engine) HandleReplicateKeys(ctx context.Context, holder addr.Address, keys []addr.Address) error {
	var firstErr error
	for _, key := range keys {
		if e.met != nil {
			e.met.ReplicationFetches.Inc()
		}
		w, err := e.fetch.FetchFromHolder(ctx, holder, key)
		if err != nil {
			w, err = e.fetch.FetchQuorum(ctx, key)
		}
		if err != nil {
			if e.log != nil {
				e.log.Warn("replication fetch failed", "key", key.Hex(), "err", err)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := e.admit.Put(w); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// CandidatesFor returns the replication candidate peers for an
// arbitrary target address: the k
// closest from the routing view, filtered to those within
// responsibility distance; falling back to the unfiltered k closest if
// fewer than required survive the filter.
func (e *Engine) CandidatesFor(target addr.Address, required int, networkSize int64) []routing.PeerInfo {
	k := e.cfg.CloseGroupSize
	all := e.view.Closest(target, k)
	if len(all) == 0 {
		return all
	}

	kth := all[len(all)-1].Address
	radius := addr.ResponsibilityRadius(e.self, kth, true, k, networkSize)

	filtered := make([]routing.PeerInfo, 0, len(all))
	for _, p := range all {
		if addr.Dist(e.self, p.Address).BigInt().Cmp(radius) <= 0 {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) >= required {
		return filtered
	}
	return all
}
