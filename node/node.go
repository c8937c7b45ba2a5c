// Package node wires the per-peer record store, quoter, replication
// engine, and routing table into a single peernet.Handler: the
// dispatch layer sitting between the wire and the rest of a running
// peer. One handler method answers one request kind; narrow
// collaborators do the real work.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/antmetrics"
	"github.com/antstorage/ant/hashing"
	"github.com/antstorage/ant/message"
	"github.com/antstorage/ant/record"
	"github.com/antstorage/ant/routing"
	"github.com/antstorage/ant/rpc"
	"github.com/antstorage/ant/store"
)

// Store is the subset of store.Store the node dispatches against.
type Store interface {
	Put(w record.WireRecord) error
	Get(a addr.Address) (store.Result, error)
}

// Quoter is the subset of quoter.Quoter the node dispatches against.
type Quoter interface {
	GetQuote(recordName addr.Address, kind record.Kind, size int64, now time.Time) (record.Quote, error)
	ValidatePayment(proof record.PaymentProof, quotes []record.Quote, now time.Time) error
	RecordPaymentReceived()
}

// Replicator is the subset of replication.Engine the node dispatches
// the ReplicateKeys command against.
type Replicator interface {
	HandleReplicateKeys(ctx context.Context, holder addr.Address, keys []addr.Address) error
}

// Table is the subset of routing.Table the node reads to answer
// FindNode. Node only ever reads the table; inbound requests do not add
// their senders to it.
type Table interface {
	Closest(target addr.Address, n int) []routing.PeerInfo
}

// Node answers every message-plane Op for one
// running peer, implementing peernet.Handler.
type Node struct {
	self  addr.Address
	k     int
	store Store
	quote Quoter
	repl  Replicator
	table Table
	log   antlog.Logger
	met   *antmetrics.Metrics

	mu           sync.Mutex
	issuedQuotes map[addr.Address]record.Quote // last quote issued per record name, consulted by StoreRecord
}

// New constructs a Node. k bounds how many peers FindNode answers
// return, mirroring antconfig.Parameters.K.
func New(self addr.Address, k int, st Store, q Quoter, repl Replicator, table Table, log antlog.Logger, met *antmetrics.Metrics) *Node {
	return &Node{
		self: self, k: k, store: st, quote: q, repl: repl, table: table,
		log: log, met: met,
		issuedQuotes: make(map[addr.Address]record.Quote),
	}
}

// Handle dispatches one inbound request frame by Op, implementing
// peernet.Handler.
func (n *Node) Handle(ctx context.Context, h message.Header, payload []byte) ([]byte, error) {
	switch h.Op {
	case message.OpPing:
		return nil, nil
	case message.OpFindNode:
		return n.handleFindNode(payload)
	case message.OpGetRecord:
		return n.handleGetRecord(payload)
	case message.OpGetReplicatedRecord:
		return n.handleGetReplicatedRecord(payload)
	case message.OpGetQuote:
		return n.handleGetQuote(payload)
	case message.OpStoreRecord:
		return n.handleStoreRecord(payload)
	case message.OpReplicateKeys:
		return n.handleReplicateKeys(ctx, payload)
	case message.OpChunkProofChallenge:
		return n.handleChunkProofChallenge(payload)
	default:
		return nil, fmt.Errorf("node: unknown op %s", h.Op)
	}
}

func (n *Node) handleFindNode(payload []byte) ([]byte, error) {
	target := rpc.DecodeFindNode(payload)
	peers := n.table.Closest(target, n.k)
	out := make([]addr.Address, len(peers))
	for i, p := range peers {
		out[i] = p.Address
	}
	return rpc.EncodeAddressList(out), nil
}

// handleGetRecord answers a quorum-tagged read with this peer's own
// value; the caller aggregates across several peers itself, so the
// quorum selector is decoded and otherwise ignored here.
func (n *Node) handleGetRecord(payload []byte) ([]byte, error) {
	target, _ := rpc.DecodeGetRecord(payload)
	return n.respondWithLocal(target)
}

// handleGetReplicatedRecord answers the replication engine's
// holder-direct fetch, carried over OpGetReplicatedRecord with the
// same FindNode-shaped payload rpc.PeerClient encodes.
func (n *Node) handleGetReplicatedRecord(payload []byte) ([]byte, error) {
	target := rpc.DecodeFindNode(payload)
	return n.respondWithLocal(target)
}

func (n *Node) respondWithLocal(target addr.Address) ([]byte, error) {
	res, err := n.store.Get(target)
	if err != nil {
		return nil, err
	}
	w := record.WireRecord{Kind: res.Kind}
	switch res.Kind {
	case record.KindChunk:
		w.Chunk = res.Chunk
	case record.KindGraphEntry:
		if len(res.GraphEntries) > 0 {
			w.GraphEntry = &res.GraphEntries[0]
		}
	case record.KindPointer:
		w.Pointer = res.Pointer
	case record.KindScratchpad:
		if len(res.Scratchpads) > 0 {
			w.Scratchpad = &res.Scratchpads[0]
		}
	}
	return rpc.EncodeWireRecord(w), nil
}

func (n *Node) handleGetQuote(payload []byte) ([]byte, error) {
	target, kind, size := rpc.DecodeGetQuote(payload)
	q, err := n.quote.GetQuote(target, kind, size, time.Now())
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.issuedQuotes[target] = q
	n.mu.Unlock()
	if n.met != nil {
		n.met.QuotesIssued.Inc()
		n.met.QuotePrice.Set(float64(q.Price))
	}
	return rpc.EncodeQuote(q), nil
}

// handleStoreRecord runs the full server-side write path: validate
// the record's own invariants, validate its attached payment against
// the quote this peer most recently issued for the same name (a
// remote caller has no way to hand back the peer's own signed quote
// except by the peer recalling it), then admit it to the store.
func (n *Node) handleStoreRecord(payload []byte) ([]byte, error) {
	w, err := rpc.DecodeWireRecord(payload)
	if err != nil {
		return nil, err
	}
	if err := w.Verify(); err != nil {
		return nil, fmt.Errorf("node: record verification: %w", err)
	}

	target, err := w.Address()
	if err != nil {
		return nil, err
	}

	if w.Payment != nil {
		n.mu.Lock()
		issued, ok := n.issuedQuotes[target]
		n.mu.Unlock()
		var quotes []record.Quote
		if ok {
			quotes = []record.Quote{issued}
		}
		if err := n.quote.ValidatePayment(*w.Payment, quotes, time.Now()); err != nil {
			return nil, fmt.Errorf("node: payment validation: %w", err)
		}
	}

	if err := n.store.Put(w); err != nil {
		return nil, err
	}
	if w.Payment != nil {
		n.quote.RecordPaymentReceived()
	}
	if n.log != nil {
		n.log.Debug("stored record", "address", target.Hex(), "kind", w.Kind.String())
	}
	return nil, nil
}

func (n *Node) handleReplicateKeys(ctx context.Context, payload []byte) ([]byte, error) {
	holder, keys := rpc.DecodeReplicateKeys(payload)
	if err := n.repl.HandleReplicateKeys(ctx, holder, keys); err != nil {
		return nil, err
	}
	return nil, nil
}

// handleChunkProofChallenge answers a possession proof for a locally
// held chunk: H(nonce || bytes), proving the chunk is held without
// transmitting it.
func (n *Node) handleChunkProofChallenge(payload []byte) ([]byte, error) {
	target, nonce := rpc.DecodeChunkProofChallenge(payload)
	res, err := n.store.Get(target)
	if err != nil {
		return nil, err
	}
	if res.Kind != record.KindChunk || res.Chunk == nil {
		return nil, anterrs.ErrRecordNotFound
	}
	buf := make([]byte, 0, 32+len(res.Chunk.Bytes))
	buf = append(buf, nonce[:]...)
	buf = append(buf, res.Chunk.Bytes...)
	digest := hashing.H(buf)
	return digest[:], nil
}
