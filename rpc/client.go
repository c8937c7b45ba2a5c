package rpc

import (
	"context"
	"fmt"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/message"
	"github.com/antstorage/ant/record"
)

// PeerClient is the typed client surface for every query and command
// a peer answers, layered over message.Client so callers
// (the client coordinator, the replication engine's message-plane
// adapter) never encode/decode payloads themselves.
type PeerClient struct {
	c *message.Client
}

// New wraps a message.Client.
func New(c *message.Client) *PeerClient {
	return &PeerClient{c: c}
}

// Ping checks liveness; used by routing.LivenessProbe before evicting a
// bucket's LRU entry.
func (p *PeerClient) Ping(ctx context.Context, peer addr.Address) error {
	_, _, err := p.c.Call(ctx, peer, message.OpPing, nil)
	return err
}

// FindNode asks peer for the peers it knows closest to target.
func (p *PeerClient) FindNode(ctx context.Context, peer, target addr.Address) ([]addr.Address, error) {
	_, resp, err := p.c.Call(ctx, peer, message.OpFindNode, EncodeFindNode(target))
	if err != nil {
		return nil, err
	}
	return DecodeAddressList(resp)
}

// GetRecord fetches a record from peer with the given quorum hint
// (carried so the remote side can itself fan out if it isn't the
// authoritative holder; the local caller still aggregates across
// several GetRecord calls).
func (p *PeerClient) GetRecord(ctx context.Context, peer, target addr.Address, q message.Quorum) (record.WireRecord, error) {
	_, resp, err := p.c.Call(ctx, peer, message.OpGetRecord, EncodeGetRecord(target, q))
	if err != nil {
		return record.WireRecord{}, err
	}
	if len(resp) == 0 {
		return record.WireRecord{}, anterrs.ErrRecordNotFound
	}
	return DecodeWireRecord(resp)
}

// GetReplicatedRecord fetches a record directly from its advertised
// holder, the first step of the replication fetch path.
func (p *PeerClient) GetReplicatedRecord(ctx context.Context, holder, target addr.Address) (record.WireRecord, error) {
	_, resp, err := p.c.Call(ctx, holder, message.OpGetReplicatedRecord, EncodeFindNode(target))
	if err != nil {
		return record.WireRecord{}, err
	}
	if len(resp) == 0 {
		return record.WireRecord{}, anterrs.ErrRecordNotFound
	}
	return DecodeWireRecord(resp)
}

// GetQuote requests a signed price offer from peer for storing size
// bytes of kind at target.
func (p *PeerClient) GetQuote(ctx context.Context, peer, target addr.Address, kind record.Kind, size int64) (record.Quote, error) {
	_, resp, err := p.c.Call(ctx, peer, message.OpGetQuote, EncodeGetQuote(target, kind, size))
	if err != nil {
		return record.Quote{}, err
	}
	return DecodeQuote(resp)
}

// StoreRecord writes w (with its attached payment proof) to peer.
func (p *PeerClient) StoreRecord(ctx context.Context, peer addr.Address, w record.WireRecord) error {
	_, _, err := p.c.Call(ctx, peer, message.OpStoreRecord, EncodeWireRecord(w))
	return err
}

// ReplicateKeys tells recipient that holder has keys available to
// replicate; it is a one-way command carried as
// a request/response pair with an empty response for acknowledgement.
func (p *PeerClient) ReplicateKeys(ctx context.Context, recipient, holder addr.Address, keys []addr.Address) error {
	_, _, err := p.c.Call(ctx, recipient, message.OpReplicateKeys, EncodeReplicateKeys(holder, keys))
	return err
}

// ChunkProofChallenge issues a random-nonce proof challenge against
// peer for the chunk at target, returning the peer's claimed proof
// bytes (H(nonce || chunk bytes), verified by the caller).
func (p *PeerClient) ChunkProofChallenge(ctx context.Context, peer, target addr.Address, nonce [32]byte) ([]byte, error) {
	_, resp, err := p.c.Call(ctx, peer, message.OpChunkProofChallenge, EncodeChunkProofChallenge(target, nonce))
	if err != nil {
		return nil, fmt.Errorf("rpc: chunk proof challenge: %w", err)
	}
	return resp, nil
}
