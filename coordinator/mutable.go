package coordinator

import (
	"context"
	"fmt"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/keys"
	"github.com/antstorage/ant/message"
	"github.com/antstorage/ant/record"
)

// PutPointer signs and writes a Pointer at the owner's address.
// Writes are payment-gated only for first creation and for
// owner-controlled updates that grow quota usage. A Pointer's
// storage footprint never grows with its counter, so only creation
// (create=true) is payment-gated here; subsequent counter bumps are
// unpaid supersedence writes.
func (c *Coordinator) PutPointer(ctx context.Context, owner *keys.KeyPair, counter uint64, target addr.Address, create bool) error {
	a := owner.Public.Address()
	msg, err := record.PointerSigningBytes(owner.Public.Bytes(), counter, target)
	if err != nil {
		return err
	}
	p := record.Pointer{
		OwnerPK:   owner.Public.Bytes(),
		Counter:   counter,
		Target:    target,
		Signature: keys.Sign(owner.Private, msg),
	}
	w := record.WireRecord{Kind: record.KindPointer, Pointer: &p}
	if create {
		if err := c.attachPayment(ctx, &w, a, record.KindPointer, pointerSize(p)); err != nil {
			return err
		}
	}
	return c.storeMutable(ctx, a, w)
}

// PutScratchpad signs and writes a Scratchpad at the owner's address.
// create=true (first write) or growing=true (a payload larger than any
// previously stored at this address) triggers payment gating; other
// updates ride free on the quota already paid for.
func (c *Coordinator) PutScratchpad(ctx context.Context, owner *keys.KeyPair, contentType uint64, payload []byte, counter uint64, create, growing bool) error {
	a := owner.Public.Address()
	sp := record.Scratchpad{
		OwnerPK:          owner.Public.Bytes(),
		ContentType:      contentType,
		EncryptedPayload: payload,
		Counter:          counter,
	}
	sp.Signature = keys.Sign(owner.Private, sp.SigningBytes())
	w := record.WireRecord{Kind: record.KindScratchpad, Scratchpad: &sp}
	if create || growing {
		if err := c.attachPayment(ctx, &w, a, record.KindScratchpad, int64(len(payload))); err != nil {
			return err
		}
	}
	return c.storeMutable(ctx, a, w)
}

// attachPayment runs the same quote/settle sequence uploadOne uses,
// but against the record's own address rather than a chunk name.
func (c *Coordinator) attachPayment(ctx context.Context, w *record.WireRecord, a addr.Address, kind record.Kind, size int64) error {
	peers := c.view.Closest(a, c.cfg.CloseGroupSize)
	if len(peers) == 0 {
		return anterrs.ErrUnreachable
	}
	quotes, payees, err := c.collectQuotes(ctx, peers, a, kind, size)
	if err != nil {
		return err
	}
	proof, err := c.oracle.Settle(ctx, quotes, a, kind)
	if err != nil {
		return fmt.Errorf("coordinator: settle payment: %w", err)
	}
	proof.Payees = payees
	proof.Kind = kind
	proof.RecordName = a
	w.Payment = &proof
	return nil
}

// storeMutable writes w to every peer in a's close group, tolerating
// individual failures as long as at least one peer accepts it (the
// same quorum-one acceptance rule uploadOne applies to chunks).
func (c *Coordinator) storeMutable(ctx context.Context, a addr.Address, w record.WireRecord) error {
	peers := c.view.Closest(a, c.cfg.CloseGroupSize)
	if len(peers) == 0 {
		return anterrs.ErrUnreachable
	}
	payees := make([]addr.Address, len(peers))
	for i, p := range peers {
		payees[i] = p.Address
	}
	return c.storeWithQuorumOne(ctx, payees, w)
}

func pointerSize(p record.Pointer) int64 {
	return int64(len(p.OwnerPK) + 8 + addr.Size + len(p.Signature))
}

// GetRecord reads a mutable record with the given quorum, applying
// the per-kind conflict-resolution rules across the responses (the
// caller sees a *message.Aggregator-shaped result via the returned
// record.WireRecord plus explicit conflict accessors for forked kinds).
func (c *Coordinator) GetRecord(ctx context.Context, a addr.Address, q message.Quorum) (record.WireRecord, []record.GraphEntry, []record.Scratchpad, error) {
	peers := c.view.Closest(a, c.cfg.CloseGroupSize)
	if len(peers) == 0 {
		return record.WireRecord{}, nil, nil, anterrs.ErrUnreachable
	}
	agg := message.NewAggregator(q)
	for _, p := range peers {
		w, err := c.peer.GetRecord(ctx, p.Address, a, q)
		if err != nil {
			continue
		}
		if agg.Offer(w, len(peers)) && q.Mode != message.QuorumN {
			break
		}
	}
	if agg.Responded() == 0 {
		return record.WireRecord{}, nil, nil, anterrs.ErrRecordNotFound
	}
	return agg.Result(), agg.GraphEntries(), agg.Scratchpads(), nil
}
