// Package rpc encodes and decodes the query and command payloads the
// message plane carries, and provides a typed PeerClient built on
// message.Client, so callers never hand-roll Packer/Unpacker calls at
// the use site.
package rpc

import (
	"time"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/message"
	"github.com/antstorage/ant/record"
)

// EncodeWireRecord implements the record wire header:
// `u8 kind | u8 has_payment | body`.
func EncodeWireRecord(w record.WireRecord) []byte {
	p := message.NewPacker(256)
	p.PackByte(byte(w.Kind))
	p.PackBool(w.Payment != nil)
	if w.Payment != nil {
		encodePayment(p, *w.Payment)
	}
	switch w.Kind {
	case record.KindChunk:
		p.PackAddress(w.Chunk.Name)
		p.PackVarBytes(w.Chunk.Bytes)
	case record.KindGraphEntry:
		encodeGraphEntry(p, *w.GraphEntry)
	case record.KindPointer:
		encodePointer(p, *w.Pointer)
	case record.KindScratchpad:
		encodeScratchpad(p, *w.Scratchpad)
	}
	return p.Bytes
}

// DecodeWireRecord is EncodeWireRecord's inverse.
func DecodeWireRecord(b []byte) (record.WireRecord, error) {
	u := message.NewUnpacker(b)
	w := record.WireRecord{Kind: record.Kind(u.UnpackByte())}
	hasPayment := u.UnpackBool()
	if hasPayment {
		pay := decodePayment(u)
		w.Payment = &pay
	}
	switch w.Kind {
	case record.KindChunk:
		name := u.UnpackAddress()
		body := u.UnpackVarBytes()
		w.Chunk = &record.Chunk{Name: name, Bytes: append([]byte(nil), body...)}
	case record.KindGraphEntry:
		g := decodeGraphEntry(u)
		w.GraphEntry = &g
	case record.KindPointer:
		pt := decodePointer(u)
		w.Pointer = &pt
	case record.KindScratchpad:
		sp := decodeScratchpad(u)
		w.Scratchpad = &sp
	}
	if u.Err != nil {
		return record.WireRecord{}, u.Err
	}
	return w, nil
}

func encodePayment(p *message.Packer, pay record.PaymentProof) {
	p.PackByte(byte(pay.Tag))
	p.PackAddress(pay.RecordName)
	p.PackByte(byte(pay.Kind))
	p.PackInt(uint32(len(pay.Payees)))
	for _, payee := range pay.Payees {
		p.PackAddress(payee)
	}
	p.PackVarBytes(pay.Opaque)
}

func decodePayment(u *message.Unpacker) record.PaymentProof {
	var pay record.PaymentProof
	pay.Tag = record.PaymentProofTag(u.UnpackByte())
	pay.RecordName = u.UnpackAddress()
	pay.Kind = record.Kind(u.UnpackByte())
	n := u.UnpackCount(addr.Size)
	pay.Payees = make([]addr.Address, n)
	for i := range pay.Payees {
		pay.Payees[i] = u.UnpackAddress()
	}
	pay.Opaque = u.UnpackVarBytes()
	return pay
}

func encodeGraphEntry(p *message.Packer, g record.GraphEntry) {
	p.PackVarBytes(g.OwnerPK)
	p.PackInt(uint32(len(g.Parents)))
	for _, parent := range g.Parents {
		p.PackAddress(parent)
	}
	p.PackBytes(g.Payload[:])
	p.PackInt(uint32(len(g.Descendants)))
	for _, d := range g.Descendants {
		p.PackVarBytes(d.PK)
		p.PackBytes(d.Payload[:])
	}
	p.PackVarBytes(g.Signature)
}

func decodeGraphEntry(u *message.Unpacker) record.GraphEntry {
	var g record.GraphEntry
	g.OwnerPK = u.UnpackVarBytes()
	n := u.UnpackCount(addr.Size)
	g.Parents = make([]addr.Address, n)
	for i := range g.Parents {
		g.Parents[i] = u.UnpackAddress()
	}
	copy(g.Payload[:], u.UnpackBytes(32))
	dn := u.UnpackCount(4 + 32)
	g.Descendants = make([]record.GraphDescendant, dn)
	for i := range g.Descendants {
		g.Descendants[i].PK = u.UnpackVarBytes()
		copy(g.Descendants[i].Payload[:], u.UnpackBytes(32))
	}
	g.Signature = u.UnpackVarBytes()
	return g
}

func encodePointer(p *message.Packer, pt record.Pointer) {
	p.PackVarBytes(pt.OwnerPK)
	p.PackLong(pt.Counter)
	p.PackAddress(pt.Target)
	p.PackVarBytes(pt.Signature)
}

func decodePointer(u *message.Unpacker) record.Pointer {
	var pt record.Pointer
	pt.OwnerPK = u.UnpackVarBytes()
	pt.Counter = u.UnpackLong()
	pt.Target = u.UnpackAddress()
	pt.Signature = u.UnpackVarBytes()
	return pt
}

func encodeScratchpad(p *message.Packer, sp record.Scratchpad) {
	p.PackVarBytes(sp.OwnerPK)
	p.PackLong(sp.ContentType)
	p.PackVarBytes(sp.EncryptedPayload)
	p.PackLong(sp.Counter)
	p.PackVarBytes(sp.Signature)
}

func decodeScratchpad(u *message.Unpacker) record.Scratchpad {
	var sp record.Scratchpad
	sp.OwnerPK = u.UnpackVarBytes()
	sp.ContentType = u.UnpackLong()
	sp.EncryptedPayload = u.UnpackVarBytes()
	sp.Counter = u.UnpackLong()
	sp.Signature = u.UnpackVarBytes()
	return sp
}

// EncodeQuote serializes a Quote for GetQuote responses.
func EncodeQuote(q record.Quote) []byte {
	p := message.NewPacker(128)
	p.PackAddress(q.PeerID)
	p.PackVarBytes(q.PeerPublicKey)
	p.PackLong(q.Price)
	exp, _ := q.PriceExpiryTime.UTC().MarshalBinary()
	p.PackVarBytes(exp)
	p.PackInt(q.PriceScheduleVersion)
	p.PackVarBytes(q.Signature)
	return p.Bytes
}

// DecodeQuote is EncodeQuote's inverse.
func DecodeQuote(b []byte) (record.Quote, error) {
	u := message.NewUnpacker(b)
	var q record.Quote
	q.PeerID = u.UnpackAddress()
	q.PeerPublicKey = u.UnpackVarBytes()
	q.Price = u.UnpackLong()
	expBytes := u.UnpackVarBytes()
	q.PriceScheduleVersion = u.UnpackInt()
	q.Signature = u.UnpackVarBytes()
	if u.Err != nil {
		return record.Quote{}, u.Err
	}
	var t time.Time
	if err := t.UnmarshalBinary(expBytes); err == nil {
		q.PriceExpiryTime = t
	}
	return q, nil
}

// EncodeFindNode/DecodeFindNode carry a single target address.
func EncodeFindNode(target addr.Address) []byte {
	p := message.NewPacker(addr.Size)
	p.PackAddress(target)
	return p.Bytes
}

func DecodeFindNode(b []byte) addr.Address {
	return message.NewUnpacker(b).UnpackAddress()
}

// EncodeAddressList/DecodeAddressList carry a FindNode response: the
// set of peer addresses the answering peer knows closest to the
// requested target.
func EncodeAddressList(addrs []addr.Address) []byte {
	p := message.NewPacker(4 + len(addrs)*addr.Size)
	p.PackInt(uint32(len(addrs)))
	for _, a := range addrs {
		p.PackAddress(a)
	}
	return p.Bytes
}

func DecodeAddressList(b []byte) ([]addr.Address, error) {
	u := message.NewUnpacker(b)
	n := u.UnpackCount(addr.Size)
	out := make([]addr.Address, n)
	for i := range out {
		out[i] = u.UnpackAddress()
	}
	if u.Err != nil {
		return nil, u.Err
	}
	return out, nil
}

// EncodeGetRecord/DecodeGetRecord carry the target address and quorum
// selector.
func EncodeGetRecord(target addr.Address, q message.Quorum) []byte {
	p := message.NewPacker(addr.Size + 5)
	p.PackAddress(target)
	p.PackByte(byte(q.Mode))
	p.PackInt(uint32(q.N))
	return p.Bytes
}

func DecodeGetRecord(b []byte) (addr.Address, message.Quorum) {
	u := message.NewUnpacker(b)
	target := u.UnpackAddress()
	mode := message.QuorumMode(u.UnpackByte())
	n := int(u.UnpackInt())
	return target, message.Quorum{Mode: mode, N: n}
}

// EncodeGetQuote/DecodeGetQuote carry the target address, record kind,
// and declared size.
func EncodeGetQuote(target addr.Address, kind record.Kind, size int64) []byte {
	p := message.NewPacker(addr.Size + 9)
	p.PackAddress(target)
	p.PackByte(byte(kind))
	p.PackLong(uint64(size))
	return p.Bytes
}

func DecodeGetQuote(b []byte) (addr.Address, record.Kind, int64) {
	u := message.NewUnpacker(b)
	target := u.UnpackAddress()
	kind := record.Kind(u.UnpackByte())
	size := int64(u.UnpackLong())
	return target, kind, size
}

// EncodeChunkProofChallenge/DecodeChunkProofChallenge carry the
// chunk address and the random nonce.
func EncodeChunkProofChallenge(target addr.Address, nonce [32]byte) []byte {
	p := message.NewPacker(addr.Size + 32)
	p.PackAddress(target)
	p.PackBytes(nonce[:])
	return p.Bytes
}

func DecodeChunkProofChallenge(b []byte) (addr.Address, [32]byte) {
	u := message.NewUnpacker(b)
	target := u.UnpackAddress()
	var nonce [32]byte
	copy(nonce[:], u.UnpackBytes(32))
	return target, nonce
}

// EncodeReplicateKeys/DecodeReplicateKeys carry the advertised holder
// and the batch of keys to fetch.
func EncodeReplicateKeys(holder addr.Address, keys []addr.Address) []byte {
	p := message.NewPacker(addr.Size + 4 + len(keys)*addr.Size)
	p.PackAddress(holder)
	p.PackInt(uint32(len(keys)))
	for _, k := range keys {
		p.PackAddress(k)
	}
	return p.Bytes
}

func DecodeReplicateKeys(b []byte) (addr.Address, []addr.Address) {
	u := message.NewUnpacker(b)
	holder := u.UnpackAddress()
	n := u.UnpackCount(addr.Size)
	keys := make([]addr.Address, n)
	for i := range keys {
		keys[i] = u.UnpackAddress()
	}
	return holder, keys
}
