package record

import (
	"bytes"
	"fmt"
	"time"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/keys"
)

// Quote is a signed, time-limited price offer from a storing peer
// with an expiry.
type Quote struct {
	PeerID               addr.Address
	PeerPublicKey        []byte
	Price                uint64
	PriceExpiryTime      time.Time
	PriceScheduleVersion uint32
	Signature            []byte
}

// SigningBytes is the canonical byte sequence a Quote's signature covers.
func (q Quote) SigningBytes(recordName addr.Address, kind Kind) []byte {
	var buf bytes.Buffer
	buf.Write(q.PeerID[:])
	var p [8]byte
	putUint64(p[:], q.Price)
	buf.Write(p[:])
	exp, _ := q.PriceExpiryTime.UTC().MarshalBinary()
	buf.Write(exp)
	var v [4]byte
	putUint32LE(v[:], q.PriceScheduleVersion)
	buf.Write(v[:])
	buf.Write(recordName[:])
	buf.WriteByte(byte(kind))
	return buf.Bytes()
}

// Verify checks the quote's signature and that now lies within its
// expiry, tolerating clockSkew of clock drift between peers.
func (q Quote) Verify(recordName addr.Address, kind Kind, now time.Time, clockSkew time.Duration) error {
	pub, err := keys.PublicKeyFromBytes(q.PeerPublicKey)
	if err != nil {
		return fmt.Errorf("record: quote peer key: %w", err)
	}
	if !keys.Verify(pub, q.SigningBytes(recordName, kind), q.Signature) {
		return anterrs.ErrInvalidSignature
	}
	if now.After(q.PriceExpiryTime.Add(clockSkew)) {
		return anterrs.ErrQuoteExpired
	}
	return nil
}
