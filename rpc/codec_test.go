package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/message"
	"github.com/antstorage/ant/record"
)

func TestWireRecordCodecChunk(t *testing.T) {
	c := record.NewChunk([]byte("hello world"))
	w := record.WireRecord{Kind: record.KindChunk, Chunk: &c}
	got, err := DecodeWireRecord(EncodeWireRecord(w))
	require.NoError(t, err)
	require.Equal(t, c.Name, got.Chunk.Name)
	require.Equal(t, c.Bytes, got.Chunk.Bytes)
	require.Nil(t, got.Payment)
}

func TestWireRecordCodecWithPayment(t *testing.T) {
	c := record.NewChunk([]byte("payload"))
	pay := record.PaymentProof{
		Tag:        record.PaymentNative,
		RecordName: c.Name,
		Kind:       record.KindChunk,
		Payees:     []addr.Address{{0x01}, {0x02}},
		Opaque:     []byte("proof-bytes"),
	}
	w := record.WireRecord{Kind: record.KindChunk, Chunk: &c, Payment: &pay}
	got, err := DecodeWireRecord(EncodeWireRecord(w))
	require.NoError(t, err)
	require.NotNil(t, got.Payment)
	require.Equal(t, pay.Opaque, got.Payment.Opaque)
	require.Equal(t, pay.Payees, got.Payment.Payees)
}

func TestWireRecordCodecPointer(t *testing.T) {
	pt := record.Pointer{OwnerPK: []byte{1, 2, 3}, Counter: 42, Target: addr.Address{0x09}, Signature: []byte{9, 9}}
	w := record.WireRecord{Kind: record.KindPointer, Pointer: &pt}
	got, err := DecodeWireRecord(EncodeWireRecord(w))
	require.NoError(t, err)
	require.Equal(t, pt.Counter, got.Pointer.Counter)
	require.Equal(t, pt.Target, got.Pointer.Target)
}

func TestQuoteCodec(t *testing.T) {
	q := record.Quote{
		PeerID:               addr.Address{0x05},
		PeerPublicKey:         []byte{1, 2, 3, 4},
		Price:                 12345,
		PriceExpiryTime:       time.Now().UTC().Truncate(time.Second),
		PriceScheduleVersion:  7,
		Signature:             []byte{9, 8, 7},
	}
	got, err := DecodeQuote(EncodeQuote(q))
	require.NoError(t, err)
	require.Equal(t, q.Price, got.Price)
	require.Equal(t, q.PriceScheduleVersion, got.PriceScheduleVersion)
	require.True(t, q.PriceExpiryTime.Equal(got.PriceExpiryTime))
}

func TestGetRecordCodec(t *testing.T) {
	target := addr.Address{0x0a}
	q := message.N(3)
	gotTarget, gotQ := DecodeGetRecord(EncodeGetRecord(target, q))
	require.Equal(t, target, gotTarget)
	require.Equal(t, q, gotQ)
}

func TestReplicateKeysCodec(t *testing.T) {
	holder := addr.Address{0x11}
	keys := []addr.Address{{0x01}, {0x02}, {0x03}}
	gotHolder, gotKeys := DecodeReplicateKeys(EncodeReplicateKeys(holder, keys))
	require.Equal(t, holder, gotHolder)
	require.Equal(t, keys, gotKeys)
}
