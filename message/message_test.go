package message

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/antconfig"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/antmetrics"
	"github.com/antstorage/ant/record"
)

func TestPackerUnpackerRoundTrip(t *testing.T) {
	p := NewPacker(0)
	p.PackByte(7)
	p.PackBool(true)
	p.PackInt(0xDEADBEEF)
	p.PackLong(0x0102030405060708)
	a := addr.Address{1, 2, 3}
	p.PackAddress(a)
	p.PackVarBytes([]byte("hello"))
	require.NoError(t, p.Err)

	u := NewUnpacker(p.Bytes)
	require.Equal(t, byte(7), u.UnpackByte())
	require.True(t, u.UnpackBool())
	require.Equal(t, uint32(0xDEADBEEF), u.UnpackInt())
	require.Equal(t, uint64(0x0102030405060708), u.UnpackLong())
	require.Equal(t, a, u.UnpackAddress())
	require.Equal(t, []byte("hello"), u.UnpackVarBytes())
	require.NoError(t, u.Err)
}

func TestUnpackerShortBuffer(t *testing.T) {
	u := NewUnpacker([]byte{1, 2})
	u.UnpackLong()
	require.ErrorIs(t, u.Err, ErrShortBuffer)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	h := Header{Kind: FrameRequest, Op: OpGetRecord, RequestID: 42}
	payload := []byte("payload bytes")
	require.NoError(t, WriteFrame(&buf, h, payload))

	got, gotPayload, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.Equal(t, payload, gotPayload)
}

func TestQuorumMet(t *testing.T) {
	require.True(t, One().Met(1, 5))
	require.False(t, Majority().Met(2, 5))
	require.True(t, Majority().Met(3, 5))
	require.False(t, N(3).Met(2, 5))
	require.True(t, N(3).Met(3, 5))
}

func TestAggregatorPointerReconciliation(t *testing.T) {
	agg := NewAggregator(Majority())
	owner := addr.Address{9}

	low := record.Pointer{OwnerPK: owner[:], Counter: 1, Target: addr.Address{1}}
	high := record.Pointer{OwnerPK: owner[:], Counter: 5, Target: addr.Address{2}}

	agg.Offer(record.WireRecord{Kind: record.KindPointer, Pointer: &low}, 3)
	metNow := agg.Offer(record.WireRecord{Kind: record.KindPointer, Pointer: &high}, 3)
	require.True(t, metNow)

	result := agg.Result()
	require.Equal(t, uint64(5), result.Pointer.Counter)
	require.Equal(t, addr.Address{2}, result.Pointer.Target)
}

// stubTransport always fails the first N calls, then succeeds.
type stubTransport struct {
	failures int
	calls    int
}

func (s *stubTransport) Call(ctx context.Context, peer addr.Address, h Header, payload []byte) (Header, []byte, error) {
	s.calls++
	if s.calls <= s.failures {
		return Header{}, nil, context.DeadlineExceeded
	}
	return Header{Kind: FrameResponse, Op: h.Op, RequestID: h.RequestID}, []byte("ok"), nil
}

func TestClientRetriesThenSucceeds(t *testing.T) {
	cfg := antconfig.Default()
	cfg.MaxRetries = 3
	cfg.RetryBackoff = time.Millisecond
	cfg.Treq = 50 * time.Millisecond

	tr := &stubTransport{failures: 2}
	c := NewClient(tr, cfg, antlog.NewNoop(), antmetrics.NewUnregistered())

	h, payload, err := c.Call(context.Background(), addr.Address{}, OpPing, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), payload)
	require.Equal(t, OpPing, h.Op)
	require.Equal(t, 3, tr.calls)
}

func TestClientUnreachableAfterExhaustingRetries(t *testing.T) {
	cfg := antconfig.Default()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.Treq = 20 * time.Millisecond

	tr := &stubTransport{failures: 10}
	c := NewClient(tr, cfg, antlog.NewNoop(), antmetrics.NewUnregistered())

	_, _, err := c.Call(context.Background(), addr.Address{}, OpPing, nil)
	require.Error(t, err)
	require.Equal(t, 2, tr.calls)
}
