package peernet

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/message"
)

// pipeListener adapts net.Pipe to the net.Listener interface so Server
// can be driven without a real socket.
type pipeListener struct {
	conns chan net.Conn
	done  chan struct{}
}

func newPipeListener() *pipeListener {
	return &pipeListener{conns: make(chan net.Conn), done: make(chan struct{})}
}

func (p *pipeListener) Accept() (net.Conn, error) {
	select {
	case c := <-p.conns:
		return c, nil
	case <-p.done:
		return nil, net.ErrClosed
	}
}
func (p *pipeListener) Close() error   { close(p.done); return nil }
func (p *pipeListener) Addr() net.Addr { return pipeAddr{} }

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

func TestTransportCallRoundTrip(t *testing.T) {
	ln := newPipeListener()
	handler := HandlerFunc(func(ctx context.Context, h message.Header, payload []byte) ([]byte, error) {
		out := append([]byte("echo:"), payload...)
		return out, nil
	})
	srv := NewServer(handler, 4, antlog.NewNoop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, ln)

	peer := addr.Address{0x01}
	dial := func(ctx context.Context, network string) (net.Conn, error) {
		client, server := net.Pipe()
		ln.conns <- server
		return client, nil
	}
	tr := NewTransport(StaticResolver{peer: "pipe"}, dial, antlog.NewNoop())
	defer tr.Close()

	h := message.Header{Kind: message.FrameRequest, Op: message.OpPing, RequestID: 1}
	rh, payload, err := tr.Call(context.Background(), peer, h, []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, message.FrameResponse, rh.Kind)
	require.Equal(t, uint64(1), rh.RequestID)
	require.Equal(t, "echo:hi", string(payload))
}

func TestTransportUnknownPeer(t *testing.T) {
	tr := NewTransport(StaticResolver{}, nil, antlog.NewNoop())
	_, _, err := tr.Call(context.Background(), addr.Address{0x02}, message.Header{}, nil)
	require.Error(t, err)
}

func TestTransportTimeoutOnUnresponsiveServer(t *testing.T) {
	ln := newPipeListener()
	// A handler that never responds within the test's deadline.
	handler := HandlerFunc(func(ctx context.Context, h message.Header, payload []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	srv := NewServer(handler, 4, antlog.NewNoop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, ln)

	peer := addr.Address{0x03}
	dial := func(ctx context.Context, network string) (net.Conn, error) {
		client, server := net.Pipe()
		ln.conns <- server
		return client, nil
	}
	tr := NewTransport(StaticResolver{peer: "pipe"}, dial, antlog.NewNoop())
	defer tr.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer callCancel()
	_, _, err := tr.Call(callCtx, peer, message.Header{Op: message.OpPing, RequestID: 7}, nil)
	require.Error(t, err)
}
