// Package peernet is the reference message.Transport implementation:
// a reliable, ordered stream transport over net.Conn, framing requests
// and responses with message.WriteFrame/ReadFrame. QUIC, TLS, and NAT
// traversal live below this layer; everything here assumes only a
// reachable, reliable, ordered stream per peer, supplied over plain
// TCP so the rest of the system has a concrete, testable Transport to
// drive against.
package peernet

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/message"
)

// Resolver maps a peer's logical Address to a dial-able network
// address (host:port), the directory a discovery/routing integration
// layer maintains outside this package's scope.
type Resolver interface {
	Resolve(peer addr.Address) (network string, ok bool)
}

// StaticResolver is a fixed-map Resolver, convenient for tests and for
// small fixed-topology deployments.
type StaticResolver map[addr.Address]string

func (s StaticResolver) Resolve(peer addr.Address) (string, bool) {
	n, ok := s[peer]
	return n, ok
}

// pendingCall is one in-flight request awaiting its correlated
// response, keyed by RequestID within a single connection.
type pendingCall struct {
	resultCh chan callResult
}

type callResult struct {
	header  message.Header
	payload []byte
	err     error
}

// conn wraps one persistent outbound connection to a peer: a single
// writer goroutine-free design (callers write directly, serialized by
// writeMu) plus one background reader goroutine demultiplexing
// responses onto pending calls by RequestID: responses are correlated
// by id, not by arrival order, so reordering is permitted.
type conn struct {
	nc net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]*pendingCall
	closed  bool
}

func newConn(nc net.Conn) *conn {
	c := &conn{nc: nc, pending: make(map[uint64]*pendingCall)}
	go c.readLoop()
	return c
}

func (c *conn) readLoop() {
	for {
		h, payload, err := message.ReadFrame(c.nc)
		if err != nil {
			c.failAll(err)
			return
		}
		if h.Kind != message.FrameResponse {
			continue // peernet.Transport.Call only awaits responses
		}
		c.mu.Lock()
		p, ok := c.pending[h.RequestID]
		if ok {
			delete(c.pending, h.RequestID)
		}
		c.mu.Unlock()
		if ok {
			p.resultCh <- callResult{header: h, payload: payload}
		}
	}
}

func (c *conn) failAll(err error) {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, p := range pending {
		p.resultCh <- callResult{err: err}
	}
	c.nc.Close()
}

// call sends req/payload and blocks until its matching response
// arrives or ctx is cancelled.
func (c *conn) call(ctx context.Context, req message.Header, payload []byte) (message.Header, []byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return message.Header{}, nil, anterrs.ErrTransport
	}
	p := &pendingCall{resultCh: make(chan callResult, 1)}
	c.pending[req.RequestID] = p
	c.mu.Unlock()

	c.writeMu.Lock()
	err := message.WriteFrame(c.nc, req, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return message.Header{}, nil, fmt.Errorf("peernet: write: %w", err)
	}

	select {
	case r := <-p.resultCh:
		if r.err != nil {
			return message.Header{}, nil, fmt.Errorf("peernet: %w", r.err)
		}
		return r.header, r.payload, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return message.Header{}, nil, ctx.Err()
	}
}

// Transport is a message.Transport backed by pooled net.Conn
// connections, one per remote peer, dialed lazily and reused across
// calls.
type Transport struct {
	resolver Resolver
	dial     func(ctx context.Context, network string) (net.Conn, error)
	log      antlog.Logger

	mu    sync.Mutex
	conns map[addr.Address]*conn
}

// NewTransport constructs a Transport. dial defaults to a plain TCP
// dialer when nil; tests may supply an in-memory net.Pipe-based dialer.
func NewTransport(resolver Resolver, dial func(ctx context.Context, network string) (net.Conn, error), log antlog.Logger) *Transport {
	if dial == nil {
		dial = func(ctx context.Context, network string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", network)
		}
	}
	return &Transport{resolver: resolver, dial: dial, log: log, conns: make(map[addr.Address]*conn)}
}

// Call implements message.Transport.
func (t *Transport) Call(ctx context.Context, peer addr.Address, h message.Header, payload []byte) (message.Header, []byte, error) {
	c, err := t.connFor(ctx, peer)
	if err != nil {
		return message.Header{}, nil, err
	}
	rh, rp, err := c.call(ctx, h, payload)
	if err != nil {
		t.drop(peer, c)
	}
	return rh, rp, err
}

func (t *Transport) connFor(ctx context.Context, peer addr.Address) (*conn, error) {
	t.mu.Lock()
	if c, ok := t.conns[peer]; ok {
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()

	network, ok := t.resolver.Resolve(peer)
	if !ok {
		return nil, fmt.Errorf("peernet: no known address for peer %s: %w", peer.Hex(), anterrs.ErrUnreachable)
	}
	nc, err := t.dial(ctx, network)
	if err != nil {
		if t.log != nil {
			t.log.Warn("dial failed", "peer", peer.Hex(), "err", err)
		}
		return nil, fmt.Errorf("peernet: dial %s: %w", network, err)
	}
	c := newConn(nc)

	t.mu.Lock()
	t.conns[peer] = c
	t.mu.Unlock()
	return c, nil
}

func (t *Transport) drop(peer addr.Address, stale *conn) {
	t.mu.Lock()
	if t.conns[peer] == stale {
		delete(t.conns, peer)
	}
	t.mu.Unlock()
}

// Close closes every pooled connection.
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.conns {
		c.nc.Close()
	}
	t.conns = make(map[addr.Address]*conn)
}
