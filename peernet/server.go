package peernet

import (
	"context"
	"net"
	"sync"

	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/message"
)

// Handler answers one inbound request frame with a response payload.
// Commands (StoreRecord, ReplicateKeys, ChunkProofChallenge) and
// queries share this shape; one-way commands simply return an empty
// acknowledging payload.
type Handler interface {
	Handle(ctx context.Context, h message.Header, payload []byte) ([]byte, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, h message.Header, payload []byte) ([]byte, error)

func (f HandlerFunc) Handle(ctx context.Context, h message.Header, payload []byte) ([]byte, error) {
	return f(ctx, h, payload)
}

// Server accepts inbound stream connections and dispatches request
// frames to Handler, bounded by a fixed-size worker channel: when
// handlers fall behind, inbound requests are rejected at once rather
// than queued unboundedly. The rejection is a response frame with an
// empty payload; ErrBusy is logged but not sent to the caller.
type Server struct {
	handler Handler
	log     antlog.Logger
	sem     chan struct{}

	mu       sync.Mutex
	listener net.Listener
}

// NewServer constructs a Server with the given inbound concurrency
// bound.
func NewServer(handler Handler, maxInFlight int, log antlog.Logger) *Server {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Server{handler: handler, log: log, sem: make(chan struct{}, maxInFlight)}
}

// Serve accepts connections on ln until ctx is cancelled or Accept
// fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.serveConn(ctx, nc)
	}
}

func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	defer nc.Close()
	var writeMu sync.Mutex
	for {
		h, payload, err := message.ReadFrame(nc)
		if err != nil {
			return
		}
		if h.Kind != message.FrameRequest {
			continue
		}
		go s.handleOne(ctx, nc, &writeMu, h, payload)
	}
}

func (s *Server) handleOne(ctx context.Context, nc net.Conn, writeMu *sync.Mutex, h message.Header, payload []byte) {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	default:
		s.respond(nc, writeMu, h, nil, anterrs.ErrBusy)
		return
	}

	resp, err := s.handler.Handle(ctx, h, payload)
	s.respond(nc, writeMu, h, resp, err)
}

func (s *Server) respond(nc net.Conn, writeMu *sync.Mutex, req message.Header, payload []byte, err error) {
	resp := message.Header{Kind: message.FrameResponse, Op: req.Op, RequestID: req.RequestID}
	if err != nil {
		// Errors ride back as an empty payload; the message plane's
		// Client only distinguishes transport failure (no response at
		// all) from an application-level error encoded by the caller's
		// own payload framing, so this is logged rather than
		// re-encoded here.
		if s.log != nil {
			s.log.Warn("handler error", "request_id", req.RequestID, "err", err)
		}
		payload = nil
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = message.WriteFrame(nc, resp, payload)
}
