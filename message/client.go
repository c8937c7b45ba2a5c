package message

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/antconfig"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/antmetrics"
)

// Transport sends one request frame to peer and blocks for its
// response frame, or returns an error on disconnect/cancellation. It is
// the message plane's sole dependency on an actual network; peernet
// supplies the real implementation, tests supply a stub.
type Transport interface {
	Call(ctx context.Context, peer addr.Address, h Header, payload []byte) (Header, []byte, error)
}

// Client wraps a Transport with the retry/backoff/timeout contract:
// per-call timeout Treq, MaxRetries attempts with exponential backoff,
// failing Unreachable once exhausted. Correlation is synchronous
// call/response; there is no separate async callback registration step.
type Client struct {
	transport Transport
	cfg       antconfig.Parameters
	log       antlog.Logger
	met       *antmetrics.Metrics
	nextID    uint64
}

// NewClient constructs a Client.
func NewClient(t Transport, cfg antconfig.Parameters, log antlog.Logger, met *antmetrics.Metrics) *Client {
	return &Client{transport: t, cfg: cfg, log: log, met: met, nextID: rand.Uint64()}
}

// Call performs op against peer with the given request payload,
// making up to cfg.MaxRetries attempts in total, with exponential
// backoff between them, on transport failure or per-attempt timeout. Non-idempotent ops
// (StoreRecord) are still retried: a repeated store of the same
// record is harmless because the record is content-addressed.
func (c *Client) Call(ctx context.Context, peer addr.Address, op Op, payload []byte) (Header, []byte, error) {
	reqID := c.allocRequestID()
	req := Header{Kind: FrameRequest, Op: op, RequestID: reqID}

	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 && c.met != nil {
			c.met.TransportRetries.Inc()
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Treq)
		h, resp, err := c.transport.Call(attemptCtx, peer, req, payload)
		cancel()

		if err == nil {
			return h, resp, nil
		}

		if c.log != nil {
			c.log.Warn("transport call failed",
				"op", op.String(),
				"attempt", attempt,
				"err", err)
		}

		if ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(c.cfg.RetryDelay(attempt)):
		}
	}

	if c.met != nil {
		c.met.TransportTimeouts.Inc()
	}
	return Header{}, nil, anterrs.ErrUnreachable
}

func (c *Client) allocRequestID() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}
