package replication

import (
	"context"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/message"
	"github.com/antstorage/ant/record"
	"github.com/antstorage/ant/rpc"
)

// RPCPusher implements Pusher over rpc.PeerClient, the concrete wiring
// between this engine's decisions and the wire.
type RPCPusher struct {
	Peer *rpc.PeerClient
}

func (p RPCPusher) PushKeys(ctx context.Context, recipient, holder addr.Address, keys []addr.Address) error {
	return p.Peer.ReplicateKeys(ctx, recipient, holder, keys)
}

// RPCFetcher implements RecordFetcher over rpc.PeerClient: the
// recipient-side fetch path — try the advertised
// holder first, fall back to a network-wide majority-quorum read.
type RPCFetcher struct {
	Peer *rpc.PeerClient
	View RoutingView
	K    int
}

func (f RPCFetcher) FetchFromHolder(ctx context.Context, holder, key addr.Address) (record.WireRecord, error) {
	w, err := f.Peer.GetReplicatedRecord(ctx, holder, key)
	if err != nil {
		return record.WireRecord{}, err
	}
	if err := w.Verify(); err != nil {
		return record.WireRecord{}, err
	}
	return w, nil
}

func (f RPCFetcher) FetchQuorum(ctx context.Context, key addr.Address) (record.WireRecord, error) {
	peers := f.View.Closest(key, f.K)
	if len(peers) == 0 {
		return record.WireRecord{}, anterrs.ErrUnreachable
	}

	agg := message.NewAggregator(message.Majority())
	for _, p := range peers {
		w, err := f.Peer.GetRecord(ctx, p.Address, key, message.Majority())
		if err != nil {
			continue
		}
		if agg.Offer(w, len(peers)) {
			break
		}
	}
	if agg.Responded() == 0 {
		return record.WireRecord{}, anterrs.ErrRecordNotFound
	}
	return agg.Result(), nil
}
