// Command antup is a scriptable client: it uploads a file's bytes into
// the network and downloads them back by data map.
//
//	antup -peer <hex>@host:port put  <file> <mapfile>
//	antup -peer <hex>@host:port get  <mapfile> <outfile>
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/antconfig"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/coordinator"
	"github.com/antstorage/ant/keys"
	"github.com/antstorage/ant/message"
	"github.com/antstorage/ant/peernet"
	"github.com/antstorage/ant/record"
	"github.com/antstorage/ant/routing"
	"github.com/antstorage/ant/rpc"
	"github.com/antstorage/ant/selfenc"
)

// peerList collects repeated -peer flags of the form
// <hex-address>@<host:port>.
type peerList map[addr.Address]string

func (p peerList) String() string { return fmt.Sprintf("%d peers", len(p)) }

func (p peerList) Set(v string) error {
	hexAddr, hostPort, ok := strings.Cut(v, "@")
	if !ok {
		return fmt.Errorf("want <hex-address>@<host:port>, got %q", v)
	}
	a, err := addr.FromHex(hexAddr)
	if err != nil {
		return err
	}
	p[a] = hostPort
	return nil
}

type staticDirectory struct {
	mu sync.RWMutex
	m  map[addr.Address]string
}

func (d *staticDirectory) Resolve(peer addr.Address) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.m[peer]
	return n, ok
}

// devOracle settles payments by fabricating a Native proof covering the
// quoted payees. Real deployments substitute a settlement-backed
// implementation; the record-storing peers only check payee ranges and
// quote validity against what this proof asserts.
type devOracle struct{}

func (devOracle) Settle(_ context.Context, quotes []record.Quote, recordName addr.Address, kind record.Kind) (record.PaymentProof, error) {
	payees := make([]addr.Address, len(quotes))
	for i, q := range quotes {
		payees[i] = q.PeerID
	}
	return record.PaymentProof{
		Tag:        record.PaymentNative,
		RecordName: recordName,
		Kind:       kind,
		Payees:     payees,
	}, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "antup: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	peers := make(peerList)
	flag.Var(peers, "peer", "storage peer as <hex-address>@<host:port> (repeatable)")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall operation deadline")
	flag.Parse()

	args := flag.Args()
	if len(args) != 3 {
		fatalf("usage: antup -peer ... {put|get} <in> <out>")
	}
	verb, in, out := args[0], args[1], args[2]

	if len(peers) == 0 {
		fatalf("at least one -peer is required")
	}

	log := antlog.NewNoop()
	cfg := antconfig.Default()
	cfg.CloseGroupSize = min(cfg.CloseGroupSize, len(peers))

	kp, err := keys.Generate()
	if err != nil {
		fatalf("keys: %v", err)
	}

	view := routing.New(kp.Public.Address(), nil, nil)
	for a := range peers {
		view.OnPeerSeen(routing.PeerInfo{Address: a, LastSeen: time.Now()})
	}

	dialer := &net.Dialer{}
	transport := peernet.NewTransport(&staticDirectory{m: peers}, func(ctx context.Context, network string) (net.Conn, error) {
		return dialer.DialContext(ctx, "tcp", network)
	}, log)
	defer transport.Close()
	client := rpc.New(message.NewClient(transport, cfg, log, nil))

	c := coordinator.New(kp.Public.Address(), kp, cfg, view, client, devOracle{}, nil, log, nil)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch verb {
	case "put":
		b, err := os.ReadFile(in)
		if err != nil {
			fatalf("read %s: %v", in, err)
		}
		res, err := c.Upload(ctx, b, false)
		if err != nil {
			fatalf("upload: %v", err)
		}
		if err := os.WriteFile(out, selfenc.Serialize(res.DataMap), 0o600); err != nil {
			fatalf("write data map: %v", err)
		}
		fmt.Printf("stored %d bytes in %d chunks; data map written to %s\n",
			len(b), len(res.DataMap.Chunks), out)

	case "get":
		raw, err := os.ReadFile(in)
		if err != nil {
			fatalf("read data map %s: %v", in, err)
		}
		dm, err := selfenc.Deserialize(raw)
		if err != nil {
			fatalf("parse data map: %v", err)
		}
		f, err := os.Create(out)
		if err != nil {
			fatalf("create %s: %v", out, err)
		}
		defer f.Close()
		if err := c.DownloadToWriter(ctx, dm, f); err != nil {
			fatalf("download: %v", err)
		}
		fmt.Printf("wrote %d bytes to %s\n", dm.TotalLen, out)

	default:
		fatalf("unknown command %q (want put or get)", verb)
	}
}
