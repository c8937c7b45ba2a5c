// Command antnode runs a storage peer: it listens for peer requests,
// stores and serves records, issues quotes, and keeps its share of the
// network's records replicated.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/antconfig"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/antmetrics"
	"github.com/antstorage/ant/discovery"
	"github.com/antstorage/ant/keys"
	"github.com/antstorage/ant/message"
	"github.com/antstorage/ant/node"
	"github.com/antstorage/ant/peernet"
	"github.com/antstorage/ant/quoter"
	"github.com/antstorage/ant/replication"
	"github.com/antstorage/ant/routing"
	"github.com/antstorage/ant/rpc"
	"github.com/antstorage/ant/store"
	"github.com/antstorage/ant/version"
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

// directory is a mutable peernet.Resolver seeded from -peer flags.
type directory struct {
	mu sync.RWMutex
	m  map[addr.Address]string
}

func (d *directory) Resolve(peer addr.Address) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.m[peer]
	return n, ok
}

func envInt(name string, into *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*into = n
		}
	}
}

func main() {
	listenAddr := flag.String("listen", ":9470", "address to accept peer connections on")
	metricsAddr := flag.String("metrics", "", "address to serve /metrics on (empty disables)")
	storeDir := flag.String("store-dir", "antnode-data", "directory for stored record bodies")
	bootstrapCache := flag.String("bootstrap-cache", "", "path of the bootstrap cache file (empty disables)")
	endpoints := flag.String("bootstrap-endpoints", "", "comma-separated bootstrap HTTPS endpoints")
	showVersion := flag.Bool("version", false, "print version and exit")
	peers := make(peerList)
	flag.Var(peers, "peer", "known peer as <hex-address>@<host:port> (repeatable)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Current)
		return
	}

	log, err := antlog.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "antnode: logger: %v\n", err)
		os.Exit(1)
	}

	cfg := antconfig.Default()
	envInt("ANT_CHUNK_UPLOAD_CONCURRENCY", &cfg.ChunkUploadConcurrency)
	envInt("ANT_CHUNK_DOWNLOAD_CONCURRENCY", &cfg.ChunkDownloadConcurrency)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "antnode: config: %v\n", err)
		os.Exit(1)
	}

	kp, err := keys.Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "antnode: keys: %v\n", err)
		os.Exit(1)
	}
	self := kp.Public.Address()
	log = log.With("self", self.Hex()[:12])
	log.Info("starting", "version", version.Current.String(), "network", version.NetworkVersion)

	reg := prometheus.NewRegistry()
	met, err := antmetrics.New(reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "antnode: metrics: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Routing table and the churn channel the replication engine drains.
	events := make(chan routing.Event, 1024)
	table := routing.New(self, nil, events)

	blobs, err := store.NewFileBlobStore(*storeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "antnode: store: %v\n", err)
		os.Exit(1)
	}
	st := store.New(self, cfg, table, blobs, memdb.New(), log, met)
	if err := st.Load(); err != nil {
		log.Warn("store load", "err", err)
	}

	q := quoter.New(self, kp, cfg, quoter.DefaultConfig(), table, st, time.Now())

	// Outbound plane.
	dir := &directory{m: peers}
	dialer := &net.Dialer{}
	transport := peernet.NewTransport(dir, func(ctx context.Context, network string) (net.Conn, error) {
		return dialer.DialContext(ctx, "tcp", network)
	}, log)
	defer transport.Close()
	client := rpc.New(message.NewClient(transport, cfg, log, met))

	engine := replication.New(self, cfg, table, st,
		replication.RPCPusher{Peer: client},
		replication.RPCFetcher{Peer: client, View: table, K: cfg.CloseGroupSize},
		st, log, met, events, table.Len)
	go engine.Run(ctx)

	// Seed the routing table from the static directory (-peer flags).
	// Peers fetched from bootstrap endpoints are logged and written to
	// the bootstrap cache; they are not added to the routing table.
	for a := range peers {
		table.OnPeerSeen(routing.PeerInfo{Address: a, LastSeen: time.Now()})
	}
	if *endpoints != "" {
		fetcher := discovery.NewFetcher(cfg, log)
		found := fetcher.Fetch(ctx, strings.Split(*endpoints, ","))
		log.Info("bootstrap fetch", "peers", len(found))
		if *bootstrapCache != "" {
			if err := discovery.SaveCache(*bootstrapCache, version.NetworkVersion, found); err != nil {
				log.Warn("bootstrap cache write", "err", err)
			}
		}
	}

	// Inbound plane.
	n := node.New(self, cfg.K, st, q, engine, table, log, met)
	server := peernet.NewServer(n, 256, log)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Warn("metrics server", "err", err)
			}
		}()
	}

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "antnode: listen: %v\n", err)
		os.Exit(1)
	}
	log.Info("listening", "addr", ln.Addr().String())
	if err := server.Serve(ctx, ln); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "antnode: serve: %v\n", err)
		os.Exit(1)
	}
	log.Info("shut down")
}
