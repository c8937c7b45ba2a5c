// Package discovery implements the bootstrap/discovery external
// interface: clients fetch an initial peer list from a
// small set of well-known HTTPS endpoints, each returning either a JSON
// document or a newline-delimited list of canonical peer multiaddresses.
// The peer core only consumes the resulting []PeerAddr, never the
// fetch mechanics.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/antstorage/ant/antconfig"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/version"
)

// PeerAddr is a parsed, validated canonical peer address of the form
// "/ip4/<addr>/udp/<port>/quic-v1[/p2p/<peer_id>]".
type PeerAddr struct {
	IP     string
	Port   string
	PeerID string // empty if the /p2p/<peer_id> component was absent
	Raw    string
}

// multiaddrPattern matches the canonical form; addresses missing any
// required component (ip4, udp port, quic-v1) are discarded.
var multiaddrPattern = regexp.MustCompile(`^/ip4/([0-9.]+)/udp/([0-9]+)/quic-v1(?:/p2p/([A-Za-z0-9]+))?$`)

// ParseMultiaddr validates and parses one canonical peer multiaddress.
// It returns ok=false for anything that doesn't match the required
// ip4/udp/quic-v1 shape, including the legacy/experimental transports
// this layer does not model.
func ParseMultiaddr(s string) (PeerAddr, bool) {
	s = strings.TrimSpace(s)
	m := multiaddrPattern.FindStringSubmatch(s)
	if m == nil {
		return PeerAddr{}, false
	}
	return PeerAddr{IP: m[1], Port: m[2], PeerID: m[3], Raw: s}, true
}

// bootstrapDoc is the JSON shape one endpoint may return.
type bootstrapDoc struct {
	NetworkVersion string   `json:"network_version"`
	Peers          []string `json:"peers"`
}

// Fetcher is the HTTPS bootstrap-endpoint reader. NewFetcher gives it a
// net/http client with BootstrapTimeout as the per-request timeout.
type Fetcher struct {
	cfg        antconfig.Parameters
	log        antlog.Logger
	httpClient *http.Client
}

// NewFetcher constructs a Fetcher using cfg's MaxConcurrentFetches,
// BootstrapTimeout, BootstrapRetries, and BootstrapMaxAddrs knobs.
func NewFetcher(cfg antconfig.Parameters, log antlog.Logger) *Fetcher {
	return &Fetcher{
		cfg: cfg,
		log: log,
		httpClient: &http.Client{
			Timeout: cfg.BootstrapTimeout,
		},
	}
}

// Fetch concatenates peer addresses from every endpoint, in the order
// the endpoints are listed, stopping once BootstrapMaxAddrs is
// reached. Endpoints are queried with concurrency bounded by
// MaxConcurrentFetches; a failing endpoint (after 1+BootstrapRetries
// attempts) contributes nothing and does not fail the whole fetch.
func (f *Fetcher) Fetch(ctx context.Context, endpoints []string) []PeerAddr {
	type indexed struct {
		idx   int
		peers []PeerAddr
	}

	results := make([]indexed, len(endpoints))
	sem := make(chan struct{}, f.cfg.MaxConcurrentFetches)
	var wg sync.WaitGroup

	for i, ep := range endpoints {
		wg.Add(1)
		go func(i int, ep string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			peers := f.fetchOneWithRetry(ctx, ep)
			results[i] = indexed{idx: i, peers: peers}
		}(i, ep)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].idx < results[j].idx })

	out := make([]PeerAddr, 0, f.cfg.BootstrapMaxAddrs)
	for _, r := range results {
		for _, p := range r.peers {
			if len(out) >= f.cfg.BootstrapMaxAddrs {
				return out
			}
			out = append(out, p)
		}
	}
	return out
}

func (f *Fetcher) fetchOneWithRetry(ctx context.Context, endpoint string) []PeerAddr {
	var last error
	for attempt := 0; attempt <= f.cfg.BootstrapRetries; attempt++ {
		peers, err := f.fetchOne(ctx, endpoint)
		if err == nil {
			return peers
		}
		last = err
		if ctx.Err() != nil {
			break
		}
	}
	if f.log != nil {
		f.log.Warn("bootstrap endpoint failed", "endpoint", endpoint, "err", last)
	}
	return nil
}

func (f *Fetcher) fetchOne(ctx context.Context, endpoint string) ([]PeerAddr, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery: %s returned status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	return parseBody(body), nil
}

// parseBody accepts either JSON shape ({network_version, peers: [...]})
// or a newline-delimited list of multiaddresses. A JSON document
// advertising a different network generation is discarded whole: its
// peers speak a protocol we cannot.
func parseBody(body []byte) []PeerAddr {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var doc bootstrapDoc
		if err := json.Unmarshal(body, &doc); err == nil {
			if doc.NetworkVersion != "" && doc.NetworkVersion != version.NetworkVersion {
				return nil
			}
			return parseLines(doc.Peers)
		}
	}
	return parseLines(strings.Split(trimmed, "\n"))
}

func parseLines(lines []string) []PeerAddr {
	out := make([]PeerAddr, 0, len(lines))
	for _, l := range lines {
		if p, ok := ParseMultiaddr(l); ok {
			out = append(out, p)
		}
	}
	return out
}
