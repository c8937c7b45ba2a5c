// Package coordinator implements the client-side upload/download
// pipeline: chunking, payment, dispersion, reassembly, and the
// mutable-record (Pointer/Scratchpad) write paths, all with bounded
// parallelism, retry, and cancellation. The Coordinator is a plain
// struct over narrow collaborator interfaces (routing view, RPC
// client, payment oracle) rather than a god object.
package coordinator

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/antconfig"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/antmetrics"
	"github.com/antstorage/ant/hashing"
	"github.com/antstorage/ant/keys"
	"github.com/antstorage/ant/message"
	"github.com/antstorage/ant/record"
	"github.com/antstorage/ant/routing"
	"github.com/antstorage/ant/selfenc"
)

// RoutingView is the subset of routing.Table the coordinator needs to
// find the close group for a chunk or mutable-record address.
type RoutingView interface {
	Closest(target addr.Address, n int) []routing.PeerInfo
}

// PeerOps is the subset of rpc.PeerClient the coordinator drives,
// narrowed to an interface (as store.RoutingView and quoter.RoutingView
// are) so tests can supply a stub instead of standing up a real
// message.Client and transport.
type PeerOps interface {
	GetQuote(ctx context.Context, peer, target addr.Address, kind record.Kind, size int64) (record.Quote, error)
	StoreRecord(ctx context.Context, peer addr.Address, w record.WireRecord) error
	ChunkProofChallenge(ctx context.Context, peer, target addr.Address, nonce [32]byte) ([]byte, error)
	GetRecord(ctx context.Context, peer, target addr.Address, q message.Quorum) (record.WireRecord, error)
}

// PaymentOracle settles payment for a set of quotes against the
// external payment-settlement collaborator (on-chain/EVM or native).
// The coordinator never inspects how settlement happens, only the
// PaymentProof it gets back.
type PaymentOracle interface {
	Settle(ctx context.Context, quotes []record.Quote, recordName addr.Address, kind record.Kind) (record.PaymentProof, error)
}

// Coordinator drives the upload/download pipelines.
type Coordinator struct {
	self   addr.Address
	keys   *keys.KeyPair
	cfg    antconfig.Parameters
	view   RoutingView
	peer   PeerOps
	oracle PaymentOracle
	cache  ChunkCache
	log    antlog.Logger
	met    *antmetrics.Metrics
}

// New constructs a Coordinator. peer is typically an *rpc.PeerClient,
// narrowed here to PeerOps so tests can substitute a stub.
func New(self addr.Address, kp *keys.KeyPair, cfg antconfig.Parameters, view RoutingView, peer PeerOps, oracle PaymentOracle, cache ChunkCache, log antlog.Logger, met *antmetrics.Metrics) *Coordinator {
	if cache == nil {
		cache = NewMemoryChunkCache()
	}
	return &Coordinator{self: self, keys: kp, cfg: cfg, view: view, peer: peer, oracle: oracle, cache: cache, log: log, met: met}
}

// UploadResult is what Upload returns: the data map (always available
// to the caller, public or not) and, if public, the address the data
// map chunk was stored at so other clients can fetch it by address
// alone.
type UploadResult struct {
	DataMap    selfenc.DataMap
	MapAddress addr.Address // zero if Public was false
	Public     bool
}

// Upload self-encrypts b and disperses every chunk to the close group
// of its name. If public, the serialized data
// map is itself uploaded as a chunk so the content can be fetched by
// address alone; if private, the caller is expected to keep
// result.DataMap itself.
func (c *Coordinator) Upload(ctx context.Context, b []byte, public bool) (UploadResult, error) {
	dm, chunks, err := selfenc.Encrypt(b)
	if err != nil {
		return UploadResult{}, err
	}

	if err := c.uploadChunks(ctx, chunks); err != nil {
		return UploadResult{}, err
	}

	result := UploadResult{DataMap: dm, Public: public}
	if public {
		mapChunk := record.NewChunk(selfenc.Serialize(dm))
		if err := c.uploadOne(ctx, mapChunk); err != nil {
			return UploadResult{}, fmt.Errorf("coordinator: upload data map: %w", err)
		}
		result.MapAddress = mapChunk.Name
	}
	return result, nil
}

// uploadChunks disperses every chunk with parallelism bounded by
// ChunkUploadConcurrency, preserving partial progress on failure:
// already-stored chunks stay stored, and a retried Upload of the same
// bytes is idempotent because chunk names are content-addressed.
func (c *Coordinator) uploadChunks(ctx context.Context, chunks selfenc.Chunks) error {
	sem := make(chan struct{}, c.cfg.ChunkUploadConcurrency)
	var wg sync.WaitGroup
	var errs anterrs.Collector

	for _, chunk := range chunks {
		chunk := chunk
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := c.uploadOne(ctx, chunk); err != nil {
				errs.Add(fmt.Errorf("chunk %s: %w", chunk.Name.Hex(), err))
			}
		}()
	}
	wg.Wait()
	return errs.Err()
}

// uploadOne runs one chunk through the full dispersal sequence:
// quote, settle, store (quorum-one, retried per peer), then verify via
// a random-nonce chunk-proof challenge against up to two payees.
func (c *Coordinator) uploadOne(ctx context.Context, chunk record.Chunk) error {
	peers := c.view.Closest(chunk.Name, c.cfg.CloseGroupSize)
	if len(peers) == 0 {
		return anterrs.ErrUnreachable
	}

	quotes, payees, err := c.collectQuotes(ctx, peers, chunk.Name, record.KindChunk, int64(len(chunk.Bytes)))
	if err != nil {
		return err
	}

	proof, err := c.oracle.Settle(ctx, quotes, chunk.Name, record.KindChunk)
	if err != nil {
		return fmt.Errorf("coordinator: settle payment: %w", err)
	}
	proof.Payees = payees

	w := record.WireRecord{Kind: record.KindChunk, Chunk: &chunk, Payment: &proof}
	if err := c.storeWithQuorumOne(ctx, payees, w); err != nil {
		return err
	}

	return c.verifyChunk(ctx, chunk, payees)
}

// collectQuotes requests a quote from every candidate peer and selects
// the cheapest consistent set covering CloseGroupSize payees.
func (c *Coordinator) collectQuotes(ctx context.Context, peers []routing.PeerInfo, name addr.Address, kind record.Kind, size int64) ([]record.Quote, []addr.Address, error) {
	type result struct {
		quote record.Quote
		err   error
	}
	results := make([]result, len(peers))
	var wg sync.WaitGroup
	for i, p := range peers {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := c.peer.GetQuote(ctx, p.Address, name, kind, size)
			results[i] = result{quote: q, err: err}
		}()
	}
	wg.Wait()

	var quotes []record.Quote
	for _, r := range results {
		if r.err == nil {
			quotes = append(quotes, r.quote)
		}
	}
	if len(quotes) < c.cfg.CloseGroupSize {
		if c.log != nil {
			c.log.Warn("insufficient quotes", "got", len(quotes), "want", c.cfg.CloseGroupSize)
		}
		if len(quotes) == 0 {
			return nil, nil, anterrs.ErrUnreachable
		}
	}

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Price < quotes[j].Price })
	if len(quotes) > c.cfg.CloseGroupSize {
		quotes = quotes[:c.cfg.CloseGroupSize]
	}

	payees := make([]addr.Address, len(quotes))
	for i, q := range quotes {
		payees[i] = q.PeerID
	}
	return quotes, payees, nil
}

// storeWithQuorumOne writes w to every payee, retrying each with
// bounded attempts and exponential backoff, and succeeds once at least
// one payee has accepted it.
func (c *Coordinator) storeWithQuorumOne(ctx context.Context, payees []addr.Address, w record.WireRecord) error {
	var wg sync.WaitGroup
	accepted := make([]bool, len(payees))
	for i, p := range payees {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			accepted[i] = c.storeWithRetry(ctx, p, w)
		}()
	}
	wg.Wait()

	for _, ok := range accepted {
		if ok {
			return nil
		}
	}
	return anterrs.ErrUnreachable
}

func (c *Coordinator) storeWithRetry(ctx context.Context, peer addr.Address, w record.WireRecord) bool {
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.peer.StoreRecord(ctx, peer, w); err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.cfg.RetryDelay(attempt)):
		}
	}
	return false
}

// verifyChunk issues a random-nonce ChunkProofChallenge to the first
// two payees (or fewer, if fewer were paid) and checks each returned
// proof against H(nonce || chunk bytes) computed from the locally-known
// encrypted chunk. It succeeds when at least one proof matches.
func (c *Coordinator) verifyChunk(ctx context.Context, chunk record.Chunk, payees []addr.Address) error {
	n := 2
	if len(payees) < n {
		n = len(payees)
	}
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}
	want := expectedChunkProof(nonce, chunk.Bytes)

	verified := 0
	for _, p := range payees[:n] {
		got, err := c.peer.ChunkProofChallenge(ctx, p, chunk.Name, nonce)
		if err != nil {
			continue
		}
		if bytes.Equal(got, want[:]) {
			verified++
		}
	}
	if verified == 0 {
		return fmt.Errorf("coordinator: chunk proof challenge failed for %s", chunk.Name.Hex())
	}
	return nil
}

// expectedChunkProof is the proof a storing peer is expected to answer
// a ChunkProofChallenge with: H(nonce || chunk bytes), proving
// possession without transferring the chunk itself.
func expectedChunkProof(nonce [32]byte, chunkBytes []byte) addr.Address {
	buf := make([]byte, 0, 32+len(chunkBytes))
	buf = append(buf, nonce[:]...)
	buf = append(buf, chunkBytes...)
	return hashing.H(buf)
}

// fetchChunk tries the local cache, then the network, honoring
// ChunkDownloadConcurrency's caller-side bounding and the message
// plane's own retry/backoff.
func (c *Coordinator) fetchChunk(ctx context.Context, name addr.Address) ([]byte, error) {
	if b, ok := c.cache.Get(name); ok {
		return b, nil
	}

	peers := c.view.Closest(name, c.cfg.CloseGroupSize)
	var lastErr error = anterrs.ErrRecordNotFound
	for _, p := range peers {
		w, err := c.peer.GetRecord(ctx, p.Address, name, message.One())
		if err != nil {
			lastErr = err
			continue
		}
		if w.Kind != record.KindChunk || w.Chunk == nil {
			continue
		}
		if err := w.Chunk.Verify(); err != nil {
			lastErr = err
			continue
		}
		c.cache.Put(name, w.Chunk.Bytes)
		return w.Chunk.Bytes, nil
	}
	return nil, lastErr
}

// prefetch fetches every name concurrently, bounded by
// ChunkDownloadConcurrency, populating the cache. Names already cached
// are skipped.
func (c *Coordinator) prefetch(ctx context.Context, names []addr.Address) error {
	sem := make(chan struct{}, c.cfg.ChunkDownloadConcurrency)
	var wg sync.WaitGroup
	var errs anterrs.Collector
	for _, name := range names {
		if _, ok := c.cache.Get(name); ok {
			continue
		}
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if _, err := c.fetchChunk(ctx, name); err != nil {
				errs.Add(fmt.Errorf("chunk %s: %w", name.Hex(), err))
			}
		}()
	}
	wg.Wait()
	return errs.Err()
}

// Download reassembles the plaintext named by dm: prefetch every
// chunk with bounded concurrency, decrypt, then drop the cache entry of
// every chunk in dm's chunk list, whether or not it was cached before
// this download.
func (c *Coordinator) Download(ctx context.Context, dm selfenc.DataMap) ([]byte, error) {
	names := dataMapChunkNames(dm)
	if err := c.prefetch(ctx, names); err != nil {
		return nil, err
	}
	defer c.clearCache(names)

	out, err := selfenc.Decrypt(dm, func(name addr.Address) ([]byte, error) {
		return c.fetchChunk(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadToWriter streams the reassembled plaintext to w without
// materializing it all in memory: peak memory is
// O(batch x ChunkSizeMax) since DecryptStream only ever holds one
// batch's cipher chunks at a time and each fetched chunk is dropped
// from the cache once it has been handed over.
func (c *Coordinator) DownloadToWriter(ctx context.Context, dm selfenc.DataMap, w selfenc.Sink) error {
	names := dataMapChunkNames(dm)
	defer c.clearCache(names)

	fetchBatch := func(batch []addr.Address) (map[addr.Address][]byte, error) {
		sem := make(chan struct{}, c.cfg.ChunkDownloadConcurrency)
		var wg sync.WaitGroup
		var mu sync.Mutex
		out := make(map[addr.Address][]byte, len(batch))
		var errs anterrs.Collector
		for _, name := range batch {
			name := name
			wg.Add(1)
			go func() {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				b, err := c.fetchChunk(ctx, name)
				if err != nil {
					errs.Add(err)
					return
				}
				c.cache.Delete(name)
				mu.Lock()
				out[name] = b
				mu.Unlock()
			}()
		}
		wg.Wait()
		if errs.Errored() {
			return nil, errs.Err()
		}
		return out, nil
	}

	return selfenc.DecryptStream(dm, fetchBatch, w, c.cfg.ChunkDownloadConcurrency)
}

func (c *Coordinator) clearCache(names []addr.Address) {
	for _, n := range names {
		c.cache.Delete(n)
	}
}

// dataMapChunkNames lists the chunk addresses in dm's own chunk list.
// Chunks of lower map levels are not listed here; they are fetched
// inside selfenc.Decrypt/DecryptStream while the hierarchy is resolved.
func dataMapChunkNames(dm selfenc.DataMap) []addr.Address {
	out := make([]addr.Address, len(dm.Chunks))
	for i, ci := range dm.Chunks {
		out[i] = ci.Name
	}
	return out
}
