// Package store implements each peer's local record store: a
// quota-bounded, kind-aware key-addressable database with per-address
// locks and a responsibility-distance eviction policy. Record bodies
// live in a BlobStore; per-address metadata goes through a
// database.Database index.
package store

import (
	"bytes"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/database"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/antconfig"
	"github.com/antstorage/ant/antlog"
	"github.com/antstorage/ant/antmetrics"
	"github.com/antstorage/ant/record"
	"github.com/antstorage/ant/routing"
)

// RoutingView is the subset of routing.Table the store needs to compute
// its responsibility distance, kept as an interface so tests can supply
// a stub without standing up a real Table.
type RoutingView interface {
	Closest(target addr.Address, n int) []routing.PeerInfo
	EstimateNetworkSize() int64
}

// Result is returned by Get: the current value for kinds with a single
// winner, or the full conflict set for kinds that admit multiples.
type Result struct {
	Kind         record.Kind
	Chunk        *record.Chunk
	GraphEntries []record.GraphEntry // KindGraphEntry: always the full set
	Pointer      *record.Pointer
	Scratchpads  []record.Scratchpad // KindScratchpad: >1 means an unresolved fork
}

// Split reports whether a Scratchpad read surfaced more than one
// equal-counter, different-payload fork.
func (r Result) Split() bool {
	return r.Kind == record.KindScratchpad && len(r.Scratchpads) > 1
}

// Store is the per-peer record database.
type Store struct {
	self  addr.Address
	cfg   antconfig.Parameters
	view  RoutingView
	blobs BlobStore
	index database.Database
	log   antlog.Logger
	met   *antmetrics.Metrics

	addrLocksMu sync.Mutex
	addrLocks   map[addr.Address]*sync.Mutex

	mu           sync.Mutex
	addresses    addr.Set // every address currently stored, any kind
	sizes        map[addr.Address]int64
	diskBytes    int64
	chunks       map[addr.Address]record.Chunk
	graphEntries map[addr.Address][]record.GraphEntry
	pointers     map[addr.Address]record.Pointer
	scratchpads  map[addr.Address][]record.Scratchpad
}

// New constructs a Store. view supplies the routing-table distances
// used for admission control; blobs holds record bodies and index
// their metadata. Call Load before sharing the store to pick up state
// persisted by an earlier run.
func New(self addr.Address, cfg antconfig.Parameters, view RoutingView, blobs BlobStore, index database.Database, log antlog.Logger, met *antmetrics.Metrics) *Store {
	return &Store{
		self:         self,
		cfg:          cfg,
		view:         view,
		blobs:        blobs,
		index:        index,
		log:          log,
		met:          met,
		addrLocks:    make(map[addr.Address]*sync.Mutex),
		addresses:    addr.NewSet(),
		sizes:        make(map[addr.Address]int64),
		chunks:       make(map[addr.Address]record.Chunk),
		graphEntries: make(map[addr.Address][]record.GraphEntry),
		pointers:     make(map[addr.Address]record.Pointer),
		scratchpads:  make(map[addr.Address][]record.Scratchpad),
	}
}

// Load rebuilds the in-memory state from the index database and blob
// store. It is called once at startup, before the store is shared, so
// it takes the state lock only to publish the finished maps.
func (s *Store) Load() error {
	iter := s.index.NewIterator()
	defer iter.Release()

	var count int
	var diskBytes int64
	s.mu.Lock()
	defer s.mu.Unlock()
	for iter.Next() {
		a, err := addr.FromBytes(iter.Key())
		if err != nil {
			continue
		}
		entry, err := decodeIndexEntry(iter.Value())
		if err != nil {
			continue
		}
		body, err := s.blobs.Read(a)
		if err != nil {
			// An index entry whose body was lost mid-crash; the record
			// will be re-fetched by replication if we still hold it.
			if s.log != nil {
				s.log.Warn("index entry without body", "address", a.Hex())
			}
			continue
		}

		switch record.Kind(entry.Kind) {
		case record.KindChunk:
			s.chunks[a] = record.Chunk{Name: a, Bytes: body}
		case record.KindGraphEntry:
			var set []record.GraphEntry
			if msgpack.Unmarshal(body, &set) != nil {
				continue
			}
			s.graphEntries[a] = set
		case record.KindPointer:
			var p record.Pointer
			if msgpack.Unmarshal(body, &p) != nil {
				continue
			}
			s.pointers[a] = p
		case record.KindScratchpad:
			var set []record.Scratchpad
			if msgpack.Unmarshal(body, &set) != nil {
				continue
			}
			s.scratchpads[a] = set
		default:
			continue
		}
		s.addresses.Add(a)
		s.sizes[a] = entry.Size
		diskBytes += entry.Size
		count++
	}
	s.diskBytes = diskBytes
	if s.met != nil {
		s.met.RecordsStored.Set(float64(count))
		s.met.DiskBytesUsed.Set(float64(diskBytes))
	}
	return iter.Error()
}

// lockFor returns (creating if needed) the logical per-address lock
// serializing concurrent puts to the same address.
func (s *Store) lockFor(a addr.Address) *sync.Mutex {
	s.addrLocksMu.Lock()
	defer s.addrLocksMu.Unlock()
	l, ok := s.addrLocks[a]
	if !ok {
		l = &sync.Mutex{}
		s.addrLocks[a] = l
	}
	return l
}

// Put applies the record's kind-specific supersedence rule, then
// admission control.
func (s *Store) Put(w record.WireRecord) error {
	if err := w.Verify(); err != nil {
		return err
	}
	a, err := w.Address()
	if err != nil {
		return err
	}

	l := s.lockFor(a)
	l.Lock()
	defer l.Unlock()

	switch w.Kind {
	case record.KindChunk:
		return s.putChunk(a, *w.Chunk)
	case record.KindGraphEntry:
		return s.putGraphEntry(a, *w.GraphEntry)
	case record.KindPointer:
		return s.putPointer(a, *w.Pointer)
	case record.KindScratchpad:
		return s.putScratchpad(a, *w.Scratchpad)
	default:
		return anterrs.ErrInternal
	}
}

func (s *Store) putChunk(a addr.Address, c record.Chunk) error {
	s.mu.Lock()
	existing, had := s.chunks[a]
	s.mu.Unlock()
	if had {
		if !bytes.Equal(existing.Bytes, c.Bytes) {
			return anterrs.ErrInternal // byte-identical-or-reject; same address implies same hash
		}
		return nil // idempotent re-store
	}
	if err := s.admit(a, int64(len(c.Bytes))); err != nil {
		return err
	}
	if err := s.blobs.Write(a, c.Bytes); err != nil {
		return err
	}
	s.mu.Lock()
	s.chunks[a] = c
	s.mu.Unlock()
	return s.commit(a, uint8(record.KindChunk), int64(len(c.Bytes)))
}

func (s *Store) putGraphEntry(a addr.Address, g record.GraphEntry) error {
	s.mu.Lock()
	set := s.graphEntries[a]
	for _, existing := range set {
		if existing.Equal(g) {
			s.mu.Unlock()
			return nil // duplicate insert
		}
	}
	s.mu.Unlock()

	size := int64(len(g.SigningBytes()) + len(g.Signature))
	if err := s.admit(a, size); err != nil {
		return err
	}

	s.mu.Lock()
	s.graphEntries[a] = append(s.graphEntries[a], g)
	blob := s.graphEntries[a]
	s.mu.Unlock()

	written, err := s.writeBlob(a, blob)
	if err != nil {
		return err
	}
	return s.commit(a, uint8(record.KindGraphEntry), written)
}

func (s *Store) putPointer(a addr.Address, p record.Pointer) error {
	s.mu.Lock()
	existing, had := s.pointers[a]
	s.mu.Unlock()

	if had && p.Counter <= existing.Counter {
		return nil // lower or equal counter loses; keep existing
	}

	size := int64(len(p.Target) + 8 + len(p.Signature) + len(p.OwnerPK))
	if !had {
		if err := s.admit(a, size); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.pointers[a] = p
	s.mu.Unlock()

	written, err := s.writeBlob(a, p)
	if err != nil {
		return err
	}
	return s.commit(a, uint8(record.KindPointer), written)
}

func (s *Store) putScratchpad(a addr.Address, sp record.Scratchpad) error {
	if int64(len(sp.EncryptedPayload)) > s.cfg.ScratchpadMaxBytes {
		if s.met != nil {
			s.met.StoreRejections.WithLabelValues("too_large").Inc()
		}
		return anterrs.ErrTooLarge
	}

	s.mu.Lock()
	set := s.scratchpads[a]
	s.mu.Unlock()

	var kept []record.Scratchpad
	for _, existing := range set {
		switch {
		case sp.Counter < existing.Counter:
			return nil // strictly older; reject
		case sp.Counter > existing.Counter:
			continue // existing is superseded; drop it
		case sp.ContentEqual(existing):
			return nil // equal counter, equal payload: dedup
		default:
			// equal counter, different payload: fork, both survive.
			kept = append(kept, existing)
		}
	}
	kept = append(kept, sp)

	size := int64(len(sp.EncryptedPayload) + 24 + len(sp.Signature) + len(sp.OwnerPK))
	if len(set) == 0 {
		if err := s.admit(a, size); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.scratchpads[a] = kept
	s.mu.Unlock()

	written, err := s.writeBlob(a, kept)
	if err != nil {
		return err
	}
	return s.commit(a, uint8(record.KindScratchpad), written)
}

func (s *Store) writeBlob(a addr.Address, v any) (int64, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return 0, err
	}
	if err := s.blobs.Write(a, b); err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}

// admit runs the admission-control decision for a new
// address not currently stored, evicting the farthest-stored record if
// the record quota is full and addr is closer. A nil return means the
// address was admitted; otherwise the error distinguishes a capacity
// rejection (ErrQuotaExceeded) from a distance one (ErrDistanceTooFar).
func (s *Store) admit(a addr.Address, size int64) error {
	s.mu.Lock()
	already := s.addresses.Contains(a)
	count := s.addresses.Len()
	disk := s.diskBytes
	s.mu.Unlock()
	if already {
		return nil
	}

	if disk+size > s.cfg.DiskQuotaBytes {
		if s.met != nil {
			s.met.StoreRejections.WithLabelValues("disk_quota").Inc()
		}
		return anterrs.ErrQuotaExceeded
	}

	r := s.responsibilityDistance()
	d := addr.Dist(s.self, a).BigInt()

	if count < s.cfg.MaxRecords {
		if d.Cmp(r) <= 0 {
			return nil
		}
		if s.met != nil {
			s.met.StoreRejections.WithLabelValues("distance_too_far").Inc()
		}
		return anterrs.ErrDistanceTooFar
	}

	farthest, ok := s.farthestStored()
	if !ok {
		return nil
	}
	df := addr.Dist(s.self, farthest).BigInt()
	if d.Cmp(df) < 0 {
		s.evict(farthest)
		return nil
	}
	if s.met != nil {
		s.met.StoreRejections.WithLabelValues("distance_too_far").Inc()
	}
	return anterrs.ErrDistanceTooFar
}

// responsibilityDistance computes the replica radius R; see
// addr.ResponsibilityRadius for the shared formula.
func (s *Store) responsibilityDistance() *big.Int {
	k := s.cfg.CloseGroupSize
	var kth addr.Address
	var haveKth bool
	var networkSize int64
	if s.view != nil {
		if closest := s.view.Closest(s.self, k); len(closest) > 0 {
			kth, haveKth = closest[len(closest)-1].Address, true
		}
		networkSize = s.view.EstimateNetworkSize()
	}
	return addr.ResponsibilityRadius(s.self, kth, haveKth, k, networkSize)
}

// farthestStored returns the currently-stored address farthest from
// self, used to pick an eviction candidate when the store is at quota.
// A single max scan: the stored set can be MaxRecords long, far too
// large to sort on every at-quota admission.
func (s *Store) farthestStored() (addr.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var farthest addr.Address
	found := false
	for a := range s.addresses {
		if !found || addr.Less(s.self, farthest, a) {
			farthest = a
			found = true
		}
	}
	return farthest, found
}

// evict removes every record at a, the only path by which delete is
// reachable; deletion happens only through eviction.
func (s *Store) evict(a addr.Address) {
	s.mu.Lock()
	freed := s.sizes[a]
	s.addresses.Remove(a)
	delete(s.sizes, a)
	s.diskBytes -= freed
	delete(s.chunks, a)
	delete(s.graphEntries, a)
	delete(s.pointers, a)
	delete(s.scratchpads, a)
	s.mu.Unlock()

	_ = s.blobs.Delete(a)
	key := a.ID()
	_ = s.index.Delete(key[:])
	if s.met != nil {
		s.met.RecordsStored.Dec()
		s.met.DiskBytesUsed.Sub(float64(freed))
	}
	if s.log != nil {
		s.log.Debug("evicted record", "address", a.Hex())
	}
}

// commit records a newly-admitted (or newly-sized) address in the
// bookkeeping set and persists its index entry. size is the full
// stored size at the address; a superseding write that overwrote the
// body in place adjusts diskBytes by the delta, not the full size.
func (s *Store) commit(a addr.Address, kind uint8, size int64) error {
	s.mu.Lock()
	already := s.addresses.Contains(a)
	delta := size - s.sizes[a]
	s.addresses.Add(a)
	s.sizes[a] = size
	s.diskBytes += delta
	s.mu.Unlock()

	entry := indexEntry{Kind: kind, Size: size, ModTime: time.Now().UnixNano()}
	b, err := encodeIndexEntry(entry)
	if err != nil {
		return err
	}
	key := a.ID()
	if err := s.index.Put(key[:], b); err != nil {
		return err
	}
	if s.met != nil {
		if !already {
			s.met.RecordsStored.Inc()
		}
		s.met.DiskBytesUsed.Add(float64(delta))
	}
	return nil
}

// Get returns the current value at a, or ErrRecordNotFound.
func (s *Store) Get(a addr.Address) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.chunks[a]; ok {
		return Result{Kind: record.KindChunk, Chunk: &c}, nil
	}
	if set, ok := s.graphEntries[a]; ok {
		return Result{Kind: record.KindGraphEntry, GraphEntries: append([]record.GraphEntry(nil), set...)}, nil
	}
	if p, ok := s.pointers[a]; ok {
		return Result{Kind: record.KindPointer, Pointer: &p}, nil
	}
	if set, ok := s.scratchpads[a]; ok {
		return Result{Kind: record.KindScratchpad, Scratchpads: append([]record.Scratchpad(nil), set...)}, nil
	}
	return Result{}, anterrs.ErrRecordNotFound
}

// Has reports whether any record is stored at a.
func (s *Store) Has(a addr.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addresses.Contains(a)
}

// Addresses returns a snapshot of every address currently stored, used
// by the replication engine's full-enumeration step.
func (s *Store) Addresses() []addr.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.addresses.List()
	return out
}

// Len returns the number of addresses currently stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addresses.Len()
}
