package message

import (
	"sync"

	"github.com/antstorage/ant/record"
)

// Aggregator collects GetRecord responses from multiple peers and
// applies the same kind-aware reconciliation the record store uses
// internally, so a quorum read converges on the value a quorum write
// would have produced.
type Aggregator struct {
	quorum Quorum

	mu         sync.Mutex
	responded  int
	chunk      *record.Chunk
	graphSet   []record.GraphEntry
	pointer    *record.Pointer
	scratchSet []record.Scratchpad
	sawKind    record.Kind
}

// NewAggregator starts an aggregation for the given quorum requirement.
func NewAggregator(q Quorum) *Aggregator {
	return &Aggregator{quorum: q}
}

// Offer folds one peer's response into the aggregate and reports
// whether the quorum (against total known respondents) is now met.
func (a *Aggregator) Offer(w record.WireRecord, total int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.responded++
	a.sawKind = w.Kind
	switch w.Kind {
	case record.KindChunk:
		a.chunk = w.Chunk
	case record.KindGraphEntry:
		a.graphSet = record.MergeGraphEntries(a.graphSet, *w.GraphEntry)
	case record.KindPointer:
		a.pointer = record.MergePointer(a.pointer, *w.Pointer)
	case record.KindScratchpad:
		a.scratchSet = record.MergeScratchpads(a.scratchSet, *w.Scratchpad)
	}
	return a.quorum.Met(a.responded, total)
}

// Result returns the reconciled value once the caller has decided
// aggregation is complete (quorum met, or timeout with a partial set).
func (a *Aggregator) Result() record.WireRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	w := record.WireRecord{Kind: a.sawKind}
	switch a.sawKind {
	case record.KindChunk:
		w.Chunk = a.chunk
	case record.KindGraphEntry:
		entries := a.graphSet
		if len(entries) > 0 {
			w.GraphEntry = &entries[0]
		}
	case record.KindPointer:
		w.Pointer = a.pointer
	case record.KindScratchpad:
		if len(a.scratchSet) > 0 {
			w.Scratchpad = &a.scratchSet[0]
		}
	}
	return w
}

// GraphEntries returns the full reconciled set for KindGraphEntry reads.
func (a *Aggregator) GraphEntries() []record.GraphEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]record.GraphEntry(nil), a.graphSet...)
}

// Scratchpads returns the full reconciled set for KindScratchpad reads;
// len() > 1 signals an unresolved fork, mirroring store.Result.Split.
func (a *Aggregator) Scratchpads() []record.Scratchpad {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]record.Scratchpad(nil), a.scratchSet...)
}

// Responded returns the number of responses folded in so far.
func (a *Aggregator) Responded() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.responded
}
