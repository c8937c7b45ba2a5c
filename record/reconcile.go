package record

// MergePointer folds a newly-observed Pointer into the current best
// value, applying the same highest-counter-wins rule as the record
// store's supersedence logic, so GetRecord's quorum
// aggregator and the local store agree on which value wins.
func MergePointer(current *Pointer, next Pointer) *Pointer {
	if current == nil || next.Counter > current.Counter {
		return &next
	}
	return current
}

// MergeGraphEntries folds next into set, skipping duplicates by
// signature (GraphEntry has no single winner: every signature-valid
// entry survives as an element of the set).
func MergeGraphEntries(set []GraphEntry, next GraphEntry) []GraphEntry {
	for _, existing := range set {
		if existing.Equal(next) {
			return set
		}
	}
	return append(set, next)
}

// MergeScratchpads folds next into set using the same counter/content
// rules as the record store: higher counter replaces all lower-counter
// entries, equal counter and equal payload deduplicates, equal counter
// and different payload is retained as a fork.
func MergeScratchpads(set []Scratchpad, next Scratchpad) []Scratchpad {
	kept := set[:0:0]
	for _, existing := range set {
		switch {
		case next.Counter < existing.Counter:
			return set // next is stale; set is unchanged
		case next.Counter > existing.Counter:
			continue // existing is superseded; drop it
		case next.ContentEqual(existing):
			return set // already present
		default:
			kept = append(kept, existing)
		}
	}
	return append(kept, next)
}
