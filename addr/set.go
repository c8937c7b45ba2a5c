package addr

import (
	"golang.org/x/exp/maps"
)

// Set is a set of unique addresses. Address is used as a map key
// throughout the routing table, record store, and replication engine.
type Set map[Address]struct{}

// NewSet returns a Set initialized with elts.
func NewSet(elts ...Address) Set {
	s := make(Set, len(elts))
	s.Add(elts...)
	return s
}

// Add adds addresses to the set.
func (s Set) Add(elts ...Address) {
	for _, e := range elts {
		s[e] = struct{}{}
	}
}

// Contains reports whether a is in the set.
func (s Set) Contains(a Address) bool {
	_, ok := s[a]
	return ok
}

// Remove removes addresses from the set.
func (s Set) Remove(elts ...Address) {
	for _, e := range elts {
		delete(s, e)
	}
}

// Len returns the number of elements in the set.
func (s Set) Len() int {
	return len(s)
}

// List returns the elements of the set as a slice; order is non-deterministic.
func (s Set) List() []Address {
	return maps.Keys(s)
}

// Closest sorts a snapshot of the set by distance from ref and returns at
// most n of the closest elements.
func (s Set) Closest(ref Address, n int) []Address {
	all := s.List()
	SortByDistance(ref, all)
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// SortByDistance sorts addrs in place by ascending distance from ref,
// breaking ties on raw bytes.
func SortByDistance(ref Address, addrs []Address) {
	// Simple insertion sort: bucket sizes (K=20) are small, and this keeps
	// the comparator identical to Less for easy auditing.
	for i := 1; i < len(addrs); i++ {
		for j := i; j > 0 && Less(ref, addrs[j], addrs[j-1]); j-- {
			addrs[j], addrs[j-1] = addrs[j-1], addrs[j]
		}
	}
}
