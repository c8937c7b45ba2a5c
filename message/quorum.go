package message

import "fmt"

// QuorumMode is the quorum kind a GetRecord caller selects: One,
// Majority, or N(k).
type QuorumMode uint8

const (
	QuorumOne QuorumMode = iota + 1
	QuorumMajority
	QuorumN
)

// Quorum describes how many responses a caller must collect before
// GetRecord's aggregation is considered complete.
type Quorum struct {
	Mode QuorumMode
	N    int // only meaningful when Mode == QuorumN
}

// One is the quorum satisfied by a single response.
func One() Quorum { return Quorum{Mode: QuorumOne} }

// Majority is satisfied once more than half of the total candidates
// have responded.
func Majority() Quorum { return Quorum{Mode: QuorumMajority} }

// N is satisfied once n responses have been collected.
func N(n int) Quorum { return Quorum{Mode: QuorumN, N: n} }

// Met reports whether having received responded out of a population of
// total candidates satisfies q.
func (q Quorum) Met(responded, total int) bool {
	switch q.Mode {
	case QuorumOne:
		return responded >= 1
	case QuorumMajority:
		return responded*2 > total
	case QuorumN:
		return responded >= q.N
	default:
		return false
	}
}

func (q Quorum) String() string {
	switch q.Mode {
	case QuorumOne:
		return "One"
	case QuorumMajority:
		return "Majority"
	case QuorumN:
		return fmt.Sprintf("N(%d)", q.N)
	default:
		return "Unknown"
	}
}
