// Package antconfig holds the tunable parameters for every component: a
// plain struct, a Default() constructor, and a Validate() pass. Loading
// parameters from a file is the caller's concern.
package antconfig

import (
	"errors"
	"time"
)

// Sentinel validation errors.
var (
	ErrTreqNonPositive         = errors.New("antconfig: Treq must be positive")
	ErrMaxRetriesNonPositive   = errors.New("antconfig: MaxRetries must be positive")
	ErrKNonPositive            = errors.New("antconfig: K must be positive")
	ErrCloseGroupInvalid       = errors.New("antconfig: CloseGroupSize must be in (0, K]")
	ErrChunkSizeInvalid        = errors.New("antconfig: ChunkSizeTarget must be positive")
	ErrConcurrencyNonPositive  = errors.New("antconfig: concurrency settings must be positive")
	ErrMaxRecordsNonPositive   = errors.New("antconfig: MaxRecords must be positive")
	ErrDiskQuotaNonPositive    = errors.New("antconfig: DiskQuotaBytes must be positive")
	ErrReplicationBatchInvalid = errors.New("antconfig: MaxReplicationKeysPerRequest must be positive")
	ErrScratchpadMaxInvalid    = errors.New("antconfig: ScratchpadMaxBytes must be positive")
)

// Parameters holds every tunable knob. cmd/antnode overrides the
// upload/download concurrency from the environment; MaxStreamDataSize
// keeps its default and is not read from the environment.
type Parameters struct {
	// Message plane.
	Treq         time.Duration
	MaxRetries   int
	RetryBackoff time.Duration // base; actual wait is RetryBackoff * 2^attempt

	// Routing table.
	K              int
	CloseGroupSize int

	// Self-encryption.
	ChunkSizeTarget int
	ChunkSizeMax    int

	// Client coordinator concurrency.
	ChunkUploadConcurrency   int
	ChunkDownloadConcurrency int
	MaxStreamDataSize        int64

	// Record store. ScratchpadMaxBytes caps a scratchpad's encrypted
	// payload.
	MaxRecords         int
	DiskQuotaBytes     int64
	ScratchpadMaxBytes int64

	// Replication engine.
	MaxReplicationKeysPerRequest int

	// Quoter / payment validator.
	ClockSkew time.Duration

	// Bootstrap / discovery.
	MaxConcurrentFetches int
	BootstrapMaxAddrs    int
	BootstrapTimeout     time.Duration
	BootstrapRetries     int
}

// Default returns the standard network parameters.
func Default() Parameters {
	return Parameters{
		Treq:         30 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,

		K:              20,
		CloseGroupSize: 5,

		ChunkSizeTarget: 1 << 20,
		ChunkSizeMax:    4 << 20,

		ChunkUploadConcurrency:   8,
		ChunkDownloadConcurrency: 8,
		MaxStreamDataSize:        16 << 20,

		MaxRecords:         1 << 20,
		DiskQuotaBytes:     100 << 30, // 100 GiB
		ScratchpadMaxBytes: 4 << 20,

		MaxReplicationKeysPerRequest: 500,

		ClockSkew: 5 * time.Second,

		MaxConcurrentFetches: 4,
		BootstrapMaxAddrs:    1000,
		BootstrapTimeout:     10 * time.Second,
		BootstrapRetries:     2,
	}
}

// Validate rejects a non-positive Treq, MaxRetries, K, ChunkSizeTarget,
// upload/download concurrency, MaxRecords, DiskQuotaBytes,
// MaxReplicationKeysPerRequest or ScratchpadMaxBytes, a CloseGroupSize
// outside (0, K], and a ChunkSizeMax below ChunkSizeTarget. The other
// knobs (RetryBackoff, MaxStreamDataSize, ClockSkew and the bootstrap
// settings) are not checked.
func (p Parameters) Validate() error {
	switch {
	case p.Treq <= 0:
		return ErrTreqNonPositive
	case p.MaxRetries <= 0:
		return ErrMaxRetriesNonPositive
	case p.K <= 0:
		return ErrKNonPositive
	case p.CloseGroupSize <= 0 || p.CloseGroupSize > p.K:
		return ErrCloseGroupInvalid
	case p.ChunkSizeTarget <= 0 || p.ChunkSizeMax < p.ChunkSizeTarget:
		return ErrChunkSizeInvalid
	case p.ChunkUploadConcurrency <= 0 || p.ChunkDownloadConcurrency <= 0:
		return ErrConcurrencyNonPositive
	case p.MaxRecords <= 0:
		return ErrMaxRecordsNonPositive
	case p.DiskQuotaBytes <= 0:
		return ErrDiskQuotaNonPositive
	case p.MaxReplicationKeysPerRequest <= 0:
		return ErrReplicationBatchInvalid
	case p.ScratchpadMaxBytes <= 0:
		return ErrScratchpadMaxInvalid
	}
	return nil
}

// RetryDelay returns the exponential backoff delay for the given attempt
// number (0-indexed): RetryBackoff * 2^attempt.
func (p Parameters) RetryDelay(attempt int) time.Duration {
	d := p.RetryBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}
