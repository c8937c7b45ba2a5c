package coordinator

import (
	"sync"

	"github.com/antstorage/ant/addr"
)

// ChunkCache is the local chunk cache the download pipeline consults
// before going to the network and clears once a download completes.
type ChunkCache interface {
	Get(name addr.Address) ([]byte, bool)
	Put(name addr.Address, bytes []byte)
	Delete(name addr.Address)
}

// MemoryChunkCache is a process-local ChunkCache, adequate for a
// single upload/download session; a longer-lived deployment would swap
// this for store.FileBlobStore-backed persistence without changing
// this package's call sites.
type MemoryChunkCache struct {
	mu sync.RWMutex
	m  map[addr.Address][]byte
}

// NewMemoryChunkCache constructs an empty cache.
func NewMemoryChunkCache() *MemoryChunkCache {
	return &MemoryChunkCache{m: make(map[addr.Address][]byte)}
}

func (c *MemoryChunkCache) Get(name addr.Address) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.m[name]
	return b, ok
}

func (c *MemoryChunkCache) Put(name addr.Address, bytes []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[name] = bytes
}

func (c *MemoryChunkCache) Delete(name addr.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, name)
}
