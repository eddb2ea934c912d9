//go:build !nogpu

package wgpu

import (
	"crypto/sha256"
	"sync"
)

// spirvCacheLimit bounds the number of compiled sources kept. Rotators use
// one source per dimension and precision, so a handful is plenty.
const spirvCacheLimit = 16

// shaders caches SPIR-V across queues; the words do not depend on the
// device.
var shaders = newSPIRVCache(spirvCacheLimit)

// spirvCache is a thread-safe LRU of compiled SPIR-V keyed by the hash of
// the WGSL source. Failed compilations are not cached.
type spirvCache struct {
	mu      sync.Mutex
	entries map[[sha256.Size]byte]*spirvEntry
	limit   int
	tick    int64 // monotonic access counter

	hits, misses uint64
}

type spirvEntry struct {
	words []uint32
	atime int64
}

func newSPIRVCache(limit int) *spirvCache {
	return &spirvCache{
		entries: make(map[[sha256.Size]byte]*spirvEntry),
		limit:   limit,
	}
}

// get returns the cached SPIR-V for source, calling compile on a miss.
// compile runs under the lock so concurrent misses compile once.
func (c *spirvCache) get(source string, compile func(string) ([]uint32, error)) ([]uint32, error) {
	key := sha256.Sum256([]byte(source))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if e, ok := c.entries[key]; ok {
		e.atime = c.tick
		c.hits++
		return e.words, nil
	}
	c.misses++

	words, err := compile(source)
	if err != nil {
		return nil, err
	}
	c.entries[key] = &spirvEntry{words: words, atime: c.tick}
	if len(c.entries) > c.limit {
		c.evictOldest()
	}
	return words, nil
}

// evictOldest drops the least recently used entry. Caller must hold c.mu.
func (c *spirvCache) evictOldest() {
	var (
		oldest [sha256.Size]byte
		atime  int64 = -1
	)
	for k, e := range c.entries {
		if atime < 0 || e.atime < atime {
			oldest, atime = k, e.atime
		}
	}
	delete(c.entries, oldest)
}

// stats returns the entry count and the hit and miss counters.
func (c *spirvCache) stats() (n int, hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.hits, c.misses
}
