package cache

import (
	"sync"

	"github.com/homepin/mapsession/internal/geocode"
)

// AddressCache keeps reverse-geocode answers in memory, keyed by rounded coordinate.
// When limit is reached the oldest entry is evicted.
type AddressCache struct {
	mu      sync.RWMutex
	entries map[string]geocode.Response
	order   []string
	limit   int
	hits    SafeCounter
	misses  SafeCounter
}

// NewAddressCache creates a cache holding at most limit entries. limit <= 0 means unbounded.
func NewAddressCache(limit int) *AddressCache {
	return &AddressCache{
		entries: make(map[string]geocode.Response),
		limit:   limit,
	}
}

var _ geocode.Cache = (*AddressCache)(nil)

// Get retrieves a response by key
func (c *AddressCache) Get(key string) (geocode.Response, bool) {
	c.mu.RLock()
	resp, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		c.hits.Inc()
	} else {
		c.misses.Inc()
	}
	return resp, ok
}

// Put stores a response by key
func (c *AddressCache) Put(key string, resp geocode.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = resp

	for c.limit > 0 && len(c.order) > c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	return nil
}

// Len returns the number of cached entries
func (c *AddressCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counts
func (c *AddressCache) Stats() (hits, misses int) {
	return c.hits.Value(), c.misses.Value()
}

// Count returns the number of cached entries.
func (c *AddressCache) Count() (int64, error) {
	return int64(c.Len()), nil
}

// Purge clears all entries and the hit and miss counts.
func (c *AddressCache) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]geocode.Response)
	c.order = nil
	c.hits.Set(0)
	c.misses.Set(0)
	return nil
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
