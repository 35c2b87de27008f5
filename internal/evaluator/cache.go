package evaluator

import "sync"

// Entry is a cached search outcome for one bucket.
type Entry struct {
	PerUnit     float64 // worst fee per unit of amount among successful samples
	Unreachable bool    // every sample for the bucket failed
}

// FeeCache maps buckets to immutable entries.
// The first write for a bucket wins; later writes are ignored.
// It is safe for concurrent use.
type FeeCache struct {
	mu      sync.RWMutex
	entries map[Bucket]Entry
}

// NewFeeCache creates an empty cache.
func NewFeeCache() *FeeCache {
	return &FeeCache{entries: make(map[Bucket]Entry)}
}

// Load returns the entry for b, if any.
func (c *FeeCache) Load(b Bucket) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[b]
	return e, ok
}

// LoadOrStore returns the existing entry for b if present. Otherwise it
// stores e and returns it. loaded is true when the entry already existed.
func (c *FeeCache) LoadOrStore(b Bucket, e Entry) (actual Entry, loaded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[b]; ok {
		return existing, true
	}
	c.entries[b] = e
	return e, false
}

// Len returns the number of cached buckets.
func (c *FeeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
