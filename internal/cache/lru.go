package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// entry carries a value together with its expiry. Ristretto has no
// per-entry TTL of its own, so expiry is checked on read.
type entry struct {
	data      []byte
	expiresAt time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// LRUCache is a size-bounded cache backed by ristretto. Entry cost is
// the byte length of the value, so the bound tracks memory held by
// cached documents rather than entry count.
type LRUCache struct {
	backing    *ristretto.Cache
	defaultTTL time.Duration
}

// NewLRU creates a cache bounded to maxSizeMB megabytes and sized for
// roughly maxEntries live entries. defaultTTL applies to Set calls
// that pass a zero TTL.
func NewLRU(maxSizeMB int64, maxEntries int64, defaultTTL time.Duration) (*LRUCache, error) {
	// Ristretto wants ~10x the expected entry count for its admission
	// counters, and rejects zero bounds outright.
	numCounters := max(maxEntries*10, 1000)
	maxCost := max(maxSizeMB*1024*1024, 1024)

	backing, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	return &LRUCache{backing: backing, defaultTTL: defaultTTL}, nil
}

// Get retrieves a value by key. Expired entries are dropped on read.
func (c *LRUCache) Get(key string) ([]byte, bool) {
	val, found := c.backing.Get(key)
	if !found {
		return nil, false
	}
	ent, ok := val.(*entry)
	if !ok || ent.expired() {
		c.backing.Del(key)
		return nil, false
	}
	return ent.data, true
}

// Set stores a value. Writes are synchronous: the entry is visible to
// Get as soon as Set returns, unless the admission policy rejected it.
func (c *LRUCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	ent := &entry{data: value, expiresAt: time.Now().Add(ttl)}
	_ = c.backing.Set(key, ent, int64(len(value)))
	c.backing.Wait()
}

// Delete removes one key.
func (c *LRUCache) Delete(key string) {
	c.backing.Del(key)
}

// Clear removes all entries.
func (c *LRUCache) Clear() {
	c.backing.Clear()
}

// Stats returns the cache's lifetime counters. Size and Items are
// derived from add/evict totals and do not account for explicit
// deletes, so treat them as upper bounds.
func (c *LRUCache) Stats() Stats {
	m := c.backing.Metrics
	return Stats{
		Hits:      m.Hits(),
		Misses:    m.Misses(),
		KeysAdded: m.KeysAdded(),
		Evictions: m.KeysEvicted(),
		Size:      int64(m.CostAdded() - m.CostEvicted()),
		Items:     int64(m.KeysAdded() - m.KeysEvicted()),
	}
}

// Close releases the cache's internal goroutines and buffers.
func (c *LRUCache) Close() {
	c.backing.Close()
}
