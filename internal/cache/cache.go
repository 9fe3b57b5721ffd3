// Package cache provides a size-bounded byte cache with per-entry TTL,
// used to keep hot network documents and API responses off the store.
package cache

import "time"

// Cache is a byte cache with TTL semantics.
type Cache interface {
	// Get retrieves a value by key. The second result is false when
	// the key is absent or expired.
	Get(key string) ([]byte, bool)

	// Set stores a value under a key. A TTL of 0 uses the cache's
	// default.
	Set(key string, value []byte, ttl time.Duration)

	// Delete removes one key.
	Delete(key string)

	// Clear removes everything.
	Clear()

	// Stats returns counters accumulated since creation.
	Stats() Stats
}

// Stats are the cache's lifetime counters. Size and Items are
// approximate while writes are in flight.
type Stats struct {
	Hits      uint64
	Misses    uint64
	KeysAdded uint64
	Evictions uint64
	Size      int64
	Items     int64
}
