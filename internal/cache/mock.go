package cache

import "time"

// MockCache is a map-backed Cache for tests. It never evicts, ignores
// TTLs, and counts hits and misses so tests can assert cache traffic.
type MockCache struct {
	data   map[string][]byte
	hits   uint64
	misses uint64
	added  uint64
}

// NewMockCache creates an empty MockCache.
func NewMockCache() *MockCache {
	return &MockCache{data: make(map[string][]byte)}
}

func (m *MockCache) Get(key string) ([]byte, bool) {
	val, found := m.data[key]
	if found {
		m.hits++
	} else {
		m.misses++
	}
	return val, found
}

func (m *MockCache) Set(key string, value []byte, ttl time.Duration) {
	m.data[key] = value
	m.added++
}

func (m *MockCache) Delete(key string) {
	delete(m.data, key)
}

func (m *MockCache) Clear() {
	m.data = make(map[string][]byte)
}

func (m *MockCache) Stats() Stats {
	var size int64
	for _, v := range m.data {
		size += int64(len(v))
	}
	return Stats{
		Hits:      m.hits,
		Misses:    m.misses,
		KeysAdded: m.added,
		Size:      size,
		Items:     int64(len(m.data)),
	}
}
