package cache

import (
	"testing"
	"time"
)

func TestLRUCache_SetAndGet(t *testing.T) {
	cache, err := NewLRU(10, 100, 60*time.Second)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	key := "network:demo"
	value := []byte(`{"nodes":[],"links":[]}`)
	cache.Set(key, value, 0)

	retrieved, found := cache.Get(key)
	if !found {
		t.Fatal("Expected to find cached value")
	}
	if string(retrieved) != string(value) {
		t.Errorf("Expected %s, got %s", value, retrieved)
	}
}

func TestLRUCache_GetMissing(t *testing.T) {
	cache, err := NewLRU(10, 100, 60*time.Second)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	if _, found := cache.Get("nonexistent"); found {
		t.Error("Expected not to find missing key")
	}
}

func TestLRUCache_Expiration(t *testing.T) {
	cache, err := NewLRU(10, 100, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	// TTL 0 falls back to the cache default of 100ms.
	cache.Set("short-lived", []byte("v"), 0)

	if _, found := cache.Get("short-lived"); !found {
		t.Error("Expected to find value immediately after set")
	}

	time.Sleep(150 * time.Millisecond)

	if _, found := cache.Get("short-lived"); found {
		t.Error("Expected value to be expired")
	}
}

func TestLRUCache_ExplicitTTLOverridesDefault(t *testing.T) {
	cache, err := NewLRU(10, 100, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("long-lived", []byte("v"), time.Minute)

	time.Sleep(100 * time.Millisecond)

	if _, found := cache.Get("long-lived"); !found {
		t.Error("Expected explicit TTL to outlive the default")
	}
}

func TestLRUCache_Delete(t *testing.T) {
	cache, err := NewLRU(10, 100, 60*time.Second)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("doomed", []byte("v"), 0)

	if _, found := cache.Get("doomed"); !found {
		t.Fatal("Expected to find value before delete")
	}

	cache.Delete("doomed")

	if _, found := cache.Get("doomed"); found {
		t.Error("Expected value to be deleted")
	}
}

func TestLRUCache_Clear(t *testing.T) {
	cache, err := NewLRU(10, 100, 60*time.Second)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	for _, key := range []string{"key1", "key2", "key3"} {
		cache.Set(key, []byte("value"), 0)
	}

	cache.Clear()

	for _, key := range []string{"key1", "key2", "key3"} {
		if _, found := cache.Get(key); found {
			t.Errorf("Expected %s to be cleared", key)
		}
	}
}

func TestLRUCache_Stats(t *testing.T) {
	cache, err := NewLRU(10, 100, 60*time.Second)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("key1", []byte("value1"), 0)
	cache.Set("key2", []byte("value2"), 0)

	cache.Get("key1")
	cache.Get("key1")
	cache.Get("no-such-key")

	stats := cache.Stats()
	if stats.Hits < 2 {
		t.Errorf("Expected at least 2 hits, got %d", stats.Hits)
	}
	if stats.Misses < 1 {
		t.Errorf("Expected at least 1 miss, got %d", stats.Misses)
	}
	if stats.KeysAdded < 2 {
		t.Errorf("Expected at least 2 keys added, got %d", stats.KeysAdded)
	}
	if stats.Items < 1 {
		t.Errorf("Expected a positive item count, got %d", stats.Items)
	}
	if stats.Size < int64(len("value1")) {
		t.Errorf("Expected size to cover stored values, got %d", stats.Size)
	}
}

func TestLRUCache_SizeLimit(t *testing.T) {
	cache, err := NewLRU(1, 1000, 60*time.Second)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set("small1", []byte("value1"), 0)
	cache.Set("small2", []byte("value2"), 0)
	cache.Set("small3", []byte("value3"), 0)

	// Ristretto's admission policy may drop some entries, but a 1 MB
	// bound has room for at least one of these.
	found := false
	for _, key := range []string{"small1", "small2", "small3"} {
		if _, ok := cache.Get(key); ok {
			found = true
			break
		}
	}
	if !found {
		t.Error("Expected at least one item to be in cache")
	}
}

func TestLRUCache_ZeroSizeGetsFloor(t *testing.T) {
	cache, err := NewLRU(0, 0, 60*time.Second)
	if err != nil {
		t.Fatalf("Expected zero bounds to be clamped, got error: %v", err)
	}
	defer cache.Close()

	cache.Set("tiny", []byte("v"), 0)
	if _, found := cache.Get("tiny"); !found {
		t.Error("Expected a small value to fit in the floor-sized cache")
	}
}
