package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// ensure defaults kick in with empty env
	os.Unsetenv("SERVER_ADDR")
	os.Unsetenv("NETWORK_DIR")
	os.Unsetenv("SIM_WORKER_THREADS")
	os.Unsetenv("SIM_UPDATE_INTERVAL_MS")
	os.Unsetenv("OCTREE_LEAF_CAPACITY")
	os.Unsetenv("CACHE_MAX_SIZE_MB")
	ResetForTest()

	cfg := Load()
	if cfg.ServerAddr != ":8080" {
		t.Fatalf("expected default addr :8080, got %q", cfg.ServerAddr)
	}
	if cfg.NetworkDir != "networks" {
		t.Fatalf("expected default network dir, got %q", cfg.NetworkDir)
	}
	if cfg.SimWorkerThreads != 0 {
		t.Fatalf("expected default worker threads 0, got %d", cfg.SimWorkerThreads)
	}
	if cfg.SimUpdateInterval != 33*time.Millisecond {
		t.Fatalf("expected default update interval 33ms, got %v", cfg.SimUpdateInterval)
	}
	if cfg.OctreeLeafCapacity != 16 {
		t.Fatalf("expected default leaf capacity 16, got %d", cfg.OctreeLeafCapacity)
	}
	if cfg.CacheMaxSizeMB != 128 {
		t.Fatalf("expected default cache size 128MB, got %d", cfg.CacheMaxSizeMB)
	}
}

func TestLoadOverrides(t *testing.T) {
	os.Setenv("SERVER_ADDR", ":9999")
	os.Setenv("SIM_WORKER_THREADS", "4")
	os.Setenv("OCTREE_LEAF_CAPACITY", "32")
	defer func() {
		os.Unsetenv("SERVER_ADDR")
		os.Unsetenv("SIM_WORKER_THREADS")
		os.Unsetenv("OCTREE_LEAF_CAPACITY")
		ResetForTest()
	}()
	ResetForTest()

	cfg := Load()
	if cfg.ServerAddr != ":9999" {
		t.Fatalf("expected addr :9999, got %q", cfg.ServerAddr)
	}
	if cfg.SimWorkerThreads != 4 {
		t.Fatalf("expected 4 worker threads, got %d", cfg.SimWorkerThreads)
	}
	if cfg.OctreeLeafCapacity != 32 {
		t.Fatalf("expected leaf capacity 32, got %d", cfg.OctreeLeafCapacity)
	}
}

func TestLeafCapacityFloor(t *testing.T) {
	os.Setenv("OCTREE_LEAF_CAPACITY", "0")
	defer func() {
		os.Unsetenv("OCTREE_LEAF_CAPACITY")
		ResetForTest()
	}()
	ResetForTest()

	cfg := Load()
	if cfg.OctreeLeafCapacity != 16 {
		t.Fatalf("invalid capacity should fall back to 16, got %d", cfg.OctreeLeafCapacity)
	}
}
