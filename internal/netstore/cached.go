package netstore

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vrui-vr/networkviewer/internal/cache"
	"github.com/vrui-vr/networkviewer/internal/metrics"
	"github.com/vrui-vr/networkviewer/internal/tracing"
)

const cacheName = "networks"

// Cached wraps a Store with a document cache keyed by network name
// and records operation metrics for whichever backend sits below.
// Writes invalidate rather than populate, so the cache only ever
// holds documents that were actually read.
type Cached struct {
	store Store
	cache cache.Cache
	ttl   time.Duration
}

func NewCached(store Store, c cache.Cache, ttl time.Duration) *Cached {
	return &Cached{store: store, cache: c, ttl: ttl}
}

func cacheKey(name string) string { return "network:" + name }

// observe records one store operation. Lookups of absent networks,
// rejected names and malformed documents are caller mistakes, not
// backend failures.
func observe(op string, started time.Time, err error) {
	metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidName) && !errors.Is(err, ErrInvalidDocument) {
		metrics.StoreOperationErrors.WithLabelValues(op).Inc()
	}
}

func (c *Cached) updateGauges() {
	stats := c.cache.Stats()
	metrics.CacheSizeBytes.WithLabelValues(cacheName).Set(float64(stats.Size))
	metrics.CacheItems.WithLabelValues(cacheName).Set(float64(stats.Items))
}

func (c *Cached) List(ctx context.Context) ([]Info, error) {
	ctx, span := tracing.StartSpan(ctx, "netstore.List")
	defer span.End()

	started := time.Now()
	infos, err := c.store.List(ctx)
	observe("list", started, err)
	return infos, err
}

func (c *Cached) Get(ctx context.Context, name string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "netstore.Get")
	defer span.End()
	span.SetAttributes(attribute.String("network", name))

	if document, ok := c.cache.Get(cacheKey(name)); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		metrics.CacheHits.WithLabelValues(cacheName).Inc()
		return document, nil
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))
	metrics.CacheMisses.WithLabelValues(cacheName).Inc()

	started := time.Now()
	document, err := c.store.Get(ctx, name)
	observe("get", started, err)
	if err != nil {
		return nil, err
	}
	c.cache.Set(cacheKey(name), document, c.ttl)
	c.updateGauges()
	return document, nil
}

func (c *Cached) Put(ctx context.Context, name string, document []byte) error {
	ctx, span := tracing.StartSpan(ctx, "netstore.Put")
	defer span.End()
	span.SetAttributes(attribute.String("network", name))

	started := time.Now()
	err := c.store.Put(ctx, name, document)
	observe("put", started, err)
	if err != nil {
		return err
	}
	c.cache.Delete(cacheKey(name))
	c.updateGauges()
	return nil
}

func (c *Cached) Delete(ctx context.Context, name string) error {
	ctx, span := tracing.StartSpan(ctx, "netstore.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("network", name))

	started := time.Now()
	err := c.store.Delete(ctx, name)
	observe("delete", started, err)
	if err != nil {
		return err
	}
	c.cache.Delete(cacheKey(name))
	c.updateGauges()
	return nil
}

// Stats exposes the document cache counters for the status endpoint.
func (c *Cached) Stats() cache.Stats {
	return c.cache.Stats()
}
