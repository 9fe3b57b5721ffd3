package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vrui-vr/networkviewer/internal/cache"
)

// SimulationSample is a point-in-time snapshot of the simulation
// service, taken under its lock so the gauges stay consistent with
// each other.
type SimulationSample struct {
	Running        bool
	NetworkVersion uint16
	Particles      int
	Constraints    int
}

// SimulationSource provides simulation samples for the collector.
type SimulationSource interface {
	Sample() SimulationSample
}

// Collector re-asserts sampled gauges on a fixed interval. Most
// gauges are also set inline where the state changes; the ticker
// covers the ones that drift between operations, like cache size
// after TTL expiry.
type Collector struct {
	log      *slog.Logger
	sim      SimulationSource
	cache    cache.Cache
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a collector sampling the given sources. Either
// source may be nil, which skips it.
func NewCollector(log *slog.Logger, sim SimulationSource, c cache.Cache, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		log:      log,
		sim:      sim,
		cache:    c,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start runs the collection loop until Stop is called or the context
// ends. It samples once immediately so gauges are populated before
// the first tick.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collectOnce()

	for {
		select {
		case <-ticker.C:
			c.collectOnce()
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the collection loop. Safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Collector) collectOnce() {
	c.sample("simulation", c.collectSimulation)
	c.sample("cache", c.collectCache)
}

// sample runs one collector function. A panic in a source must not
// take down the process off a background ticker.
func (c *Collector) sample(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			MetricsCollectionErrors.WithLabelValues(name).Inc()
			c.log.Error("metrics collection failed", "collector", name, "panic", r)
		}
	}()
	fn()
}

func (c *Collector) collectSimulation() {
	if c.sim == nil {
		return
	}
	s := c.sim.Sample()
	if s.Running {
		SimRunning.Set(1)
	} else {
		SimRunning.Set(0)
	}
	SimParticles.Set(float64(s.Particles))
	SimConstraints.Set(float64(s.Constraints))
	NetworkVersion.Set(float64(s.NetworkVersion))
}

func (c *Collector) collectCache() {
	if c.cache == nil {
		return
	}
	stats := c.cache.Stats()
	CacheSizeBytes.WithLabelValues("networks").Set(float64(stats.Size))
	CacheItems.WithLabelValues("networks").Set(float64(stats.Items))
}
