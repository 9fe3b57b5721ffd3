package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Simulation metrics
	SimTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sim_tick_duration_seconds",
			Help:    "Duration of one simulation tick in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167, 0.033, 0.1, 0.5},
		},
	)

	SimSnapshotsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sim_snapshots_total",
			Help: "Total number of position snapshots delivered to clients",
		},
	)

	SimCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sim_commands_total",
			Help: "Total number of simulation commands executed",
		},
		[]string{"type"}, // type: select_node, change_selection, drag_start, drag, drag_stop, set_parameters
	)

	SimParticles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sim_particles",
			Help: "Number of particles in the active simulation",
		},
	)

	SimConstraints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sim_constraints",
			Help: "Number of distance constraints in the active simulation",
		},
	)

	SimActiveDrags = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sim_active_drags",
			Help: "Number of active drag operations",
		},
	)

	SimRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sim_running",
			Help: "Whether the simulation is running (1) or paused (0)",
		},
	)

	OctreeNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "octree_nodes",
			Help: "Number of nodes in the spatial octree",
		},
	)

	OctreeDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "octree_depth",
			Help: "Maximum depth of the spatial octree",
		},
	)

	// Network lifecycle metrics
	NetworkVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "network_version",
			Help: "Version counter of the currently loaded network",
		},
	)

	NetworkLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "network_load_duration_seconds",
			Help:    "Duration of network document loads in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
	)

	NetworkLoadErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "network_load_errors_total",
			Help: "Total number of failed network loads",
		},
	)

	// Store operation metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of network store operations",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operation_errors_total",
			Help: "Total number of network store operation errors",
		},
		[]string{"operation"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"component"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"component"},
	)

	// Document cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_size_bytes",
			Help: "Approximate size of the cache in bytes",
		},
		[]string{"cache"},
	)

	CacheItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_items",
			Help: "Current number of items in the cache",
		},
		[]string{"cache"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to clients",
		},
	)

	WebSocketMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket messages received from clients",
		},
		[]string{"type"},
	)

	// Metrics collection error tracking
	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors during metrics collection",
		},
		[]string{"collector"}, // collector: simulation, cache
	)
)
