package config

import (
	"os"
	"strings"
	"time"

	"github.com/vrui-vr/networkviewer/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	ServerAddr string
	// Network document storage
	NetworkDir      string // directory for file-backed network documents
	DatabaseURL     string // when set, network documents live in Postgres
	MaxNetworkBytes int64  // maximum accepted size for an uploaded network document
	// Simulation settings
	SimWorkerThreads   int           // worker threads per simulator (0 = all CPUs)
	SimUpdateInterval  time.Duration // wall-clock interval between position snapshots
	OctreeLeafCapacity int           // particles per octree leaf before splitting
	AutoloadNetwork    string        // network to load at startup (empty = none)
	// Cache settings
	CacheMaxSizeMB int64
	CacheMaxItems  int64
	CacheTTL       time.Duration
	// Security settings
	RateLimitGlobal      float64  // requests per second globally
	RateLimitGlobalBurst int      // burst size for global rate limit
	RateLimitPerIP       float64  // requests per second per IP
	RateLimitPerIPBurst  int      // burst size for per-IP rate limit
	CORSAllowedOrigins   []string // allowed CORS origins
	EnableRateLimit      bool     // enable rate limiting middleware
	// Observability settings
	LogLevel          string        // log level: debug, info, warn, error
	OTELEnabled       bool          // enable OpenTelemetry tracing
	OTELEndpoint      string        // OpenTelemetry collector endpoint
	OTELSampleRate    float64       // trace sampling rate (0.0 to 1.0)
	SentryDSN         string        // Sentry DSN for error reporting
	SentryEnvironment string        // Sentry environment (dev, staging, production)
	SentryRelease     string        // Sentry release version
	SentrySampleRate  float64       // Sentry error sampling rate (0.0 to 1.0)
	MetricsInterval   time.Duration // metrics collector sampling interval
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	addr := strings.TrimSpace(os.Getenv("SERVER_ADDR"))
	if addr == "" {
		addr = ":8080"
	}
	cached = &Config{
		ServerAddr:         addr,
		NetworkDir:         strings.TrimSpace(os.Getenv("NETWORK_DIR")),
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MaxNetworkBytes:    int64(utils.GetEnvAsInt("MAX_NETWORK_BYTES", 64*1024*1024)),
		SimWorkerThreads:   utils.GetEnvAsInt("SIM_WORKER_THREADS", 0),
		SimUpdateInterval:  utils.GetEnvAsDuration("SIM_UPDATE_INTERVAL_MS", 33*time.Millisecond, time.Millisecond),
		OctreeLeafCapacity: utils.GetEnvAsInt("OCTREE_LEAF_CAPACITY", 16),
		AutoloadNetwork:    strings.TrimSpace(os.Getenv("AUTOLOAD_NETWORK")),
		CacheMaxSizeMB:     int64(utils.GetEnvAsInt("CACHE_MAX_SIZE_MB", 128)),
		CacheMaxItems:      int64(utils.GetEnvAsInt("CACHE_MAX_ITEMS", 1024)),
		CacheTTL:           utils.GetEnvAsDuration("CACHE_TTL_SEC", 600*time.Second, time.Second),
		// Security settings with sensible defaults
		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 10.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 20),
		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),
		// Observability settings
		LogLevel:          strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
		SentryRelease:     strings.TrimSpace(os.Getenv("SENTRY_RELEASE")),
		SentrySampleRate:  utils.GetEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
		MetricsInterval:   utils.GetEnvAsDuration("METRICS_INTERVAL_SEC", 15*time.Second, time.Second),
	}
	if cached.NetworkDir == "" {
		cached.NetworkDir = "networks"
	}
	if cached.LogLevel == "" {
		cached.LogLevel = "info"
	}
	if cached.OctreeLeafCapacity < 1 {
		cached.OctreeLeafCapacity = 16
	}
	if cached.SentryEnvironment == "" {
		if env := os.Getenv("ENV"); env != "" {
			cached.SentryEnvironment = env
		} else {
			cached.SentryEnvironment = "development"
		}
	}

	// Default to the common development origins
	cached.CORSAllowedOrigins = utils.GetEnvAsSlice("CORS_ALLOWED_ORIGINS",
		[]string{"http://localhost:5173", "http://localhost:3000"})

	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }
