package api

import (
	"log/slog"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vrui-vr/networkviewer/internal/api/handlers"
	"github.com/vrui-vr/networkviewer/internal/cache"
	"github.com/vrui-vr/networkviewer/internal/middleware"
	"github.com/vrui-vr/networkviewer/internal/netstore"
	"github.com/vrui-vr/networkviewer/internal/sim"
)

// Config carries the wired dependencies for the HTTP surface.
type Config struct {
	Service *sim.Service
	Store   netstore.Store
	Cache   cache.Cache
	Hub     *handlers.Hub
	Log     *slog.Logger

	MaxNetworkBytes int64
	CORS            *middleware.CORSConfig
	RateLimiter     *middleware.RateLimiter // nil disables rate limiting
	Started         time.Time
}

func NewRouter(cfg Config) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RecoverWithSentry)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}
	r.Use(middleware.MaxBody(cfg.MaxNetworkBytes))
	r.Use(middleware.Compress)

	// Health and metrics
	r.HandleFunc("/api/health", handlers.Health(cfg.Service, cfg.Started)).Methods("GET")
	r.HandleFunc("/api/status", handlers.GetStatus(cfg.Service)).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		// The Compress middleware already encodes the body.
		DisableCompression: true,
	})).Methods("GET")

	// Network documents. ETags let viewers poll cheaply for changes.
	networks := r.PathPrefix("/api/networks").Subrouter()
	networks.Use(middleware.ETag)
	networks.HandleFunc("", handlers.ListNetworks(cfg.Store)).Methods("GET")
	networks.HandleFunc("/{name}", handlers.GetNetwork(cfg.Store)).Methods("GET")
	networks.HandleFunc("/{name}", handlers.PutNetwork(cfg.Store, cfg.Service, cfg.MaxNetworkBytes)).Methods("PUT")
	networks.HandleFunc("/{name}", handlers.DeleteNetwork(cfg.Store)).Methods("DELETE")
	networks.HandleFunc("/{name}/load", handlers.LoadNetwork(cfg.Store, cfg.Service)).Methods("POST")

	// Shared parameters, mirrored as JSON for non-VR tooling.
	r.HandleFunc("/api/parameters/simulation", handlers.GetSimulationParameters(cfg.Service)).Methods("GET")
	r.HandleFunc("/api/parameters/simulation", handlers.PutSimulationParameters(cfg.Service)).Methods("PUT")
	r.HandleFunc("/api/parameters/rendering", handlers.GetRenderingParameters(cfg.Service)).Methods("GET")
	r.HandleFunc("/api/parameters/rendering", handlers.PutRenderingParameters(cfg.Service)).Methods("PUT")

	// Cache administration
	ca := handlers.NewCacheAdminHandler(cfg.Cache)
	r.HandleFunc("/api/admin/cache/invalidate", ca.InvalidateCache).Methods("POST")
	r.HandleFunc("/api/admin/cache/stats", ca.GetCacheStats).Methods("GET")

	// Viewer connections. The frame limit leaves room for a name and
	// header on top of a document upload.
	ws := handlers.NewWebSocketHandler(cfg.Hub, cfg.Service, cfg.MaxNetworkBytes+1024, cfg.Log)
	r.HandleFunc("/api/ws", ws.HandleWebSocket).Methods("GET")

	return r
}
