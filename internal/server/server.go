// Package server assembles the configured stack: the document store
// behind its cache, the simulation service, the websocket hub, the
// HTTP router, and the background metrics collector.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vrui-vr/networkviewer/internal/api"
	"github.com/vrui-vr/networkviewer/internal/api/handlers"
	"github.com/vrui-vr/networkviewer/internal/cache"
	"github.com/vrui-vr/networkviewer/internal/config"
	"github.com/vrui-vr/networkviewer/internal/metrics"
	"github.com/vrui-vr/networkviewer/internal/middleware"
	"github.com/vrui-vr/networkviewer/internal/netstore"
	"github.com/vrui-vr/networkviewer/internal/secrets"
	"github.com/vrui-vr/networkviewer/internal/sim"
)

// Server owns every long-lived component and tears them down in
// reverse order of construction.
type Server struct {
	log *slog.Logger
	cfg *config.Config

	store        netstore.Store
	closeBackend func() error
	lru          *cache.LRUCache
	hub          *handlers.Hub
	service      *sim.Service
	limiter      *middleware.RateLimiter
	collector    *metrics.Collector
	httpServer   *http.Server
}

// New wires the stack from the configuration. Network documents live
// in Postgres when DATABASE_URL is set and on the filesystem
// otherwise; everything downstream sees the same cached Store.
func New(cfg *config.Config, log *slog.Logger) (*Server, error) {
	var backend netstore.Store
	var closeBackend func() error
	if cfg.DatabaseURL != "" {
		pg, err := netstore.NewPGStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		backend = pg
		closeBackend = pg.Close
		log.Info("network documents stored in postgres", "url", secrets.MaskURL(cfg.DatabaseURL))
	} else {
		fs, err := netstore.NewFileStore(cfg.NetworkDir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		backend = fs
		log.Info("network documents stored on disk", "dir", cfg.NetworkDir)
	}

	lru, err := cache.NewLRU(cfg.CacheMaxSizeMB, cfg.CacheMaxItems, cfg.CacheTTL)
	if err != nil {
		if closeBackend != nil {
			closeBackend()
		}
		return nil, fmt.Errorf("create document cache: %w", err)
	}
	store := netstore.NewCached(backend, lru, cfg.CacheTTL)

	hub := handlers.NewHub(log)
	service := sim.NewService(log, hub, cfg.SimWorkerThreads)
	service.SetUpdateInterval(cfg.SimUpdateInterval)
	service.SetLeafCapacity(cfg.OctreeLeafCapacity)

	var limiter *middleware.RateLimiter
	if cfg.EnableRateLimit {
		limiter = middleware.NewRateLimiter(
			cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst,
			cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst)
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowedOrigins) > 0 {
		cors.AllowedOrigins = cfg.CORSAllowedOrigins
	}

	router := api.NewRouter(api.Config{
		Service:         service,
		Store:           store,
		Cache:           lru,
		Hub:             hub,
		Log:             log,
		MaxNetworkBytes: cfg.MaxNetworkBytes,
		CORS:            cors,
		RateLimiter:     limiter,
		Started:         time.Now(),
	})

	return &Server{
		log:          log,
		cfg:          cfg,
		store:        store,
		closeBackend: closeBackend,
		lru:          lru,
		hub:          hub,
		service:      service,
		limiter:      limiter,
		collector:    metrics.NewCollector(log, service, lru, cfg.MetricsInterval),
		httpServer: &http.Server{
			Addr:    cfg.ServerAddr,
			Handler: router,
			// Websocket connections are hijacked and long-lived, so
			// only the header read gets a deadline here.
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}, nil
}

// Handler exposes the assembled router.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Service exposes the simulation service for offline tooling built on
// the same wiring.
func (s *Server) Service() *sim.Service { return s.service }

// Start launches the metrics collector, loads the configured startup
// network, and serves HTTP until Shutdown. It blocks.
func (s *Server) Start(ctx context.Context) error {
	go s.collector.Start(ctx)

	if name := s.cfg.AutoloadNetwork; name != "" {
		s.autoload(ctx, name)
	}

	s.log.Info("listening", "addr", s.cfg.ServerAddr)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// autoload brings up the startup network. Failure is not fatal: the
// server is still useful for uploads and administration.
func (s *Server) autoload(ctx context.Context, name string) {
	document, err := s.store.Get(ctx, name)
	if err != nil {
		s.log.Warn("startup network not loaded", "network", name, "error", err)
		return
	}
	if err := s.service.LoadNetwork(name, document); err != nil {
		s.log.Warn("startup network not loaded", "network", name, "error", err)
	}
}

// Shutdown disconnects websocket clients, drains in-flight HTTP
// requests, then stops the background components.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	err := s.httpServer.Shutdown(ctx)

	s.collector.Stop()
	s.service.Shutdown()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.lru.Close()
	if s.closeBackend != nil {
		if cerr := s.closeBackend(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
