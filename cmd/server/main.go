// Command server runs the collaborative network viewer: the HTTP API,
// the websocket endpoint, and the shared layout simulation.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vrui-vr/networkviewer/internal/config"
	"github.com/vrui-vr/networkviewer/internal/errorreporting"
	"github.com/vrui-vr/networkviewer/internal/logger"
	"github.com/vrui-vr/networkviewer/internal/server"
	"github.com/vrui-vr/networkviewer/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file found, using system environment")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	log := logger.Get()

	if err := errorreporting.Init(errorreporting.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.SentryRelease,
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		log.Warn("error reporting disabled", "error", err)
	}

	shutdownTracing, err := tracing.Init("networkviewer", tracing.Options{
		Enabled:    cfg.OTELEnabled,
		Endpoint:   cfg.OTELEndpoint,
		SampleRate: cfg.OTELSampleRate,
	})
	if err != nil {
		log.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		errorreporting.Flush(2 * time.Second)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutting down on signal")
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "error", err)
			errorreporting.CaptureError(err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown incomplete", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown failed", "error", err)
	}
	errorreporting.Flush(2 * time.Second)

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
