// Package logger owns the process-wide slog logger. Output is JSON
// under ENV=production and human-readable text otherwise.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// ContextKey is the type for context keys this package reads.
type ContextKey string

// RequestIDKey carries the per-request id assigned by the request ID
// middleware.
const RequestIDKey ContextKey = "request_id"

var root *slog.Logger

// Init builds the process logger at the given level and installs it
// as the slog default. Unknown level strings fall back to info.
func Init(level string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if os.Getenv("ENV") == "production" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	root = slog.New(h)
	slog.SetDefault(root)
}

func parseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		s = "warn"
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Get returns the process logger, initializing it at info level on
// first use.
func Get() *slog.Logger {
	if root == nil {
		Init("info")
	}
	return root
}

// WithComponent returns the process logger tagged with a component
// label.
func WithComponent(name string) *slog.Logger {
	return Get().With("component", name)
}

// WithRequestID returns the process logger tagged with the request id
// from ctx, when one is present.
func WithRequestID(ctx context.Context) *slog.Logger {
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		return Get().With("request_id", id)
	}
	return Get()
}

// Package-level forwarders for call sites without a logger in hand.

func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) {
	WithRequestID(ctx).Debug(msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	WithRequestID(ctx).Info(msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	WithRequestID(ctx).Warn(msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithRequestID(ctx).Error(msg, args...)
}
