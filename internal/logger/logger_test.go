package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func resetLogger() { root = nil }

// capture points the package logger at a buffer.
func capture(level slog.Level) *bytes.Buffer {
	buf := &bytes.Buffer{}
	root = slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level}))
	return buf
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{" error ", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestInitSetsLevel(t *testing.T) {
	resetLogger()
	defer resetLogger()

	Init("error")
	ctx := context.Background()
	if Get().Enabled(ctx, slog.LevelInfo) {
		t.Error("info should be filtered at error level")
	}
	if !Get().Enabled(ctx, slog.LevelError) {
		t.Error("error level should be enabled")
	}
}

func TestGetSelfInitializes(t *testing.T) {
	resetLogger()
	defer resetLogger()

	if Get() == nil {
		t.Fatal("Get returned nil")
	}
	if Get() != Get() {
		t.Error("Get should return a stable instance")
	}
}

func TestWithRequestID(t *testing.T) {
	resetLogger()
	defer resetLogger()
	buf := capture(slog.LevelDebug)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-42")
	WithRequestID(ctx).Info("hello")
	if out := buf.String(); !strings.Contains(out, "req-42") {
		t.Errorf("log line %q missing request id", out)
	}

	if WithRequestID(context.Background()) != Get() {
		t.Error("context without an id should yield the root logger")
	}
}

func TestWithComponent(t *testing.T) {
	resetLogger()
	defer resetLogger()
	buf := capture(slog.LevelDebug)

	WithComponent("netstore").Info("ready")
	if out := buf.String(); !strings.Contains(out, "component=netstore") {
		t.Errorf("log line %q missing component label", out)
	}
}

func TestForwarders(t *testing.T) {
	resetLogger()
	defer resetLogger()
	buf := capture(slog.LevelDebug)

	Debug("first")
	Info("second")
	Warn("third")
	Error("fourth")
	out := buf.String()
	for _, want := range []string{"level=DEBUG", "level=INFO", "level=WARN", "level=ERROR"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}
}

func TestContextForwarders(t *testing.T) {
	resetLogger()
	defer resetLogger()
	buf := capture(slog.LevelDebug)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-7")
	ErrorContext(ctx, "load failed")
	out := buf.String()
	if !strings.Contains(out, "load failed") || !strings.Contains(out, "req-7") {
		t.Errorf("context log line %q missing message or request id", out)
	}
}
