// Package errorreporting forwards errors and panics to Sentry. Every
// entry point is safe to call when Sentry is not configured, so
// callers never gate on it.
package errorreporting

import (
	"fmt"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
)

// Options configure the Sentry client. A blank DSN disables reporting.
type Options struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64 // fraction of error events kept, (0, 1]
}

var enabled bool

// Init configures the global Sentry client. With no DSN the package
// stays a no-op.
func Init(opts Options) error {
	if opts.DSN == "" {
		return nil
	}
	release := opts.Release
	if release == "" {
		release = "dev"
	}
	sampleRate := opts.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          release,
		SampleRate:       sampleRate,
		BeforeSend:       scrubEvent,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("initializing sentry: %w", err)
	}
	enabled = true
	return nil
}

// IsSentryEnabled reports whether Init installed a real client.
func IsSentryEnabled() bool { return enabled }

// Patterns stripped from outgoing events. Connection strings show up
// in store errors, so credentials get the same treatment as tokens.
var scrubPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{16,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)["\s:=]+\S{8,}`),
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^:/@\s]+:[^@\s]+@`),
}

// ScrubPII strips addresses, credentials and tokens from text bound
// for the error tracker.
func ScrubPII(text string) string {
	for _, p := range scrubPatterns {
		text = p.ReplaceAllString(text, "[REDACTED]")
	}
	return text
}

// scrubEvent is the BeforeSend hook: it scrubs exception values, the
// message, string extras, and sensitive request data.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	for i := range event.Exception {
		event.Exception[i].Value = ScrubPII(event.Exception[i].Value)
	}
	if event.Message != "" {
		event.Message = ScrubPII(event.Message)
	}
	for k, v := range event.Extra {
		if s, ok := v.(string); ok {
			event.Extra[k] = ScrubPII(s)
		}
	}
	if event.Request != nil {
		delete(event.Request.Headers, "Authorization")
		delete(event.Request.Headers, "Cookie")
		event.Request.QueryString = ""
	}
	return event
}

// CaptureError reports a non-nil error.
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// CaptureErrorWithContext reports an error with tags and extras
// attached to its event.
func CaptureErrorWithContext(err error, tags map[string]string, extras map[string]any) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush blocks until buffered events are delivered or the timeout
// passes.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}
