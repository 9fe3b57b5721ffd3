package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	"github.com/vrui-vr/networkviewer/internal/apierr"
	"github.com/vrui-vr/networkviewer/internal/errorreporting"
	"github.com/vrui-vr/networkviewer/internal/logger"
)

// RecoverWithSentry turns handler panics into 500 responses, logging
// the stack and reporting to Sentry when it is configured.
func RecoverWithSentry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			val := recover()
			if val == nil {
				return
			}
			reportPanic(r, val, debug.Stack())
			apierr.WriteErrorWithContext(w, r, apierr.SystemInternal("internal server error"))
		}()

		next.ServeHTTP(w, r)
	})
}

func reportPanic(r *http.Request, val interface{}, stack []byte) {
	logger.ErrorContext(r.Context(), "Panic recovered",
		"error", val,
		"stack", string(stack),
		"method", r.Method,
		"path", r.URL.Path,
	)

	if !errorreporting.IsSentryEnabled() {
		return
	}

	hub := sentry.CurrentHub().Clone()
	hub.Scope().SetRequest(r)
	hub.Scope().SetLevel(sentry.LevelError)
	hub.Scope().SetTag("method", r.Method)
	hub.Scope().SetTag("path", r.URL.Path)

	if err, ok := val.(error); ok {
		hub.CaptureException(err)
	} else {
		hub.CaptureMessage(errorreporting.ScrubPII(string(stack)))
	}
}
