package apierr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vrui-vr/networkviewer/internal/logger"
)

func TestErrorAccessors(t *testing.T) {
	err := New(ErrSystemTimeout, "layout request timed out", http.StatusRequestTimeout)

	if err.Code != ErrSystemTimeout {
		t.Errorf("Code = %s, want %s", err.Code, ErrSystemTimeout)
	}
	if err.Status() != http.StatusRequestTimeout {
		t.Errorf("Status() = %d, want %d", err.Status(), http.StatusRequestTimeout)
	}
	if got, want := err.Error(), "SYSTEM_TIMEOUT: layout request timed out"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestChaining(t *testing.T) {
	err := New(ErrValidationInvalidValue, "bad theta", http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": "theta"}).
		WithRequestID("req-7")

	if err.Details["field"] != "theta" {
		t.Errorf("Details[field] = %v, want theta", err.Details["field"])
	}
	if err.RequestID != "req-7" {
		t.Errorf("RequestID = %q, want req-7", err.RequestID)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, NetworkNotFound("karate"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Error == nil {
		t.Fatal("envelope missing error")
	}
	if resp.Error.Code != ErrNetworkNotFound {
		t.Errorf("code = %s, want %s", resp.Error.Code, ErrNetworkNotFound)
	}
	if resp.Error.Details["network"] != "karate" {
		t.Errorf("details.network = %v, want karate", resp.Error.Details["network"])
	}
}

func TestWriteErrorWithContextStampsRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), logger.RequestIDKey, "req-42")
	r := httptest.NewRequest(http.MethodGet, "/api/networks/karate", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	WriteErrorWithContext(w, r, SimNotLoaded())

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Error.RequestID != "req-42" {
		t.Errorf("request_id = %q, want req-42", resp.Error.RequestID)
	}
}

func TestWriteErrorWithContextWithoutID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()

	WriteErrorWithContext(w, r, SystemInternal(""))

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Error.RequestID != "" {
		t.Errorf("request_id = %q, want empty", resp.Error.RequestID)
	}
}

func TestGetRequestID(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID(empty ctx) = %q, want \"\"", got)
	}
	ctx := context.WithValue(context.Background(), logger.RequestIDKey, "abc")
	if got := GetRequestID(ctx); got != "abc" {
		t.Errorf("GetRequestID = %q, want abc", got)
	}
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		name   string
		err    *Error
		code   ErrorCode
		status int
	}{
		{"NetworkInvalid", NetworkInvalid(""), ErrNetworkInvalid, http.StatusBadRequest},
		{"NetworkNotFound", NetworkNotFound("miserables"), ErrNetworkNotFound, http.StatusNotFound},
		{"NetworkTooLarge", NetworkTooLarge(1 << 20), ErrNetworkTooLarge, http.StatusRequestEntityTooLarge},
		{"NetworkInvalidName", NetworkInvalidName(""), ErrNetworkInvalidName, http.StatusBadRequest},
		{"SimNotLoaded", SimNotLoaded(), ErrSimNotLoaded, http.StatusConflict},
		{"SimStaleVersion", SimStaleVersion(""), ErrSimStaleVersion, http.StatusConflict},
		{"SimLoadFailed", SimLoadFailed(""), ErrSimLoadFailed, http.StatusUnprocessableEntity},
		{"StoreUnavailable", StoreUnavailable(""), ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"StoreFailed", StoreFailed(""), ErrStoreFailed, http.StatusInternalServerError},
		{"SystemInternal", SystemInternal(""), ErrSystemInternal, http.StatusInternalServerError},
		{"SystemTimeout", SystemTimeout(""), ErrSystemTimeout, http.StatusRequestTimeout},
		{"ValidationInvalidJSON", ValidationInvalidJSON(), ErrValidationInvalidJSON, http.StatusBadRequest},
		{"ValidationInvalidFormat", ValidationInvalidFormat(""), ErrValidationInvalidFormat, http.StatusBadRequest},
		{"ValidationMissingField", ValidationMissingField("nodes"), ErrValidationMissingField, http.StatusBadRequest},
		{"ValidationInvalidValue", ValidationInvalidValue("mode", ""), ErrValidationInvalidValue, http.StatusBadRequest},
		{"RateLimitGlobal", RateLimitGlobal(), ErrRateLimitGlobal, http.StatusTooManyRequests},
		{"RateLimitIP", RateLimitIP(), ErrRateLimitIP, http.StatusTooManyRequests},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("code = %s, want %s", tc.err.Code, tc.code)
			}
			if tc.err.Status() != tc.status {
				t.Errorf("status = %d, want %d", tc.err.Status(), tc.status)
			}
			if tc.err.Message == "" {
				t.Error("message is empty")
			}
		})
	}
}

func TestCustomMessageOverridesDefault(t *testing.T) {
	if got := StoreUnavailable("circuit open").Message; got != "circuit open" {
		t.Errorf("message = %q, want %q", got, "circuit open")
	}
	if got := StoreUnavailable("").Message; got != "Network store unavailable" {
		t.Errorf("default message = %q, want %q", got, "Network store unavailable")
	}
}

func TestFieldErrorsCarryFieldDetail(t *testing.T) {
	for _, err := range []*Error{
		ValidationMissingField("links"),
		ValidationInvalidValue("links", "must be an array"),
	} {
		if err.Details["field"] != "links" {
			t.Errorf("%s: details.field = %v, want links", err.Code, err.Details["field"])
		}
	}
}
