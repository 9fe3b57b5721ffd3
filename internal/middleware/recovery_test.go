package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vrui-vr/networkviewer/internal/apierr"
)

func TestRecoveryPassesThroughHealthyHandler(t *testing.T) {
	handler := RecoverWithSentry(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestRecoveryConvertsPanicToEnvelope(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value interface{}
	}{
		{"string panic", "nil particle"},
		{"error panic", errors.New("index out of range")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			handler := RecoverWithSentry(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(tc.value)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/networks/karate", nil))

			if w.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
			}
			var resp apierr.ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("body is not the error envelope: %v", err)
			}
			if resp.Error.Code != apierr.ErrSystemInternal {
				t.Errorf("code = %s, want %s", resp.Error.Code, apierr.ErrSystemInternal)
			}
		})
	}
}

func TestRecoveryDoesNotSwallowLaterRequests(t *testing.T) {
	calls := 0
	handler := RecoverWithSentry(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("first request only")
		}
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sample", nil))
		want := http.StatusInternalServerError
		if i == 1 {
			want = http.StatusOK
		}
		if w.Code != want {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, want)
		}
	}
}
