package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/vrui-vr/networkviewer/internal/circuitbreaker"
	"github.com/vrui-vr/networkviewer/internal/middleware"
	"github.com/vrui-vr/networkviewer/internal/netstore"
)

const testDocument = `{"nodes":[{"id":"a"},{"id":"b","size":2,"color":"#ff0000"}],"links":[{"source":"a","target":"b"}]}`

// fakeStore is a map-backed netstore.Store with the same error
// vocabulary as the real backends.
type fakeStore struct {
	docs map[string][]byte
	err  error // forced failure for every operation when set
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string][]byte)}
}

func (s *fakeStore) List(ctx context.Context) ([]netstore.Info, error) {
	if s.err != nil {
		return nil, s.err
	}
	names := make([]string, 0, len(s.docs))
	for name := range s.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	infos := make([]netstore.Info, 0, len(names))
	for _, name := range names {
		infos = append(infos, netstore.Info{
			Name:      name,
			Size:      int64(len(s.docs[name])),
			UpdatedAt: time.Now(),
		})
	}
	return infos, nil
}

func (s *fakeStore) Get(ctx context.Context, name string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	doc, ok := s.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", netstore.ErrNotFound, name)
	}
	return doc, nil
}

func (s *fakeStore) Put(ctx context.Context, name string, document []byte) error {
	if s.err != nil {
		return s.err
	}
	if err := netstore.ValidateName(name); err != nil {
		return err
	}
	if !json.Valid(document) {
		return fmt.Errorf("%w: not json", netstore.ErrInvalidDocument)
	}
	s.docs[name] = document
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, name string) error {
	if s.err != nil {
		return s.err
	}
	if _, ok := s.docs[name]; !ok {
		return fmt.Errorf("%w: %q", netstore.ErrNotFound, name)
	}
	delete(s.docs, name)
	return nil
}

type fakeLoader struct {
	loads []string
	docs  [][]byte
	err   error
}

func (l *fakeLoader) LoadNetwork(name string, document []byte) error {
	if l.err != nil {
		return l.err
	}
	l.loads = append(l.loads, name)
	l.docs = append(l.docs, document)
	return nil
}

func networksRouter(store netstore.Store, loader NetworkLoader, maxBytes int64) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/networks", ListNetworks(store)).Methods("GET")
	r.HandleFunc("/api/networks/{name}", GetNetwork(store)).Methods("GET")
	r.HandleFunc("/api/networks/{name}", PutNetwork(store, loader, maxBytes)).Methods("PUT")
	r.HandleFunc("/api/networks/{name}", DeleteNetwork(store)).Methods("DELETE")
	r.HandleFunc("/api/networks/{name}/load", LoadNetwork(store, loader)).Methods("POST")
	return r
}

// errorCode digs the structured code out of an error response body.
func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("response %q is not an error envelope: %v", body, err)
	}
	return envelope.Error.Code
}

func TestPutAndGetNetwork(t *testing.T) {
	store := newFakeStore()
	loader := &fakeLoader{}
	r := networksRouter(store, loader, 1<<20)

	req := httptest.NewRequest(http.MethodPut, "/api/networks/demo", strings.NewReader(testDocument))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("PUT status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Name   string `json:"name"`
		Loaded bool   `json:"loaded"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding PUT response: %v", err)
	}
	if created.Name != "demo" || created.Loaded {
		t.Fatalf("PUT response %+v, want name demo and loaded false", created)
	}
	if len(loader.loads) != 0 {
		t.Fatalf("PUT without ?load must not touch the simulation, loaded %v", loader.loads)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/networks/demo", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rr.Code)
	}
	if got := rr.Body.String(); got != testDocument {
		t.Fatalf("GET returned %q, want the stored document verbatim", got)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("GET Content-Type = %q", ct)
	}
}

func TestPutNetworkWithImmediateLoad(t *testing.T) {
	store := newFakeStore()
	loader := &fakeLoader{}
	r := networksRouter(store, loader, 1<<20)

	req := httptest.NewRequest(http.MethodPut, "/api/networks/demo?load=true", strings.NewReader(testDocument))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	if len(loader.loads) != 1 || loader.loads[0] != "demo" {
		t.Fatalf("loaded networks = %v, want [demo]", loader.loads)
	}
	if string(loader.docs[0]) != testDocument {
		t.Fatalf("loader got document %q", loader.docs[0])
	}
}

func TestPutNetworkLoadFailure(t *testing.T) {
	store := newFakeStore()
	loader := &fakeLoader{err: fmt.Errorf("parse network: bad")}
	r := networksRouter(store, loader, 1<<20)

	req := httptest.NewRequest(http.MethodPut, "/api/networks/demo?load=true", strings.NewReader(testDocument))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "SIM_LOAD_FAILED" {
		t.Fatalf("error code = %s", code)
	}
	// The document is stored even when the load fails.
	if _, ok := store.docs["demo"]; !ok {
		t.Fatal("document should have been stored before the load attempt")
	}
}

func TestPutNetworkRejectsBadDocument(t *testing.T) {
	r := networksRouter(newFakeStore(), &fakeLoader{}, 1<<20)

	req := httptest.NewRequest(http.MethodPut, "/api/networks/demo", strings.NewReader("{broken"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "NETWORK_INVALID" {
		t.Fatalf("error code = %s", code)
	}
}

func TestPutNetworkRejectsBadName(t *testing.T) {
	r := networksRouter(newFakeStore(), &fakeLoader{}, 1<<20)

	req := httptest.NewRequest(http.MethodPut, "/api/networks/.hidden", strings.NewReader(testDocument))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "NETWORK_INVALID_NAME" {
		t.Fatalf("error code = %s", code)
	}
}

func TestPutNetworkTooLarge(t *testing.T) {
	r := networksRouter(newFakeStore(), &fakeLoader{}, 16)
	capped := middleware.MaxBody(16)(r)

	req := httptest.NewRequest(http.MethodPut, "/api/networks/demo", strings.NewReader(strings.Repeat("x", 64)))
	rr := httptest.NewRecorder()
	capped.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "NETWORK_TOO_LARGE" {
		t.Fatalf("error code = %s", code)
	}
}

func TestGetNetworkMissing(t *testing.T) {
	r := networksRouter(newFakeStore(), &fakeLoader{}, 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/api/networks/ghost", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "NETWORK_NOT_FOUND" {
		t.Fatalf("error code = %s", code)
	}
}

func TestListNetworks(t *testing.T) {
	store := newFakeStore()
	store.docs["beta"] = []byte(testDocument)
	store.docs["alpha"] = []byte(testDocument)
	r := networksRouter(store, &fakeLoader{}, 1<<20)

	req := httptest.NewRequest(http.MethodGet, "/api/networks", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var listing struct {
		Networks []netstore.Info `json:"networks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decoding listing: %v", err)
	}
	if len(listing.Networks) != 2 || listing.Networks[0].Name != "alpha" || listing.Networks[1].Name != "beta" {
		t.Fatalf("listing = %+v, want alpha then beta", listing.Networks)
	}
}

func TestDeleteNetwork(t *testing.T) {
	store := newFakeStore()
	store.docs["demo"] = []byte(testDocument)
	r := networksRouter(store, &fakeLoader{}, 1<<20)

	req := httptest.NewRequest(http.MethodDelete, "/api/networks/demo", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/networks/demo", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rr.Code)
	}
}

func TestLoadStoredNetwork(t *testing.T) {
	store := newFakeStore()
	store.docs["demo"] = []byte(testDocument)
	loader := &fakeLoader{}
	r := networksRouter(store, loader, 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/api/networks/demo/load", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if len(loader.loads) != 1 || loader.loads[0] != "demo" {
		t.Fatalf("loaded networks = %v, want [demo]", loader.loads)
	}
}

func TestStoreFailureMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantHTTP int
	}{
		{"unreachable backend", fmt.Errorf("%w", circuitbreaker.ErrCircuitOpen), "STORE_UNAVAILABLE", http.StatusServiceUnavailable},
		{"unexpected failure", fmt.Errorf("disk on fire"), "STORE_FAILED", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.err = tt.err
			r := networksRouter(store, &fakeLoader{}, 1<<20)

			req := httptest.NewRequest(http.MethodGet, "/api/networks/demo", nil)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != tt.wantHTTP {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantHTTP)
			}
			if code := errorCode(t, rr.Body.Bytes()); code != tt.wantCode {
				t.Fatalf("error code = %s, want %s", code, tt.wantCode)
			}
		})
	}
}
