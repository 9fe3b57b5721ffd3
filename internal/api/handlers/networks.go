package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vrui-vr/networkviewer/internal/apierr"
	"github.com/vrui-vr/networkviewer/internal/circuitbreaker"
	"github.com/vrui-vr/networkviewer/internal/logger"
	"github.com/vrui-vr/networkviewer/internal/netstore"
	"github.com/vrui-vr/networkviewer/internal/tracing"
)

// NetworkLoader is the simulation service seen from the networks API:
// the administrative load path.
type NetworkLoader interface {
	LoadNetwork(name string, document []byte) error
}

// writeStoreError maps a store failure onto the apierr envelope.
func writeStoreError(w http.ResponseWriter, r *http.Request, name string, err error) {
	switch {
	case errors.Is(err, netstore.ErrNotFound):
		apierr.WriteErrorWithContext(w, r, apierr.NetworkNotFound(name))
	case errors.Is(err, netstore.ErrInvalidName):
		apierr.WriteErrorWithContext(w, r, apierr.NetworkInvalidName(err.Error()))
	case errors.Is(err, netstore.ErrInvalidDocument):
		apierr.WriteErrorWithContext(w, r, apierr.NetworkInvalid(err.Error()))
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		apierr.WriteErrorWithContext(w, r, apierr.StoreUnavailable("network store is temporarily unavailable"))
	default:
		logger.ErrorContext(r.Context(), "network store operation failed", "network", name, "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.StoreFailed("network store operation failed"))
	}
}

// ListNetworks returns the stored network catalog.
// GET /api/networks
func ListNetworks(store netstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos, err := store.List(r.Context())
		if err != nil {
			writeStoreError(w, r, "", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"networks": infos})
	}
}

// GetNetwork returns one stored document verbatim.
// GET /api/networks/{name}
func GetNetwork(store netstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), "handlers.GetNetwork")
		defer span.End()

		name := mux.Vars(r)["name"]
		span.SetAttributes(attribute.String("network", name))

		document, err := store.Get(ctx, name)
		if err != nil {
			writeStoreError(w, r, name, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(document)
	}
}

// PutNetwork stores an uploaded document. With ?load=true the document
// is handed to the simulation immediately after the write succeeds.
// PUT /api/networks/{name}
func PutNetwork(store netstore.Store, loader NetworkLoader, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), "handlers.PutNetwork")
		defer span.End()

		name := mux.Vars(r)["name"]

		document, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				apierr.WriteErrorWithContext(w, r, apierr.NetworkTooLarge(maxBytes))
				return
			}
			apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidFormat("could not read request body"))
			return
		}
		span.SetAttributes(
			attribute.String("network", name),
			attribute.Int("document_bytes", len(document)),
		)

		if err := store.Put(ctx, name, document); err != nil {
			writeStoreError(w, r, name, err)
			return
		}

		loaded := false
		if wantLoad, _ := strconv.ParseBool(r.URL.Query().Get("load")); wantLoad {
			if err := loader.LoadNetwork(name, document); err != nil {
				apierr.WriteErrorWithContext(w, r, apierr.SimLoadFailed(err.Error()))
				return
			}
			loaded = true
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"name":   name,
			"loaded": loaded,
		})
	}
}

// DeleteNetwork removes a stored document. The running simulation is
// untouched; a loaded network keeps simulating after its document is
// deleted.
// DELETE /api/networks/{name}
func DeleteNetwork(store netstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if err := store.Delete(r.Context(), name); err != nil {
			writeStoreError(w, r, name, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// LoadNetwork reads a stored document and loads it into the running
// simulation.
// POST /api/networks/{name}/load
func LoadNetwork(store netstore.Store, loader NetworkLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), "handlers.LoadNetwork")
		defer span.End()

		name := mux.Vars(r)["name"]
		span.SetAttributes(attribute.String("network", name))

		document, err := store.Get(ctx, name)
		if err != nil {
			writeStoreError(w, r, name, err)
			return
		}
		if err := loader.LoadNetwork(name, document); err != nil {
			apierr.WriteErrorWithContext(w, r, apierr.SimLoadFailed(err.Error()))
			return
		}
		span.SetAttributes(attribute.Int("document_bytes", len(document)))
		writeJSON(w, http.StatusOK, map[string]any{
			"name":   name,
			"loaded": true,
		})
	}
}
