package handlers

import (
	"net/http"

	"github.com/vrui-vr/networkviewer/internal/sim"
)

// StatusReporter is the slice of the simulation service the read-only
// endpoints use.
type StatusReporter interface {
	Status() sim.Status
}

// GetStatus reports the loaded network, its version and the particle,
// link and client counts.
func GetStatus(svc StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	}
}
