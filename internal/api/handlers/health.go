package handlers

import (
	"net/http"
	"time"
)

// Health reports liveness. The simulation counts give load balancers
// and dashboards a cheap look at whether the instance is doing work.
func Health(svc StatusReporter, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := svc.Status()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"uptime":    time.Since(started).Round(time.Second).String(),
			"clients":   st.Clients,
			"particles": st.Particles,
		})
	}
}
