package api

import (
	"net/http"

	"github.com/vellum-io/vellum/internal/server"
)

// HealthHandler answers liveness probes.
func HealthHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
