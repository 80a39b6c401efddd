package api

import (
	"fmt"
	"net/http"

	"github.com/vellum-io/vellum/internal/server"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/llm"
)

// RouteHandler validates a prompt, picks a backend, and enqueues the
// invocation. The 202 tells the caller the prompt is queued, not answered;
// the invoker delivers the model output out of band.
func RouteHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if srv.Router == nil {
			http.Error(w, "routing is not enabled", http.StatusServiceUnavailable)
			return
		}

		// Decode loosely so unrecognized keys ride along to the invoker.
		var payload map[string]interface{}
		if err := decodeJSON(r, &payload); err != nil {
			respondError(srv, w, r, err)
			return
		}
		req, err := llm.DecodeRouteRequest(payload)
		if err != nil {
			respondError(srv, w, r, fmt.Errorf("%v: %w", err, kind.ErrInputInvalid))
			return
		}

		resp, err := srv.Router.Route(r.Context(), req)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		respondJSON(w, http.StatusAccepted, resp)
	})
}
