package api

import (
	"fmt"
	"net/http"

	"github.com/vellum-io/vellum/internal/server"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/retrieval"
)

// RetrieveHandler runs the full query path: embed, search, rerank, route.
// A failure on any step answers with an empty result and an error field so
// callers never see partial context.
func RetrieveHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if srv.Retrieval == nil {
			http.Error(w, "retrieval is not enabled", http.StatusServiceUnavailable)
			return
		}

		var payload map[string]interface{}
		if err := decodeJSON(r, &payload); err != nil {
			respondError(srv, w, r, err)
			return
		}
		req, err := retrieval.DecodeRequest(payload)
		if err != nil {
			respondError(srv, w, r, fmt.Errorf("%v: %w", err, kind.ErrInputInvalid))
			return
		}

		resp, err := srv.Retrieval.Retrieve(r.Context(), req)
		if err != nil {
			status := statusFor(err)
			srv.Logger.Error("retrieval failed",
				"collection", req.CollectionName, "error", err)
			respondJSON(w, status, map[string]string{
				"result": "",
				"error":  errorMessage(status, err),
			})
			return
		}
		respondJSON(w, http.StatusOK, resp)
	})
}
