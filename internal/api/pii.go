package api

import (
	"fmt"
	"net/http"

	"github.com/vellum-io/vellum/internal/server"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/pii"
)

// PIIRequest asks for entity detection over raw text. Domain adds the
// medical or legal pattern pack; anything else scans with the defaults.
type PIIRequest struct {
	Text   string `json:"text"`
	Domain string `json:"domain,omitempty"`
}

// PIIResponse lists the detected entities with their byte offsets.
type PIIResponse struct {
	Entities []pii.Entity `json:"entities"`
}

// PIIHandler detects sensitive entities in the supplied text.
func PIIHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if srv.PII == nil {
			http.Error(w, "PII detection is not enabled", http.StatusServiceUnavailable)
			return
		}

		var req PIIRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(srv, w, r, err)
			return
		}
		if req.Text == "" {
			respondError(srv, w, r, fmt.Errorf("text is required: %w", kind.ErrInputInvalid))
			return
		}

		entities, err := srv.PII.Detect(r.Context(), req.Text, pii.ParseDomain(req.Domain))
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		if entities == nil {
			entities = []pii.Entity{}
		}
		respondJSON(w, http.StatusOK, PIIResponse{Entities: entities})
	})
}
