package api

import (
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/vellum-io/vellum/internal/server"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/vector"
)

// RerankRequest carries candidate matches back through the reranker.
type RerankRequest struct {
	Query   string         `json:"query"`
	Matches []vector.Match `json:"matches"`
	TopK    int            `json:"top_k,omitempty"`
}

// RerankResponse lists the matches in their new order, each carrying its
// rerank_score in the metadata.
type RerankResponse struct {
	Matches []vector.Match `json:"matches"`
}

// RerankHandler rescores matches against the query. Scoring failures keep
// the original order, so the endpoint only fails on bad input.
func RerankHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if srv.Reranker == nil {
			http.Error(w, "reranking is not enabled", http.StatusServiceUnavailable)
			return
		}

		var req RerankRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(srv, w, r, err)
			return
		}
		if err := validation.ValidateStruct(&req,
			validation.Field(&req.Query, validation.Required),
			validation.Field(&req.TopK, validation.Min(0)),
		); err != nil {
			respondError(srv, w, r, fmt.Errorf("%v: %w", err, kind.ErrInputInvalid))
			return
		}

		matches := srv.Reranker.Rerank(r.Context(), req.Query, req.Matches, req.TopK)
		if matches == nil {
			matches = []vector.Match{}
		}
		respondJSON(w, http.StatusOK, RerankResponse{Matches: matches})
	})
}
