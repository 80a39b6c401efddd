package api

import (
	"fmt"
	"net/http"

	"github.com/vellum-io/vellum/internal/server"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/vector"
)

// SearchRequest is the search payload: the proxy fields plus the flat
// tenant filters. A query string is embedded server-side when no embedding
// is given; keywords switch the backend call to hybrid mode.
type SearchRequest struct {
	CollectionName string    `json:"collection_name"`
	Query          string    `json:"query,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
	Keywords       string    `json:"keywords,omitempty"`
	TopK           int       `json:"top_k,omitempty"`
	StorageMode    string    `json:"storage_mode,omitempty"`
	EmbedModel     string    `json:"embedModel,omitempty"`
	Department     string    `json:"department,omitempty"`
	Team           string    `json:"team,omitempty"`
	User           string    `json:"user,omitempty"`
	Entities       []string  `json:"entities,omitempty"`
	FileGUID       string    `json:"file_guid,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
}

func (req *SearchRequest) filters() *vector.Filters {
	f := &vector.Filters{
		Department: req.Department,
		Team:       req.Team,
		User:       req.User,
		Entities:   req.Entities,
		FileGUID:   req.FileGUID,
		FileName:   req.FileName,
	}
	if f.Empty() {
		return nil
	}
	return f
}

// SearchResponse lists the matches after proxy-side filtering.
type SearchResponse struct {
	Matches []vector.Match `json:"matches"`
}

// SearchHandler runs one proxy search.
func SearchHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if srv.Vector == nil {
			http.Error(w, "vector search is not enabled", http.StatusServiceUnavailable)
			return
		}

		var req SearchRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(srv, w, r, err)
			return
		}

		embedding := req.Embedding
		if len(embedding) == 0 {
			if req.Query == "" {
				respondError(srv, w, r,
					fmt.Errorf("embedding or query is required: %w", kind.ErrInputInvalid))
				return
			}
			if srv.Embedder == nil {
				http.Error(w, "query embedding is not enabled", http.StatusServiceUnavailable)
				return
			}
			var err error
			embedding, err = srv.Embedder.EmbedQuery(r.Context(), req.EmbedModel, req.Query)
			if err != nil {
				respondError(srv, w, r, err)
				return
			}
		}

		matches, err := srv.Vector.Search(r.Context(), vector.SearchRequest{
			Collection:  req.CollectionName,
			Embedding:   embedding,
			Keywords:    req.Keywords,
			TopK:        req.TopK,
			StorageMode: req.StorageMode,
			Filters:     req.filters(),
		})
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		if matches == nil {
			matches = []vector.Match{}
		}
		respondJSON(w, http.StatusOK, SearchResponse{Matches: matches})
	})
}
