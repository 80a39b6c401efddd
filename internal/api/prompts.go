package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/vellum-io/vellum/internal/server"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/prompt"
)

// CreatePromptRequest stores a new template version. Versions advance
// automatically; templates are immutable once written.
type CreatePromptRequest struct {
	PromptID    string `json:"prompt_id"`
	Template    string `json:"template"`
	Description string `json:"description,omitempty"`
}

// PromptsHandler serves the prompt template store:
//
//	POST /api/v1/prompts                  store a new version
//	GET  /api/v1/prompts/{id}             latest version
//	GET  /api/v1/prompts/{id}?version=N   specific version
//	GET  /api/v1/prompts/{id}?all=true    every version, newest first
func PromptsHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if srv.Prompts == nil {
			http.Error(w, "prompt storage is not enabled", http.StatusServiceUnavailable)
			return
		}
		switch r.Method {
		case http.MethodPost:
			if promptID(r) != "" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			createPrompt(srv, w, r)
		case http.MethodGet:
			getPrompt(srv, w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func promptID(r *http.Request) string {
	return strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/prompts"), "/")
}

func createPrompt(srv server.Server, w http.ResponseWriter, r *http.Request) {
	var req CreatePromptRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(srv, w, r, err)
		return
	}

	// The store validates the id, template, and placeholder syntax.
	tpl, err := srv.Prompts.Create(r.Context(), req.PromptID, req.Template, req.Description)
	if err != nil {
		respondError(srv, w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, tpl)
}

func getPrompt(srv server.Server, w http.ResponseWriter, r *http.Request) {
	id := promptID(r)
	if id == "" {
		respondError(srv, w, r, fmt.Errorf("prompt id is required in the path: %w", kind.ErrInputInvalid))
		return
	}

	if r.URL.Query().Get("all") == "true" {
		tpls, err := srv.Prompts.List(r.Context(), id)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, tpls)
		return
	}

	version := 0
	if v := r.URL.Query().Get("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(srv, w, r, fmt.Errorf("bad version %q: %w", v, kind.ErrInputInvalid))
			return
		}
		version = n
	}

	tpl, err := srv.Prompts.Get(r.Context(), id, version)
	if err != nil {
		respondError(srv, w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tpl)
}

// RenderHandler renders a stored template with the supplied variables and
// forwards it to the router. The 202 mirrors the route endpoint: the
// prompt is queued, not answered.
func RenderHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if srv.PromptEngine == nil {
			http.Error(w, "prompt rendering is not enabled", http.StatusServiceUnavailable)
			return
		}

		var req prompt.RenderRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(srv, w, r, err)
			return
		}

		resp, err := srv.PromptEngine.RenderAndRoute(r.Context(), &req)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		respondJSON(w, http.StatusAccepted, resp)
	})
}
