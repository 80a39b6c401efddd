// Package api implements the HTTP endpoints. Every handler follows the
// same shape: a constructor takes the server and returns an http.Handler,
// so the route table stays declarative and handlers are testable with
// httptest alone.
package api

import (
	"net/http"

	"github.com/vellum-io/vellum/internal/server"
)

// RegisterRoutes attaches every endpoint to mux. The prompts handler is
// registered with and without the trailing slash so both the collection
// path and /{id} lookups resolve; the more specific render pattern wins
// for its exact path.
func RegisterRoutes(srv server.Server, mux *http.ServeMux) {
	endpoints := []struct {
		pattern string
		handler http.Handler
	}{
		{"/health", HealthHandler(srv)},
		{"/api/v1/route", RouteHandler(srv)},
		{"/api/v1/retrieve", RetrieveHandler(srv)},
		{"/api/v1/ingest", IngestHandler(srv)},
		{"/api/v1/search", SearchHandler(srv)},
		{"/api/v1/rerank", RerankHandler(srv)},
		{"/api/v1/pii", PIIHandler(srv)},
		{"/api/v1/prompts", PromptsHandler(srv)},
		{"/api/v1/prompts/", PromptsHandler(srv)},
		{"/api/v1/prompts/render", RenderHandler(srv)},
	}
	for _, e := range endpoints {
		mux.Handle(e.pattern, e.handler)
	}
}
