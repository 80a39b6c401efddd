package server

import (
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/chunk"
	"github.com/vellum-io/vellum/pkg/embed"
	"github.com/vellum-io/vellum/pkg/llm"
	"github.com/vellum-io/vellum/pkg/objectstore"
	"github.com/vellum-io/vellum/pkg/pii"
	"github.com/vellum-io/vellum/pkg/prompt"
	"github.com/vellum-io/vellum/pkg/rerank"
	"github.com/vellum-io/vellum/pkg/retrieval"
	"github.com/vellum-io/vellum/pkg/vector"
)

// Server bundles the services the API handlers share. Handlers receive the
// whole value and use what they need; a nil collaborator makes the
// endpoints that depend on it answer 503.
type Server struct {
	// Config is the resolved configuration.
	Config *config.Config

	// DB backs audit records, collection TTLs, and prompt templates.
	DB *gorm.DB

	// ObjectStore is the artifact gateway. The ingest endpoint reads
	// file payloads through it.
	ObjectStore objectstore.Gateway

	// Audit tracks per-document pipeline status.
	Audit audit.Store

	// Chunker splits ingested text before embedding.
	Chunker *chunk.Chunker

	// Embedder turns chunks and queries into vectors.
	Embedder *embed.Embedder

	// Vector routes collection and search calls to the configured
	// vector backends.
	Vector *vector.Proxy

	// Reranker reorders search hits by relevance to the query.
	Reranker *rerank.Reranker

	// Retrieval runs the query path: embed, search, rerank, route.
	Retrieval *retrieval.Orchestrator

	// Router picks an LLM backend and enqueues the invocation.
	Router *llm.Router

	// Prompts stores versioned prompt templates.
	Prompts *prompt.Store

	// PromptEngine renders stored templates and forwards them to the
	// router.
	PromptEngine *prompt.Engine

	// PII detects sensitive entities in caller-supplied text.
	PII *pii.Detector

	// Logger is the logger for the server.
	Logger hclog.Logger
}
