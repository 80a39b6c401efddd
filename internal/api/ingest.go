package api

import (
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/vellum-io/vellum/internal/server"
	"github.com/vellum-io/vellum/pkg/chunk"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/vector"
)

// IngestRequest is the direct-indexing payload. Exactly one of Text and
// File supplies the content; File names an object-store key in the
// configured bucket.
type IngestRequest struct {
	Text           string `json:"text,omitempty"`
	File           string `json:"file,omitempty"`
	CollectionName string `json:"collection_name"`
	DocType        string `json:"docType,omitempty"`
	Department     string `json:"department,omitempty"`
	Team           string `json:"team,omitempty"`
	User           string `json:"user,omitempty"`
	FileGUID       string `json:"file_guid,omitempty"`
	FileName       string `json:"file_name,omitempty"`
	ChunkSize      int    `json:"chunk_size,omitempty"`
	ChunkOverlap   int    `json:"chunk_overlap,omitempty"`
	ChunkStrategy  string `json:"chunkStrategy,omitempty"`
	EmbedModel     string `json:"embedModel,omitempty"`
	StorageMode    string `json:"storage_mode,omitempty"`
	Upsert         bool   `json:"upsert,omitempty"`
}

func (req *IngestRequest) validate() error {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.CollectionName, validation.Required),
		validation.Field(&req.ChunkSize, validation.Min(0)),
		validation.Field(&req.ChunkOverlap, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("%v: %w", err, kind.ErrInputInvalid)
	}
	if (req.Text == "") == (req.File == "") {
		return fmt.Errorf("exactly one of text and file is required: %w", kind.ErrInputInvalid)
	}
	return nil
}

// IngestResponse reports what was written.
type IngestResponse struct {
	Collection string `json:"collection_name"`
	Chunks     int    `json:"chunks"`
}

// IngestHandler chunks the supplied text, embeds the chunks, and inserts
// the vectors. It is the synchronous sibling of the staged pipeline for
// content that arrives as text rather than documents.
func IngestHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if srv.Chunker == nil || srv.Embedder == nil || srv.Vector == nil {
			http.Error(w, "ingest is not enabled", http.StatusServiceUnavailable)
			return
		}

		var req IngestRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(srv, w, r, err)
			return
		}
		if err := req.validate(); err != nil {
			respondError(srv, w, r, err)
			return
		}

		text := req.Text
		if req.File != "" {
			if srv.ObjectStore == nil {
				http.Error(w, "object store is not configured", http.StatusServiceUnavailable)
				return
			}
			data, err := srv.ObjectStore.Get(r.Context(), srv.Config.ObjectStore.Bucket, req.File)
			if err != nil {
				respondError(srv, w, r, fmt.Errorf("reading %s: %w", req.File, err))
				return
			}
			text = string(data)
		}

		meta := chunk.Metadata{
			DocType:    req.DocType,
			FileGUID:   req.FileGUID,
			FileName:   req.FileName,
			Department: req.Department,
			Team:       req.Team,
			User:       req.User,
		}
		chunks, err := srv.Chunker.Split(text, meta, chunk.Options{
			Size:     req.ChunkSize,
			Overlap:  req.ChunkOverlap,
			Strategy: req.ChunkStrategy,
		})
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		if len(chunks) == 0 {
			respondJSON(w, http.StatusOK, IngestResponse{Collection: req.CollectionName})
			return
		}

		vectors, metadatas, err := srv.Embedder.EmbedChunks(r.Context(), chunks, req.EmbedModel)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}

		items := make([]vector.Item, len(vectors))
		for i := range vectors {
			items[i] = vector.Item{
				ID:        uuid.New().String(),
				Embedding: vectors[i],
				Metadata:  metadatas[i],
			}
		}
		if err := srv.Vector.Insert(r.Context(), req.CollectionName, req.StorageMode, items, req.Upsert); err != nil {
			respondError(srv, w, r, err)
			return
		}

		srv.Logger.Info("ingested text",
			"collection", req.CollectionName, "chunks", len(items))
		respondJSON(w, http.StatusOK, IngestResponse{
			Collection: req.CollectionName,
			Chunks:     len(items),
		})
	})
}
