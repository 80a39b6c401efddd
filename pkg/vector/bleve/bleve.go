// Package bleve adapts embedded bleve indexes to the vector.Store interface.
// Each collection is its own index under the configured base path. Chunk
// text and tenant metadata are indexed for keyword search; embeddings are
// stored without indexing and ranked by cosine similarity in-process, so the
// backend works without an external vector service. Hybrid search fuses the
// bleve keyword score with the cosine score.
package bleve

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/vector"
)

// Fusion weights for hybrid search: dense similarity dominates, keyword
// score breaks ties toward exact term matches.
const (
	denseWeight  = 0.7
	sparseWeight = 0.3
)

// embeddingField holds the stored-only vector inside each bleve document.
const embeddingField = "embedding"

// Store implements vector.Store over per-collection bleve indexes.
type Store struct {
	basePath string

	mu      sync.Mutex
	indexes map[string]bleve.Index

	log hclog.Logger
}

// New prepares the base directory. Indexes open lazily so collections
// created by an earlier process are visible after restart.
func New(cfg *config.VectorConfig, log hclog.Logger) (*Store, error) {
	if cfg.BlevePath == "" {
		return nil, fmt.Errorf("bleve index path required: %w", kind.ErrConfigMissing)
	}
	if err := os.MkdirAll(cfg.BlevePath, 0o755); err != nil {
		return nil, fmt.Errorf("error creating index directory: %w", err)
	}
	return &Store{
		basePath: cfg.BlevePath,
		indexes:  map[string]bleve.Index{},
		log:      log.Named("vector.bleve"),
	}, nil
}

func (s *Store) Name() string { return "bleve" }

func (s *Store) indexPath(collection string) string {
	return filepath.Join(s.basePath, collection+".bleve")
}

// createCollectionMapping indexes the text and tenant fields and stores the
// embedding without indexing it.
func createCollectionMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = "en"

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	embeddingFieldMapping := bleve.NewNumericFieldMapping()
	embeddingFieldMapping.Index = false
	embeddingFieldMapping.Store = true
	embeddingFieldMapping.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("docType", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("department", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("team", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("user", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("entities", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("file_guid", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("file_name", keywordFieldMapping)
	docMapping.AddFieldMappingsAt(embeddingField, embeddingFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

func openOrCreateIndex(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		return bleve.New(path, indexMapping)
	}
	return idx, err
}

// index returns the open index for a collection. With create false a
// missing collection is ErrNotFound.
func (s *Store) index(collection string, create bool) (bleve.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[collection]; ok {
		return idx, nil
	}

	path := s.indexPath(collection)
	if !create {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("collection %q: %w", collection, kind.ErrNotFound)
		}
	}

	idx, err := openOrCreateIndex(path, createCollectionMapping())
	if err != nil {
		return nil, fmt.Errorf("error opening index %q: %w", collection, err)
	}
	s.indexes[collection] = idx
	return idx, nil
}

func (s *Store) CreateCollection(_ context.Context, name string, _ int) error {
	// Bleve indexes are schemaless for our purposes; the dimension is fixed
	// by whatever vectors arrive.
	_, err := s.index(name, true)
	return err
}

func (s *Store) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[name]; ok {
		if err := idx.Close(); err != nil {
			return fmt.Errorf("error closing index %q: %w", name, err)
		}
		delete(s.indexes, name)
	}

	path := s.indexPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("error removing index %q: %w", name, err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, collection string, items []vector.Item, upsert bool) error {
	idx, err := s.index(collection, false)
	if err != nil {
		return err
	}

	if !upsert {
		for _, item := range items {
			doc, err := idx.Document(item.ID)
			if err != nil {
				return fmt.Errorf("error checking id %q: %w", item.ID, err)
			}
			if doc != nil {
				return fmt.Errorf("id %q already exists in %q: %w",
					item.ID, collection, kind.ErrInputInvalid)
			}
		}
	}

	return s.indexBatch(idx, items)
}

func (s *Store) Update(ctx context.Context, collection string, items []vector.Item) error {
	idx, err := s.index(collection, false)
	if err != nil {
		return err
	}
	return s.indexBatch(idx, items)
}

func (s *Store) indexBatch(idx bleve.Index, items []vector.Item) error {
	batch := idx.NewBatch()
	for _, item := range items {
		doc := make(map[string]interface{}, len(item.Metadata)+1)
		for k, v := range item.Metadata {
			doc[k] = v
		}
		doc[embeddingField] = item.Embedding
		if err := batch.Index(item.ID, doc); err != nil {
			return fmt.Errorf("error adding %q to batch: %w", item.ID, err)
		}
	}
	return idx.Batch(batch)
}

func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	idx, err := s.index(collection, false)
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return idx.Batch(batch)
}

// Search ranks every stored vector by cosine similarity. The scan is linear,
// which fits the embedded backend's scale; large corpora belong on qdrant.
func (s *Store) Search(ctx context.Context, collection string, embedding []float32, topK int) ([]vector.Match, error) {
	idx, err := s.index(collection, false)
	if err != nil {
		return nil, err
	}

	count, err := idx.DocCount()
	if err != nil {
		return nil, fmt.Errorf("error counting documents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	searchRequest := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	searchRequest.Size = int(count)
	searchRequest.Fields = []string{"*"}

	res, err := idx.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	matches := make([]vector.Match, 0, len(res.Hits))
	for _, hit := range res.Hits {
		stored, meta := splitStoredFields(hit.Fields)
		matches = append(matches, vector.Match{
			ID:       hit.ID,
			Score:    cosine(embedding, stored),
			Metadata: meta,
		})
	}
	sortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// HybridSearch runs the keyword query first and reranks its hits by a
// weighted blend of keyword score and cosine similarity.
func (s *Store) HybridSearch(ctx context.Context, collection string, embedding []float32, keywords string, topK int) ([]vector.Match, error) {
	if keywords == "" {
		return s.Search(ctx, collection, embedding, topK)
	}

	idx, err := s.index(collection, false)
	if err != nil {
		return nil, err
	}

	query := bleve.NewMatchQuery(keywords)
	query.SetField("text")
	searchRequest := bleve.NewSearchRequest(query)
	// Over-fetch so the cosine blend can promote hits the keyword score
	// ranked low.
	searchRequest.Size = topK * 4
	if searchRequest.Size < 50 {
		searchRequest.Size = 50
	}
	searchRequest.Fields = []string{"*"}

	res, err := idx.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	maxScore := res.MaxScore
	matches := make([]vector.Match, 0, len(res.Hits))
	for _, hit := range res.Hits {
		stored, meta := splitStoredFields(hit.Fields)
		keyword := 0.0
		if maxScore > 0 {
			keyword = hit.Score / maxScore
		}
		matches = append(matches, vector.Match{
			ID:       hit.ID,
			Score:    denseWeight*cosine(embedding, stored) + sparseWeight*keyword,
			Metadata: meta,
		})
	}
	sortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func sortMatches(matches []vector.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
}

// splitStoredFields separates the stored embedding from the metadata.
// Stored numeric arrays come back as []interface{} of float64; a
// single-element array collapses to a bare float64.
func splitStoredFields(fields map[string]interface{}) ([]float32, map[string]interface{}) {
	meta := make(map[string]interface{}, len(fields))
	var stored []float32
	for k, v := range fields {
		if k == embeddingField {
			switch tv := v.(type) {
			case []interface{}:
				stored = make([]float32, 0, len(tv))
				for _, e := range tv {
					if f, ok := e.(float64); ok {
						stored = append(stored, float32(f))
					}
				}
			case float64:
				stored = []float32{float32(tv)}
			}
			continue
		}
		meta[k] = v
	}
	return stored, meta
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Close shuts every open index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, idx := range s.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close index %q: %w", name, err))
		}
		delete(s.indexes, name)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing indexes: %v", errs)
	}
	return nil
}
