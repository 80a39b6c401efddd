package vector

import (
	"context"
	"fmt"

	"github.com/araddon/dateparse"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/models"
)

// Proxy routes requests to a backend by storage mode and applies the
// policies no single backend owns: collection-name validation, proxy-side
// tenant filters with over-fetch, and ephemeral TTL registration.
type Proxy struct {
	backends        map[string]Store
	defaultMode     string
	fetchMultiplier int
	db              *gorm.DB
	log             hclog.Logger
}

// NewProxy wires the proxy over explicit backends. The db holds the
// ephemeral-collection registry and may be nil when no caller creates
// ephemeral collections.
func NewProxy(cfg *config.VectorConfig, backends map[string]Store, db *gorm.DB, log hclog.Logger) *Proxy {
	return &Proxy{
		backends:        backends,
		defaultMode:     cfg.DefaultMode,
		fetchMultiplier: cfg.FetchMultiplier,
		db:              db,
		log:             log.Named("vector"),
	}
}

// CreateCollectionRequest carries the create parameters. ExpiresAt accepts
// RFC3339 or any common timestamp layout.
type CreateCollectionRequest struct {
	Name        string `json:"collection_name"`
	Dim         int    `json:"dim"`
	StorageMode string `json:"storage_mode,omitempty"`
	Ephemeral   bool   `json:"ephemeral,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// SearchRequest carries one search. Keywords switches the backend call to
// hybrid mode.
type SearchRequest struct {
	Collection  string    `json:"collection_name"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Keywords    string    `json:"keywords,omitempty"`
	TopK        int       `json:"top_k,omitempty"`
	StorageMode string    `json:"storage_mode,omitempty"`
	Filters     *Filters  `json:"filters,omitempty"`
}

func (p *Proxy) store(mode string) (Store, string, error) {
	if mode == "" {
		mode = p.defaultMode
	}
	s, ok := p.backends[mode]
	if !ok {
		return nil, "", fmt.Errorf("unknown storage mode %q: %w", mode, kind.ErrInputInvalid)
	}
	return s, mode, nil
}

// CreateCollection validates the name, creates the collection, and for
// ephemeral collections registers the expiry. Registration happens after the
// create so a failed create leaves no orphan row; a crash between the two
// leaves an unregistered collection, which the create path tolerates on
// retry because backends upsert collection creation.
func (p *Proxy) CreateCollection(ctx context.Context, req CreateCollectionRequest) error {
	if err := ValidateCollectionName(req.Name); err != nil {
		return err
	}
	if req.Dim <= 0 {
		return fmt.Errorf("dim must be positive: %w", kind.ErrInputInvalid)
	}

	s, mode, err := p.store(req.StorageMode)
	if err != nil {
		return err
	}

	if req.Ephemeral {
		if req.ExpiresAt == "" {
			return fmt.Errorf("ephemeral collection requires expires_at: %w", kind.ErrInputInvalid)
		}
		expiresAt, err := dateparse.ParseAny(req.ExpiresAt)
		if err != nil {
			return fmt.Errorf("unparseable expires_at %q: %w", req.ExpiresAt, kind.ErrInputInvalid)
		}
		if p.db == nil {
			return fmt.Errorf("ephemeral collections need a TTL registry: %w", kind.ErrConfigMissing)
		}
		if err := s.CreateCollection(ctx, req.Name, req.Dim); err != nil {
			return err
		}
		if err := models.RegisterCollectionTTL(p.db, req.Name, mode, expiresAt.UTC()); err != nil {
			return fmt.Errorf("error registering collection TTL: %w", err)
		}
		p.log.Info("created ephemeral collection",
			"collection", req.Name, "mode", mode, "expires_at", expiresAt.UTC())
		return nil
	}

	if err := s.CreateCollection(ctx, req.Name, req.Dim); err != nil {
		return err
	}
	p.log.Info("created collection", "collection", req.Name, "mode", mode)
	return nil
}

// DropCollection drops the collection and removes any TTL registration.
func (p *Proxy) DropCollection(ctx context.Context, name, storageMode string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	s, _, err := p.store(storageMode)
	if err != nil {
		return err
	}
	if err := s.DropCollection(ctx, name); err != nil {
		return err
	}
	if p.db != nil {
		if err := models.DeleteCollectionTTL(p.db, name); err != nil {
			return fmt.Errorf("error removing collection TTL: %w", err)
		}
	}
	return nil
}

// Insert writes items, optionally upserting.
func (p *Proxy) Insert(ctx context.Context, collection, storageMode string, items []Item, upsert bool) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	s, _, err := p.store(storageMode)
	if err != nil {
		return err
	}
	return s.Insert(ctx, collection, items, upsert)
}

// Update overwrites existing items.
func (p *Proxy) Update(ctx context.Context, collection, storageMode string, items []Item) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	s, _, err := p.store(storageMode)
	if err != nil {
		return err
	}
	return s.Update(ctx, collection, items)
}

// Delete removes items by id.
func (p *Proxy) Delete(ctx context.Context, collection, storageMode string, ids []string) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	s, _, err := p.store(storageMode)
	if err != nil {
		return err
	}
	return s.Delete(ctx, collection, ids)
}

// Search runs one vector (or hybrid, when keywords are present) search.
// Filters run proxy-side after the backend returns, so the backend is asked
// for fetchMultiplier times top_k candidates whenever filters are set.
func (p *Proxy) Search(ctx context.Context, req SearchRequest) ([]Match, error) {
	if err := ValidateCollectionName(req.Collection); err != nil {
		return nil, err
	}
	if len(req.Embedding) == 0 {
		return nil, fmt.Errorf("embedding required: %w", kind.ErrInputInvalid)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	s, mode, err := p.store(req.StorageMode)
	if err != nil {
		return nil, err
	}

	fetchK := topK
	if !req.Filters.Empty() {
		fetchK = topK * p.fetchMultiplier
	}

	var matches []Match
	if req.Keywords != "" {
		matches, err = s.HybridSearch(ctx, req.Collection, req.Embedding, req.Keywords, fetchK)
	} else {
		matches, err = s.Search(ctx, req.Collection, req.Embedding, fetchK)
	}
	if err != nil {
		return nil, err
	}

	matches = req.Filters.Apply(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	p.log.Debug("search complete",
		"collection", req.Collection, "mode", mode,
		"top_k", topK, "fetched", fetchK, "returned", len(matches))
	return matches, nil
}
