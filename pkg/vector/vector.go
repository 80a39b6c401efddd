// Package vector fronts the vector stores behind one proxy. Two backends are
// wired: qdrant over gRPC as the primary, and an embedded bleve index for
// deployments that want keyword-aware hybrid search without an external
// service. The proxy owns collection-name validation, tenant filtering, and
// the ephemeral-collection TTL registry.
package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/vellum-io/vellum/pkg/kind"
)

// Item is one stored vector with its payload.
type Item struct {
	ID        string                 `json:"id"`
	Embedding []float32              `json:"embedding"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// Match is one search hit. Metadata carries whatever the item was stored
// with, including the chunk text under "text".
type Match struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Store is one vector backend. Implementations must tolerate dropping a
// collection that is already gone.
type Store interface {
	Name() string
	CreateCollection(ctx context.Context, name string, dim int) error
	DropCollection(ctx context.Context, name string) error
	Insert(ctx context.Context, collection string, items []Item, upsert bool) error
	Update(ctx context.Context, collection string, items []Item) error
	Delete(ctx context.Context, collection string, ids []string) error
	Search(ctx context.Context, collection string, embedding []float32, topK int) ([]Match, error)
	HybridSearch(ctx context.Context, collection string, embedding []float32, keywords string, topK int) ([]Match, error)
}

// Filters narrow search results by tenant metadata. All set fields must
// match; Entities matches when the stored list shares at least one entry.
type Filters struct {
	Department string   `json:"department,omitempty"`
	Team       string   `json:"team,omitempty"`
	User       string   `json:"user,omitempty"`
	Entities   []string `json:"entities,omitempty"`
	FileGUID   string   `json:"file_guid,omitempty"`
	FileName   string   `json:"file_name,omitempty"`
}

// Empty reports whether no filter field is set.
func (f *Filters) Empty() bool {
	if f == nil {
		return true
	}
	return f.Department == "" && f.Team == "" && f.User == "" &&
		len(f.Entities) == 0 && f.FileGUID == "" && f.FileName == ""
}

// Apply keeps the matches that pass every set filter, preserving order.
func (f *Filters) Apply(matches []Match) []Match {
	if f.Empty() {
		return matches
	}
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if f.matches(m.Metadata) {
			out = append(out, m)
		}
	}
	return out
}

func (f *Filters) matches(meta map[string]interface{}) bool {
	if f.Department != "" && metaString(meta, "department") != f.Department {
		return false
	}
	if f.Team != "" && metaString(meta, "team") != f.Team {
		return false
	}
	if f.User != "" && metaString(meta, "user") != f.User {
		return false
	}
	if f.FileGUID != "" && metaString(meta, "file_guid") != f.FileGUID {
		return false
	}
	if f.FileName != "" && metaString(meta, "file_name") != f.FileName {
		return false
	}
	if len(f.Entities) > 0 && !intersects(metaStrings(meta, "entities"), f.Entities) {
		return false
	}
	return true
}

func metaString(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	s, _ := meta[key].(string)
	return s
}

// metaStrings reads a string list that may arrive as []string (in-process),
// []interface{} (decoded from a backend payload), or a bare string when a
// backend collapses single-element arrays.
func metaStrings(meta map[string]interface{}, key string) []string {
	if meta == nil {
		return nil
	}
	switch v := meta[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

func intersects(have, want []string) bool {
	if len(have) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

// ValidateCollectionName enforces the knowledge-base naming rule. Names are
// used as index paths and gRPC identifiers, so only a conservative rune set
// passes.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("collection name required: %w", kind.ErrInputInvalid)
	}
	if !strings.HasPrefix(name, "kb_") {
		return fmt.Errorf("collection name %q must start with kb_: %w", name, kind.ErrInputInvalid)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("collection name %q contains path separators: %w", name, kind.ErrInputInvalid)
	}
	for _, r := range name {
		if !isCollectionRune(r) {
			return fmt.Errorf("collection name %q contains invalid rune %q: %w", name, r, kind.ErrInputInvalid)
		}
	}
	return nil
}

func isCollectionRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	}
	return false
}
