// Package qdrant adapts the qdrant gRPC client to the vector.Store
// interface. It is the primary backend: collections map one-to-one to
// qdrant collections with cosine distance.
package qdrant

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/qdrant/go-client/qdrant"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/vector"
)

// Store implements vector.Store over a qdrant server.
type Store struct {
	client *qdrant.Client
	log    hclog.Logger
}

// New connects to qdrant. The connection is lazy; the first call surfaces
// connectivity problems.
func New(cfg *config.VectorConfig, log hclog.Logger) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantKey,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating qdrant client: %w", err)
	}
	return &Store{client: client, log: log.Named("vector.qdrant")}, nil
}

func (s *Store) Name() string { return "qdrant" }

// CreateCollection creates the collection if it does not already exist, so
// repeated creates are safe.
func (s *Store) CreateCollection(ctx context.Context, name string, dim int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant collection check: %v: %w", err, kind.ErrBackendUnavailable)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %v: %w", err, kind.ErrBackendUnavailable)
	}
	return nil
}

// DropCollection removes the collection. Dropping a collection that is
// already gone is not an error; the reaper double-drops on retry.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant collection check: %v: %w", err, kind.ErrBackendUnavailable)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("qdrant drop collection: %v: %w", err, kind.ErrBackendUnavailable)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, collection string, items []vector.Item, upsert bool) error {
	if len(items) == 0 {
		return nil
	}
	// The qdrant upsert call overwrites existing ids either way; when the
	// caller asked for a strict insert, reject ids that are already stored.
	if !upsert {
		ids := make([]*qdrant.PointId, len(items))
		for i, item := range items {
			ids[i] = qdrant.NewIDUUID(item.ID)
		}
		existing, err := s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: collection,
			Ids:            ids,
		})
		if err != nil {
			return fmt.Errorf("qdrant get points: %v: %w", err, kind.ErrBackendUnavailable)
		}
		if len(existing) > 0 {
			return fmt.Errorf("%d of %d ids already exist in %q: %w",
				len(existing), len(items), collection, kind.ErrInputInvalid)
		}
	}
	return s.upsert(ctx, collection, items)
}

func (s *Store) Update(ctx context.Context, collection string, items []vector.Item) error {
	if len(items) == 0 {
		return nil
	}
	return s.upsert(ctx, collection, items)
}

func (s *Store) upsert(ctx context.Context, collection string, items []vector.Item) error {
	points := make([]*qdrant.PointStruct, len(items))
	for i, item := range items {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(item.ID),
			Vectors: qdrant.NewVectors(item.Embedding...),
			Payload: qdrant.NewValueMap(normalizeMetadata(item.Metadata)),
		}
	}
	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %v: %w", err, kind.ErrBackendUnavailable)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}
	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %v: %w", err, kind.ErrBackendUnavailable)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, embedding []float32, topK int) ([]vector.Match, error) {
	return s.query(ctx, collection, embedding, "", topK)
}

// HybridSearch narrows the vector search with a full-text condition on the
// stored chunk text.
func (s *Store) HybridSearch(ctx context.Context, collection string, embedding []float32, keywords string, topK int) ([]vector.Match, error) {
	return s.query(ctx, collection, embedding, keywords, topK)
}

func (s *Store) query(ctx context.Context, collection string, embedding []float32, keywords string, topK int) ([]vector.Match, error) {
	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if keywords != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchText("text", keywords)},
		}
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %v: %w", err, kind.ErrBackendUnavailable)
	}

	matches := make([]vector.Match, 0, len(points))
	for _, p := range points {
		matches = append(matches, vector.Match{
			ID:       pointIDString(p.Id),
			Score:    float64(p.Score),
			Metadata: payloadToMap(p.Payload),
		})
	}
	return matches, nil
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

// normalizeMetadata rewrites typed slices into the []interface{} form the
// qdrant value helpers accept.
func normalizeMetadata(meta map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		switch tv := v.(type) {
		case []string:
			list := make([]interface{}, len(tv))
			for i, s := range tv {
				list[i] = s
			}
			out[k] = list
		default:
			out[k] = v
		}
	}
	return out
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) interface{} {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		values := val.ListValue.GetValues()
		list := make([]interface{}, 0, len(values))
		for _, e := range values {
			list = append(list, valueToAny(e))
		}
		return list
	case *qdrant.Value_StructValue:
		fields := val.StructValue.GetFields()
		m := make(map[string]interface{}, len(fields))
		for k, e := range fields {
			m[k] = valueToAny(e)
		}
		return m
	default:
		return nil
	}
}
