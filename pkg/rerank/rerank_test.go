package rerank

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/vector"
)

func match(id, text string, score float64) vector.Match {
	return vector.Match{
		ID:       id,
		Score:    score,
		Metadata: map[string]interface{}{"text": text},
	}
}

type stubProvider struct {
	scores []float64
	err    error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

func TestRerankSortsAndTruncates(t *testing.T) {
	r := NewWithProvider(&stubProvider{scores: []float64{0.2, 0.9, 0.5}}, hclog.NewNullLogger())

	matches := []vector.Match{
		match("a", "first", 0.99),
		match("b", "second", 0.98),
		match("c", "third", 0.97),
	}
	got := r.Rerank(context.Background(), "query", matches, 2)

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
	assert.Equal(t, 0.9, got[0].Metadata[ScoreKey])
	assert.Equal(t, 0.5, got[1].Metadata[ScoreKey])

	// Input metadata maps stay untouched.
	assert.NotContains(t, matches[0].Metadata, ScoreKey)
}

func TestRerankFailureKeepsOriginalOrder(t *testing.T) {
	r := NewWithProvider(&stubProvider{err: fmt.Errorf("cross-encoder down")}, hclog.NewNullLogger())

	matches := []vector.Match{
		match("a", "first", 0.99),
		match("b", "second", 0.98),
		match("c", "third", 0.97),
	}
	got := r.Rerank(context.Background(), "query", matches, 2)

	require.Len(t, got, 2, "truncation still applies")
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, 0.0, got[0].Metadata[ScoreKey])
}

func TestRerankScoreCountMismatchKeepsOrder(t *testing.T) {
	r := NewWithProvider(&stubProvider{scores: []float64{0.9}}, hclog.NewNullLogger())

	matches := []vector.Match{
		match("a", "first", 0.99),
		match("b", "second", 0.98),
	}
	got := r.Rerank(context.Background(), "query", matches, 0)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, 0.0, got[0].Metadata[ScoreKey])
}

func TestLocalProviderScores(t *testing.T) {
	p := NewLocalProvider()

	scores, err := p.Score(context.Background(), "acme merger agreement", []string{
		"the merger agreement between acme and globex",
		"quarterly revenue forecast",
		"",
	})
	require.NoError(t, err)
	require.Len(t, scores, 3)

	assert.Greater(t, scores[0], 0.5, "three shared terms")
	assert.Equal(t, 0.0, scores[1], "no shared terms")
	assert.Equal(t, 0.0, scores[2], "empty text")
}

func TestLocalProviderIsCaseAndPunctuationInsensitive(t *testing.T) {
	p := NewLocalProvider()

	a, err := p.Score(context.Background(), "Acme Merger", []string{"acme merger"})
	require.NoError(t, err)
	b, err := p.Score(context.Background(), "acme, merger!", []string{"ACME-MERGER"})
	require.NoError(t, err)
	assert.InDelta(t, a[0], b[0], 1e-9)
	assert.InDelta(t, 1.0, a[0], 1e-9)
}

func TestRemoteProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, `{"scores":[0.1,0.8]}`)
	}))
	defer srv.Close()

	p := NewRemoteProvider(&config.RerankConfig{
		Endpoint:       srv.URL,
		TimeoutSeconds: 5,
	}, hclog.NewNullLogger())

	scores, err := p.Score(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.8}, scores)
}

func TestRemoteProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewRemoteProvider(&config.RerankConfig{
		Endpoint:       srv.URL,
		TimeoutSeconds: 5,
	}, hclog.NewNullLogger())

	_, err := p.Score(context.Background(), "q", []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, kind.ErrRerankFailed)
}

func TestRemoteProviderScoreCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"scores":[0.1]}`)
	}))
	defer srv.Close()

	p := NewRemoteProvider(&config.RerankConfig{
		Endpoint:       srv.URL,
		TimeoutSeconds: 5,
	}, hclog.NewNullLogger())

	_, err := p.Score(context.Background(), "q", []string{"a", "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, kind.ErrRerankFailed)
}

func TestNewSelectsProvider(t *testing.T) {
	r, err := New(&config.RerankConfig{Provider: "local"}, hclog.NewNullLogger())
	require.NoError(t, err)
	assert.Equal(t, "local", r.provider.Name())

	r, err = New(&config.RerankConfig{Provider: "remote", Endpoint: "http://x"}, hclog.NewNullLogger())
	require.NoError(t, err)
	assert.Equal(t, "remote", r.provider.Name())

	_, err = New(&config.RerankConfig{Provider: "quantum"}, hclog.NewNullLogger())
	require.Error(t, err)
}
