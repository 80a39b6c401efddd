package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
)

func routerConfig() *config.RouterConfig {
	return &config.RouterConfig{
		MaxPromptLength: 4096,
		WordThreshold:   20,
		SimpleBackend:   BackendOllama,
		ComplexBackend:  BackendBedrock,
		DefaultBackend:  BackendBedrock,
		Allowlist:       []string{BackendBedrock, BackendOllama},
	}
}

func TestHeuristicWordThreshold(t *testing.T) {
	h := NewHeuristic(routerConfig())

	backend, ok, err := h.Select(context.Background(), "what is the capital of france")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, BackendOllama, backend)

	long := "please compare the tradeoffs between eventual and strong consistency " +
		"for a multi region document store and recommend an architecture with " +
		"specific attention to conflict resolution"
	backend, ok, err = h.Select(context.Background(), long)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, BackendBedrock, backend)
}

func TestHeuristicCodeOutranksLength(t *testing.T) {
	h := NewHeuristic(routerConfig())

	backend, ok, err := h.Select(context.Background(), "fix this ```go\npanic(1)\n```")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, BackendBedrock, backend)

	backend, ok, err = h.Select(context.Background(), "explain SELECT id FROM users")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, BackendBedrock, backend)
}

func TestHeuristicLanguageHint(t *testing.T) {
	h := NewHeuristic(routerConfig())

	backend, ok, err := h.Select(context.Background(), "переведи этот документ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, BackendBedrock, backend)
}

type stubClassifier struct {
	verdict string
	err     error
	calls   int
}

func (s *stubClassifier) Classify(context.Context, string) (string, error) {
	s.calls++
	return s.verdict, s.err
}

func TestPredictiveMapsVerdicts(t *testing.T) {
	cfg := routerConfig()
	log := hclog.NewNullLogger()

	p := NewPredictive(&stubClassifier{verdict: "simple"}, cfg, log)
	backend, ok, err := p.Select(context.Background(), "anything")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, BackendOllama, backend)

	p = NewPredictive(&stubClassifier{verdict: "complex"}, cfg, log)
	backend, ok, err = p.Select(context.Background(), "anything")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, BackendBedrock, backend)
}

func TestPredictiveAbstains(t *testing.T) {
	cfg := routerConfig()
	log := hclog.NewNullLogger()

	p := NewPredictive(nil, cfg, log)
	_, ok, err := p.Select(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	p = NewPredictive(&stubClassifier{verdict: "medium"}, cfg, log)
	_, ok, err = p.Select(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	p = NewPredictive(&stubClassifier{err: errors.New("boom")}, cfg, log)
	_, _, err = p.Select(context.Background(), "anything")
	assert.Error(t, err)
}

func TestGenerativeAlwaysDecides(t *testing.T) {
	g := NewGenerative(BackendBedrock)
	backend, ok, err := g.Select(context.Background(), "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, BackendBedrock, backend)
}

func TestOllamaClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		w.Write([]byte(`{"response":" Complex.\n"}`))
	}))
	defer srv.Close()

	c := NewOllamaClassifier(srv.URL, "phi3", 0)
	verdict, err := c.Classify(context.Background(), "prove the halting problem is undecidable")
	require.NoError(t, err)
	assert.Equal(t, "complex", verdict)
}

func TestOllamaClassifierUnparseableVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"maybe"}`))
	}))
	defer srv.Close()

	c := NewOllamaClassifier(srv.URL, "phi3", 0)
	_, err := c.Classify(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, kind.ErrLLMFailed)
}

func TestOllamaClassifierUnavailable(t *testing.T) {
	c := NewOllamaClassifier("http://127.0.0.1:1", "phi3", 0)
	_, err := c.Classify(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, kind.ErrBackendUnavailable)
}
