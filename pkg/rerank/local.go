package rerank

import (
	"context"
	"math"
	"strings"
	"unicode"
)

// LocalProvider scores by lexical cosine over term-frequency vectors. It is
// deterministic and dependency-free, which makes it the default for tests
// and for deployments that have no cross-encoder service to call.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider { return &LocalProvider{} }

func (l *LocalProvider) Name() string { return "local" }

func (l *LocalProvider) Score(_ context.Context, query string, texts []string) ([]float64, error) {
	qv := termVector(query)
	scores := make([]float64, len(texts))
	for i, text := range texts {
		scores[i] = cosineTerms(qv, termVector(text))
	}
	return scores, nil
}

func termVector(s string) map[string]float64 {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	v := make(map[string]float64, len(fields))
	for _, f := range fields {
		v[f]++
	}
	return v
}

func cosineTerms(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for term, av := range a {
		normA += av * av
		if bv, ok := b[term]; ok {
			dot += av * bv
		}
	}
	for _, bv := range b {
		normB += bv * bv
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
