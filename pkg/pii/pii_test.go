package pii

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetector(t *testing.T, ner NERClient) *Detector {
	t.Helper()
	d, err := NewDetector(ner, hclog.NewNullLogger())
	require.NoError(t, err)
	return d
}

func types(entities []Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Type)
	}
	return out
}

func TestDetectRegexDefaults(t *testing.T) {
	d := newDetector(t, nil)

	text := "Call Alice at 555-12-3456 or alice@example.com"
	entities, err := d.Detect(context.Background(), text, DomainDefault)
	require.NoError(t, err)

	require.Len(t, entities, 2)
	assert.Equal(t, "SSN", entities[0].Type)
	assert.Equal(t, "555-12-3456", entities[0].Text)
	assert.Equal(t, text[entities[0].Start:entities[0].End], entities[0].Text)
	assert.Equal(t, "EMAIL", entities[1].Type)
	assert.Equal(t, "alice@example.com", entities[1].Text)
}

func TestDetectDomainPackMergesOverDefault(t *testing.T) {
	d := newDetector(t, nil)

	text := "Case 1:21-cv-04567, contact bob@firm.test"

	entities, err := d.Detect(context.Background(), text, DomainLegal)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"EMAIL", "CASE_NUMBER"}, types(entities))

	// The same text under the default domain loses the legal pattern.
	entities, err = d.Detect(context.Background(), text, DomainDefault)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"EMAIL"}, types(entities))
}

func TestDetectMedicalPack(t *testing.T) {
	d := newDetector(t, nil)

	entities, err := d.Detect(context.Background(), "MRN: 00123456 admitted", DomainMedical)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "MRN", entities[0].Type)
}

type stubNER struct {
	entities []Entity
	gotText  string
	gotDom   Domain
}

func (s *stubNER) Detect(_ context.Context, text string, domain Domain) ([]Entity, error) {
	s.gotText = text
	s.gotDom = domain
	return s.entities, nil
}

func TestDetectUnionsRegexAndNER(t *testing.T) {
	ner := &stubNER{entities: []Entity{
		{Text: "Alice", Type: "PERSON", Start: 5, End: 10},
	}}
	d := newDetector(t, ner)

	text := "Call Alice at 555-12-3456"
	entities, err := d.Detect(context.Background(), text, DomainDefault)
	require.NoError(t, err)

	assert.Equal(t, []string{"PERSON", "SSN"}, types(entities))
	assert.Equal(t, text, ner.gotText)
}

func TestDetectDropsInvalidNERSpans(t *testing.T) {
	ner := &stubNER{entities: []Entity{
		{Text: "ghost", Type: "PERSON", Start: 90, End: 120},
		{Text: "backwards", Type: "ORG", Start: 4, End: 2},
	}}
	d := newDetector(t, ner)

	entities, err := d.Detect(context.Background(), "short text", DomainDefault)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestDedupe(t *testing.T) {
	score := 0.9
	entities := []Entity{
		{Text: "Alice", Type: "PERSON", Start: 5, End: 10},
		{Text: "Alice", Type: "PERSON", Start: 5, End: 10, Score: &score},
		{Text: "Alice", Type: "ORG", Start: 5, End: 10},
	}

	deduped := Dedupe(entities)
	require.Len(t, deduped, 2)
	assert.Equal(t, "PERSON", deduped[0].Type)
	assert.Equal(t, "ORG", deduped[1].Type)
}

func TestParseDomain(t *testing.T) {
	assert.Equal(t, DomainMedical, ParseDomain("Medical"))
	assert.Equal(t, DomainMedical, ParseDomain("medical"))
	assert.Equal(t, DomainLegal, ParseDomain(" Legal "))
	assert.Equal(t, DomainDefault, ParseDomain(""))
	assert.Equal(t, DomainDefault, ParseDomain("finance"))
}

func TestHTTPNERClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ner", r.URL.Path)

		var req struct {
			Text   string `json:"text"`
			Domain string `json:"domain"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Medical", req.Domain)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"entities": []Entity{{Text: "Dr. Chen", Type: "PERSON", Start: 0, End: 8}},
		})
	}))
	defer srv.Close()

	client := NewHTTPNERClient(srv.URL, 5*time.Second, hclog.NewNullLogger())
	entities, err := client.Detect(context.Background(), "Dr. Chen saw the patient", DomainMedical)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "PERSON", entities[0].Type)
}

func TestHTTPNERClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPNERClient(srv.URL, 5*time.Second, hclog.NewNullLogger())
	_, err := client.Detect(context.Background(), "text", DomainDefault)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
