// Package pii detects sensitive entities in document text. Detection is the
// union of two engines: compiled regex packs (a default pack plus optional
// domain packs) and a remote NER service. Duplicate spans across engines are
// tolerated; callers dedupe when they need distinct boxes.
package pii

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/pkg/kind"
)

// Entity is one detected span. Start and End are byte offsets into the
// scanned text with 0 <= Start <= End <= len(text).
type Entity struct {
	Text  string   `json:"text"`
	Type  string   `json:"type"`
	Start int      `json:"start"`
	End   int      `json:"end"`
	Score *float64 `json:"score,omitempty"`
}

// Domain selects which pattern pack and NER model apply.
type Domain string

const (
	DomainDefault Domain = ""
	DomainMedical Domain = "Medical"
	DomainLegal   Domain = "Legal"
)

// packName maps a domain to its embedded pack.
func (d Domain) packName() string {
	switch d {
	case DomainMedical:
		return "medical"
	case DomainLegal:
		return "legal"
	default:
		return ""
	}
}

// Detector runs the regex engine and, when configured, the NER engine.
type Detector struct {
	packs map[string]pack
	ner   NERClient
	log   hclog.Logger
}

// NewDetector compiles the embedded packs. A nil NER client disables the ML
// engine; regex detection still runs.
func NewDetector(ner NERClient, log hclog.Logger) (*Detector, error) {
	packs, err := loadPacks()
	if err != nil {
		return nil, err
	}
	if _, ok := packs["default"]; !ok {
		return nil, fmt.Errorf("embedded packs carry no default pack")
	}
	return &Detector{
		packs: packs,
		ner:   ner,
		log:   log.Named("pii"),
	}, nil
}

// Detect returns every entity found by the regex packs and the NER engine.
// The result is ordered by start offset; overlapping or duplicate spans are
// kept. An unreachable NER service fails detection so callers never mistake
// a partial scan for a clean document.
func (d *Detector) Detect(ctx context.Context, text string, domain Domain) ([]Entity, error) {
	entities := d.detectRegex(text, domain)

	if d.ner != nil {
		nerEntities, err := d.ner.Detect(ctx, text, domain)
		if err != nil {
			return nil, fmt.Errorf("ner detection: %w", err)
		}
		for _, e := range nerEntities {
			if err := validate(e, len(text)); err != nil {
				d.log.Warn("dropping ner entity with invalid span",
					"type", e.Type, "start", e.Start, "end", e.End, "error", err)
				continue
			}
			entities = append(entities, e)
		}
	}

	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		return entities[i].End < entities[j].End
	})
	return entities, nil
}

// detectRegex scans with the default pack plus the domain pack, if any.
func (d *Detector) detectRegex(text string, domain Domain) []Entity {
	var entities []Entity

	scan := func(p pack) {
		for _, pat := range p.Patterns {
			for _, loc := range pat.re.FindAllStringIndex(text, -1) {
				entities = append(entities, Entity{
					Text:  text[loc[0]:loc[1]],
					Type:  pat.Type,
					Start: loc[0],
					End:   loc[1],
				})
			}
		}
	}

	scan(d.packs["default"])
	if name := domain.packName(); name != "" {
		if p, ok := d.packs[name]; ok {
			scan(p)
		} else {
			d.log.Warn("no pattern pack for domain", "domain", domain)
		}
	}
	return entities
}

// Dedupe removes entities sharing the same (start, end, type). The regex and
// NER engines often agree; redaction needs each span once.
func Dedupe(entities []Entity) []Entity {
	seen := make(map[string]struct{}, len(entities))
	out := entities[:0:0]
	for _, e := range entities {
		k := fmt.Sprintf("%d\x00%d\x00%s", e.Start, e.End, e.Type)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

// ParseDomain maps the wire domain field to a Domain. Unknown values fall
// back to the default pack rather than failing the event.
func ParseDomain(s string) Domain {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "medical":
		return DomainMedical
	case "legal":
		return DomainLegal
	default:
		return DomainDefault
	}
}

func validate(e Entity, max int) error {
	if e.Start < 0 || e.End < e.Start || e.End > max {
		return fmt.Errorf("span [%d,%d) outside text of length %d: %w",
			e.Start, e.End, max, kind.ErrInputInvalid)
	}
	return nil
}
