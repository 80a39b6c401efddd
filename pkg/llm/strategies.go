package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/kind"
)

// Strategy picks a backend for a prompt or abstains so the next strategy
// in the cascade gets a chance.
type Strategy interface {
	Name() string
	Select(ctx context.Context, prompt string) (backend string, ok bool, err error)
}

// Rule is one heuristic: inspect the prompt, pick a backend or abstain.
type Rule interface {
	Name() string
	Apply(prompt string) (backend string, ok bool)
}

// Heuristic runs an ordered rule list; the first rule that decides wins.
type Heuristic struct {
	rules []Rule
}

// NewHeuristic builds the default rule set: fenced code and SQL go to the
// strong backend, non-English prompts go to the strong backend, and the
// word-count threshold splits the rest.
func NewHeuristic(cfg *config.RouterConfig) *Heuristic {
	return &Heuristic{rules: []Rule{
		&RegexRule{RuleName: "code", Pattern: codePattern, Backend: cfg.ComplexBackend},
		&LanguageRule{Backend: cfg.ComplexBackend},
		&WordThresholdRule{Threshold: cfg.WordThreshold, Simple: cfg.SimpleBackend, Complex: cfg.ComplexBackend},
	}}
}

// NewHeuristicWithRules builds a heuristic strategy from an explicit rule
// order, for callers that compose their own routing policy.
func NewHeuristicWithRules(rules ...Rule) *Heuristic {
	return &Heuristic{rules: rules}
}

func (h *Heuristic) Name() string { return "heuristic" }

func (h *Heuristic) Select(_ context.Context, prompt string) (string, bool, error) {
	for _, r := range h.rules {
		if backend, ok := r.Apply(prompt); ok {
			return backend, true, nil
		}
	}
	return "", false, nil
}

var codePattern = regexp.MustCompile("(?is)```|\\bselect\\s.+\\sfrom\\s|\\bfunc\\s+\\w+\\s*\\(|\\bdef\\s+\\w+\\s*\\(")

// RegexRule routes prompts matching Pattern to Backend.
type RegexRule struct {
	RuleName string
	Pattern  *regexp.Regexp
	Backend  string
}

func (r *RegexRule) Name() string { return r.RuleName }

func (r *RegexRule) Apply(prompt string) (string, bool) {
	if r.Pattern.MatchString(prompt) {
		return r.Backend, true
	}
	return "", false
}

// LanguageRule routes prompts containing non-ASCII text to Backend. The
// weak local models are English-tuned; anything else goes to the strong
// backend.
type LanguageRule struct {
	Backend string
}

func (r *LanguageRule) Name() string { return "language" }

func (r *LanguageRule) Apply(prompt string) (string, bool) {
	for _, ru := range prompt {
		if ru > unicode.MaxASCII {
			return r.Backend, true
		}
	}
	return "", false
}

// WordThresholdRule sends prompts under Threshold words to Simple and the
// rest to Complex. It never abstains, so it belongs last in a rule list.
type WordThresholdRule struct {
	Threshold int
	Simple    string
	Complex   string
}

func (r *WordThresholdRule) Name() string { return "word-threshold" }

func (r *WordThresholdRule) Apply(prompt string) (string, bool) {
	if len(strings.Fields(prompt)) < r.Threshold {
		return r.Simple, true
	}
	return r.Complex, true
}

// Classifier asks a small model to grade a prompt.
type Classifier interface {
	// Classify returns "simple" or "complex".
	Classify(ctx context.Context, prompt string) (string, error)
}

// Predictive maps a classifier verdict to the weak or strong backend.
// With no classifier configured it abstains.
type Predictive struct {
	classifier Classifier
	simple     string
	complex    string
	log        hclog.Logger
}

func NewPredictive(classifier Classifier, cfg *config.RouterConfig, log hclog.Logger) *Predictive {
	return &Predictive{
		classifier: classifier,
		simple:     cfg.SimpleBackend,
		complex:    cfg.ComplexBackend,
		log:        log.Named("predictive"),
	}
}

func (p *Predictive) Name() string { return "predictive" }

func (p *Predictive) Select(ctx context.Context, prompt string) (string, bool, error) {
	if p.classifier == nil {
		return "", false, nil
	}
	verdict, err := p.classifier.Classify(ctx, prompt)
	if err != nil {
		return "", false, fmt.Errorf("classifying prompt: %w", err)
	}
	switch verdict {
	case "simple":
		return p.simple, true, nil
	case "complex":
		return p.complex, true, nil
	default:
		p.log.Warn("classifier returned unknown verdict", "verdict", verdict)
		return "", false, nil
	}
}

// Generative is the terminal fallback: a static default backend.
type Generative struct {
	backend string
}

func NewGenerative(backend string) *Generative { return &Generative{backend: backend} }

func (g *Generative) Name() string { return "generative" }

func (g *Generative) Select(context.Context, string) (string, bool, error) {
	return g.backend, true, nil
}

const classifierInstruction = "Grade the difficulty of the following request. " +
	"Reply with exactly one word, either simple or complex.\n\nRequest: %s"

// OllamaClassifier grades prompts with a small local model.
type OllamaClassifier struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOllamaClassifier(baseURL, model string, timeout time.Duration) *OllamaClassifier {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OllamaClassifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OllamaClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":  c.model,
		"prompt": fmt.Sprintf(classifierInstruction, prompt),
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0,
			"num_predict": 8,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling classifier request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("classifier request: %v: %w", err, kind.ErrBackendUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("classifier status %d: %s: %w", resp.StatusCode, msg, kind.ErrLLMFailed)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding classifier response: %v: %w", err, kind.ErrLLMFailed)
	}

	verdict := strings.ToLower(strings.TrimSpace(out.Response))
	switch {
	case strings.Contains(verdict, "complex"):
		return "complex", nil
	case strings.Contains(verdict, "simple"):
		return "simple", nil
	default:
		return "", fmt.Errorf("unparseable classifier verdict %q: %w", out.Response, kind.ErrLLMFailed)
	}
}
