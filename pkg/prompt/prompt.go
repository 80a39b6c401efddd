// Package prompt stores versioned prompt templates and renders them with
// {variable} substitution before handing the result to the LLM router.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/llm"
	"github.com/vellum-io/vellum/pkg/models"
)

// ErrMissingVariable marks a placeholder the caller supplied no value for.
// It is an input error and maps to 400.
var ErrMissingVariable = fmt.Errorf("missing template variable: %w", kind.ErrInputInvalid)

// Store persists prompt templates.
type Store struct {
	db  *gorm.DB
	log hclog.Logger
}

func NewStore(db *gorm.DB, log hclog.Logger) *Store {
	return &Store{db: db, log: log.Named("prompts")}
}

// Create stores a new version of a prompt. The version number advances
// automatically; templates are immutable once written.
func (s *Store) Create(ctx context.Context, promptID, template, description string) (*models.PromptTemplate, error) {
	if promptID == "" {
		return nil, fmt.Errorf("prompt_id is required: %w", kind.ErrInputInvalid)
	}
	if template == "" {
		return nil, fmt.Errorf("template is required: %w", kind.ErrInputInvalid)
	}
	if _, err := parseTemplate(template, nil, false); err != nil {
		return nil, fmt.Errorf("template %s: %w", promptID, err)
	}

	db := s.db.WithContext(ctx)
	version, err := models.NextPromptVersion(db, promptID)
	if err != nil {
		return nil, fmt.Errorf("allocating version for %s: %w", promptID, err)
	}
	tpl := &models.PromptTemplate{
		PromptID:    promptID,
		Version:     version,
		Template:    template,
		Description: description,
	}
	if err := db.Create(tpl).Error; err != nil {
		return nil, fmt.Errorf("storing template %s v%d: %w", promptID, version, err)
	}
	s.log.Info("stored prompt template", "prompt_id", promptID, "version", version)
	return tpl, nil
}

// Get retrieves a template. Version 0 selects the latest.
func (s *Store) Get(ctx context.Context, promptID string, version int) (*models.PromptTemplate, error) {
	tpl, err := models.GetPromptTemplate(s.db.WithContext(ctx), promptID, version)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("prompt %s v%d: %w", promptID, version, kind.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading prompt %s v%d: %w", promptID, version, err)
	}
	return tpl, nil
}

// List returns every version of a prompt, newest first.
func (s *Store) List(ctx context.Context, promptID string) ([]models.PromptTemplate, error) {
	tpls, err := models.ListPromptVersions(s.db.WithContext(ctx), promptID)
	if err != nil {
		return nil, fmt.Errorf("listing prompt %s: %w", promptID, err)
	}
	return tpls, nil
}

// Render loads a template and substitutes the variables.
func (s *Store) Render(ctx context.Context, promptID string, version int, vars map[string]interface{}) (string, error) {
	tpl, err := s.Get(ctx, promptID, version)
	if err != nil {
		return "", err
	}
	out, err := RenderTemplate(tpl.Template, vars)
	if err != nil {
		return "", fmt.Errorf("rendering %s v%d: %w", promptID, tpl.Version, err)
	}
	return out, nil
}

// RenderTemplate substitutes {name} placeholders from vars. Doubled braces
// escape to literal braces; a placeholder without a matching variable fails
// with ErrMissingVariable.
func RenderTemplate(template string, vars map[string]interface{}) (string, error) {
	return parseTemplate(template, vars, true)
}

// parseTemplate walks the template once. With substitute false it only
// checks placeholder syntax, so Create can reject malformed templates
// before they are stored.
func parseTemplate(template string, vars map[string]interface{}, substitute bool) (string, error) {
	var b strings.Builder
	b.Grow(len(template))
	for i := 0; i < len(template); {
		switch template[i] {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder at offset %d: %w", i, kind.ErrInputInvalid)
			}
			name := template[i+1 : i+1+end]
			if name == "" {
				return "", fmt.Errorf("empty placeholder at offset %d: %w", i, kind.ErrInputInvalid)
			}
			if substitute {
				val, ok := vars[name]
				if !ok {
					return "", fmt.Errorf("%q: %w", name, ErrMissingVariable)
				}
				fmt.Fprintf(&b, "%v", val)
			}
			i += end + 2
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", fmt.Errorf("unmatched '}' at offset %d: %w", i, kind.ErrInputInvalid)
		default:
			b.WriteByte(template[i])
			i++
		}
	}
	return b.String(), nil
}

// Router forwards a rendered prompt. *llm.Router satisfies it.
type Router interface {
	Route(ctx context.Context, req *llm.RouteRequest) (*llm.RouteResponse, error)
}

// RenderRequest asks for a stored prompt to be rendered and routed.
type RenderRequest struct {
	PromptID     string                 `json:"prompt_id"`
	Version      int                    `json:"version,omitempty"`
	Variables    map[string]interface{} `json:"variables,omitempty"`
	Backend      string                 `json:"backend,omitempty"`
	SystemPrompt string                 `json:"system_prompt,omitempty"`
	Model        string                 `json:"model,omitempty"`
}

// Engine renders stored templates and forwards them to the router.
type Engine struct {
	store  *Store
	router Router
	log    hclog.Logger
}

func NewEngine(store *Store, router Router, log hclog.Logger) *Engine {
	return &Engine{store: store, router: router, log: log.Named("prompt-engine")}
}

// RenderAndRoute renders the template and enqueues it through the router.
func (e *Engine) RenderAndRoute(ctx context.Context, req *RenderRequest) (*llm.RouteResponse, error) {
	rendered, err := e.store.Render(ctx, req.PromptID, req.Version, req.Variables)
	if err != nil {
		return nil, err
	}

	resp, err := e.router.Route(ctx, &llm.RouteRequest{
		Prompt:       rendered,
		Backend:      req.Backend,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("routing rendered prompt %s: %w", req.PromptID, err)
	}
	e.log.Info("rendered and routed prompt",
		"prompt_id", req.PromptID, "version", req.Version, "backend", resp.Backend)
	return resp, nil
}
