// Package resolve looks up named settings through a cascade of sources:
// object tags, the SSM parameter store, process environment, then a caller
// default. Stages use it for per-object knobs (force-OCR flags, engine
// overrides) without caring where operators set them.
package resolve

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/hashicorp/go-hclog"
	"github.com/iancoleman/strcase"

	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/objectstore"
)

// ParameterStore is the subset of the SSM client the resolver calls. The AWS
// client satisfies it; tests substitute a fake.
type ParameterStore interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Config assembles a Resolver.
type Config struct {
	Log hclog.Logger

	// Parameters is the SSM layer; nil skips it entirely.
	Parameters ParameterStore
	// ParameterPrefix is prepended to names for SSM lookups, e.g. "/vellum".
	ParameterPrefix string

	// Objects enables per-object tag lookups; nil skips that layer.
	Objects objectstore.Gateway
}

// Resolver resolves settings with per-process caching. Values found in tags,
// the parameter store, or the environment are cached for the life of the
// process; caller defaults are returned but never cached.
type Resolver struct {
	log    hclog.Logger
	params ParameterStore
	prefix string
	store  objectstore.Gateway

	mu    sync.RWMutex
	cache map[string]string
}

// New builds a Resolver from the config.
func New(cfg Config) *Resolver {
	log := cfg.Log
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Resolver{
		log:    log.Named("resolve"),
		params: cfg.Parameters,
		prefix: cfg.ParameterPrefix,
		store:  cfg.Objects,
		cache:  map[string]string{},
	}
}

// Option narrows a single lookup.
type Option func(*query)

type query struct {
	bucket string
	key    string
	def    *string
}

// WithObject adds an object context so the setting can be overridden by a
// tag on that specific object.
func WithObject(bucket, key string) Option {
	return func(q *query) {
		q.bucket = bucket
		q.key = key
	}
}

// WithDefault supplies the fallback value when no source has the setting.
func WithDefault(def string) Option {
	return func(q *query) {
		q.def = &def
	}
}

// Resolve looks up a setting. The cascade is object tag, parameter store,
// environment (exact name then SCREAMING_SNAKE), then the caller default.
// Returns kind.ErrConfigMissing when nothing matches and no default was
// given. An unavailable parameter store degrades silently to the remaining
// sources.
func (r *Resolver) Resolve(ctx context.Context, name string, opts ...Option) (string, error) {
	var q query
	for _, opt := range opts {
		opt(&q)
	}

	cacheKey := name + "\x00" + q.bucket + "\x00" + q.key
	r.mu.RLock()
	if v, ok := r.cache[cacheKey]; ok {
		r.mu.RUnlock()
		return v, nil
	}
	r.mu.RUnlock()

	if v, ok := r.fromTag(ctx, name, q); ok {
		r.remember(cacheKey, v)
		return v, nil
	}
	if v, ok := r.fromParameterStore(ctx, name); ok {
		r.remember(cacheKey, v)
		return v, nil
	}
	if v, ok := r.fromEnv(name); ok {
		r.remember(cacheKey, v)
		return v, nil
	}
	if q.def != nil {
		return *q.def, nil
	}
	return "", fmt.Errorf("setting %q: %w", name, kind.ErrConfigMissing)
}

// ResolveBool resolves and parses a boolean setting.
func (r *Resolver) ResolveBool(ctx context.Context, name string, opts ...Option) (bool, error) {
	v, err := r.Resolve(ctx, name, opts...)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("setting %q: invalid boolean %q", name, v)
	}
	return b, nil
}

// ResolveInt resolves and parses an integer setting.
func (r *Resolver) ResolveInt(ctx context.Context, name string, opts ...Option) (int, error) {
	v, err := r.Resolve(ctx, name, opts...)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("setting %q: invalid integer %q", name, v)
	}
	return n, nil
}

func (r *Resolver) remember(cacheKey, value string) {
	r.mu.Lock()
	r.cache[cacheKey] = value
	r.mu.Unlock()
}

func (r *Resolver) fromTag(ctx context.Context, name string, q query) (string, bool) {
	if r.store == nil || q.bucket == "" || q.key == "" {
		return "", false
	}
	tags, err := r.store.GetTags(ctx, q.bucket, q.key)
	if err != nil {
		r.log.Debug("tag lookup failed, falling through",
			"name", name, "bucket", q.bucket, "key", q.key, "error", err)
		return "", false
	}
	v, ok := tags[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (r *Resolver) fromParameterStore(ctx context.Context, name string) (string, bool) {
	if r.params == nil {
		return "", false
	}
	paramName := r.prefix + "/" + name
	out, err := r.params.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		// Missing parameter and unreachable store look the same here: fall
		// through to the environment.
		r.log.Debug("parameter store lookup failed, falling through",
			"parameter", paramName, "error", err)
		return "", false
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", false
	}
	return *out.Parameter.Value, true
}

func (r *Resolver) fromEnv(name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	if v, ok := os.LookupEnv(strcase.ToScreamingSnake(name)); ok {
		return v, true
	}
	return "", false
}
