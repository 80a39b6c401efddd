package base

import (
	"context"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/internal/db"
	"github.com/vellum-io/vellum/pkg/chunk"
	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/objectstore"
	"github.com/vellum-io/vellum/pkg/objectstore/aferofs"
	s3store "github.com/vellum-io/vellum/pkg/objectstore/s3"
	"github.com/vellum-io/vellum/pkg/pii"
	"github.com/vellum-io/vellum/pkg/resolve"
	"github.com/vellum-io/vellum/pkg/vector"
	"github.com/vellum-io/vellum/pkg/vector/bleve"
	"github.com/vellum-io/vellum/pkg/vector/qdrant"
)

// LoadConfig reads the HCL file at path. An empty path returns the built-in
// defaults so commands can run without a configuration file.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.NewConfig(path)
}

// OpenObjectStore builds the configured gateway: "s3" talks to AWS or any
// S3-compatible endpoint, "file" keeps objects under a local root.
func OpenObjectStore(cfg *config.Config, log hclog.Logger) (objectstore.Gateway, error) {
	switch cfg.ObjectStore.Backend {
	case "s3":
		return s3store.NewAdapter(&s3store.Config{
			Region:          cfg.ObjectStore.Region,
			Endpoint:        cfg.ObjectStore.Endpoint,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			MaxRetries:      cfg.ObjectStore.MaxRetries,
		}, log)
	case "file":
		root := cfg.ObjectStore.Root
		if root == "" {
			root = "./data/objects"
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("creating object root %s: %w", root, err)
		}
		return aferofs.New(afero.NewOsFs(), root), nil
	default:
		return nil, fmt.Errorf("unknown object store backend %q: %w",
			cfg.ObjectStore.Backend, kind.ErrConfigMissing)
	}
}

// OpenDatabase opens the relational store. sqlite databases are
// auto-migrated on open so zero-config runs work before the migrate
// command ever ran; postgres deployments run the versioned migrations.
func OpenDatabase(cfg *config.Config) (*gorm.DB, error) {
	gdb, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "sqlite" {
		if err := db.AutoMigrate(gdb); err != nil {
			return nil, err
		}
	}
	return gdb, nil
}

// OpenVectorBackends builds the vector stores keyed by storage mode.
func OpenVectorBackends(cfg *config.Config, log hclog.Logger) (map[string]vector.Store, error) {
	qd, err := qdrant.New(cfg.Vector, log)
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w", err)
	}
	bl, err := bleve.New(cfg.Vector, log)
	if err != nil {
		return nil, fmt.Errorf("bleve: %w", err)
	}
	return map[string]vector.Store{"qdrant": qd, "bleve": bl}, nil
}

// NewPIIDetector compiles the pattern packs and attaches the remote NER
// engine when one is configured.
func NewPIIDetector(cfg *config.Config, log hclog.Logger) (*pii.Detector, error) {
	var ner pii.NERClient
	if cfg.PII.NEREndpoint != "" {
		ner = pii.NewHTTPNERClient(cfg.PII.NEREndpoint,
			time.Duration(cfg.PII.TimeoutSeconds)*time.Second, log)
	}
	return pii.NewDetector(ner, log)
}

// NewResolver builds the setting resolver over object tags, the parameter
// store, and the environment. The parameter-store layer is attached unless
// disabled; lookups degrade silently when it is unreachable.
func NewResolver(cfg *config.Config, gw objectstore.Gateway, log hclog.Logger) *resolve.Resolver {
	rc := resolve.Config{
		Log:             log,
		ParameterPrefix: cfg.Resolver.ParameterPrefix,
		Objects:         gw,
	}
	if !cfg.Resolver.DisableParameterStore {
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Resolver.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Resolver.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
		if err != nil {
			log.Warn("parameter store unavailable", "error", err)
		} else {
			rc.Parameters = ssm.NewFromConfig(awsCfg)
		}
	}
	return resolve.New(rc)
}

// NewChunker builds the chunker. When the tokenizer encoding cannot be
// loaded the simple strategy still works; the universal strategy reports
// the missing tokenizer on use.
func NewChunker(cfg *config.Config, log hclog.Logger) *chunk.Chunker {
	tok, err := chunk.NewTiktoken()
	if err != nil {
		log.Warn("tokenizer unavailable, universal chunk strategy disabled", "error", err)
		tok = nil
	}
	return chunk.New(cfg.Chunk, tok, log)
}
