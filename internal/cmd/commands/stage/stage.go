// Package stage implements the one-shot stage runners: each pipeline stage
// gets a subcommand that processes a single object and exits, for reruns
// and debugging. The worker command runs the same stages continuously off
// the notification topic.
package stage

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/cmd/base"
	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/objectstore"
	ocrengine "github.com/vellum-io/vellum/pkg/ocr"
	"github.com/vellum-io/vellum/pkg/pdfutil"
	"github.com/vellum-io/vellum/pkg/pipeline"
	"github.com/vellum-io/vellum/pkg/redact"
	"github.com/vellum-io/vellum/pkg/stages/classifier"
	"github.com/vellum-io/vellum/pkg/stages/combine"
	ocrstage "github.com/vellum-io/vellum/pkg/stages/ocr"
	"github.com/vellum-io/vellum/pkg/stages/office"
	"github.com/vellum-io/vellum/pkg/stages/pageclass"
	"github.com/vellum-io/vellum/pkg/stages/splitter"
	"github.com/vellum-io/vellum/pkg/stages/textextract"
)

// Deps are the collaborators shared by every stage builder.
type Deps struct {
	Config  *config.Config
	Gateway objectstore.Gateway
	Audit   audit.Store
	PDF     *pdfutil.Lib
	Log     hclog.Logger
}

// Builder constructs one pipeline stage from the shared dependencies.
type Builder func(d Deps) (pipeline.Stage, error)

// Builders maps subcommand names to their stage constructors. The worker
// command ranges over the same map so the one-shot commands and the
// dispatcher always agree on the stage set.
func Builders() map[string]Builder {
	return map[string]Builder{
		"classify": func(d Deps) (pipeline.Stage, error) {
			return classifier.New(d.Gateway, d.PDF, d.Config, d.Audit, d.Log), nil
		},
		"split": func(d Deps) (pipeline.Stage, error) {
			return splitter.New(d.Gateway, d.PDF, d.PDF, d.Config, d.Audit, d.Log), nil
		},
		"page-classify": func(d Deps) (pipeline.Stage, error) {
			resolver := base.NewResolver(d.Config, d.Gateway, d.Log)
			return pageclass.New(d.Gateway, d.PDF, resolver, d.Config, d.Log), nil
		},
		"extract-text": func(d Deps) (pipeline.Stage, error) {
			return textextract.New(d.Gateway, d.PDF, d.Config, d.Audit, d.Log), nil
		},
		"ocr": func(d Deps) (pipeline.Stage, error) {
			engine, err := ocrengine.New(d.Config.OCR, d.Log)
			if err != nil {
				return nil, err
			}
			return ocrstage.New(d.Gateway, d.PDF, engine, d.Config, d.Audit, d.Log), nil
		},
		"office": func(d Deps) (pipeline.Stage, error) {
			return office.New(d.Gateway, d.Config, d.Audit, d.Log), nil
		},
		"combine": func(d Deps) (pipeline.Stage, error) {
			return combine.New(d.Gateway, d.Config, d.Audit, d.Log), nil
		},
		"redact": func(d Deps) (pipeline.Stage, error) {
			detector, err := base.NewPIIDetector(d.Config, d.Log)
			if err != nil {
				return nil, err
			}
			painter := redact.NewPainter(d.PDF,
				d.Config.Redact.RenderDPI, d.Config.OCR.DPI, d.Log)
			return redact.New(d.Gateway, detector, painter, d.Config, d.Audit, d.Log), nil
		},
	}
}

// Command runs one pipeline stage against a single object and exits.
type Command struct {
	*base.Command

	// Name is the subcommand and stage name, e.g. "classify".
	Name string
	// Summary is the one-line synopsis.
	Summary string
	// Build constructs the stage.
	Build Builder

	flagConfig string
	flagBucket string
	flagKey    string
}

func (c *Command) Synopsis() string {
	return c.Summary
}

func (c *Command) Help() string {
	return fmt.Sprintf(`Usage: vellum %s -key=KEY [options]

  Runs the %s stage once against a single object and exits. The same
  stage runs continuously under 'vellum worker'.
`, c.Name, c.Name) + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet(c.Name, flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[VELLUM_CONFIG] Path to the HCL configuration file",
	)
	f.StringVar(
		&c.flagBucket, "bucket", "",
		"[VELLUM_BUCKET] Bucket holding the object (defaults to the configured bucket)",
	)
	f.StringVar(
		&c.flagKey, "key", "",
		"Object key to process",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 2
	}
	if c.flagKey == "" {
		c.UI.Error("-key is required")
		return 2
	}

	cfg, err := base.LoadConfig(base.EnvDefault(c.flagConfig, "VELLUM_CONFIG"))
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	log := c.Log.Named(c.Name)
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	gw, err := base.OpenObjectStore(cfg, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error opening object store: %v", err))
		return 1
	}
	gdb, err := base.OpenDatabase(cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error opening database: %v", err))
		return 1
	}

	st, err := c.Build(Deps{
		Config:  cfg,
		Gateway: gw,
		Audit:   audit.NewStore(gdb, log),
		PDF:     pdfutil.New(log),
		Log:     log,
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building %s stage: %v", c.Name, err))
		return 1
	}

	bucket := base.EnvDefault(c.flagBucket, "VELLUM_BUCKET")
	if bucket == "" {
		bucket = cfg.ObjectStore.Bucket
	}
	if !st.Match(bucket, c.flagKey) {
		c.UI.Error(fmt.Sprintf("the %s stage does not handle %s/%s", c.Name, bucket, c.flagKey))
		return 2
	}

	start := time.Now()
	if err := st.Process(context.Background(), bucket, c.flagKey); err != nil {
		c.UI.Error(fmt.Sprintf("error processing %s: %v", c.flagKey, err))
		return 1
	}
	c.UI.Info(fmt.Sprintf("%s complete: %s (%s)", c.Name, c.flagKey, time.Since(start).Round(time.Millisecond)))
	return 0
}
