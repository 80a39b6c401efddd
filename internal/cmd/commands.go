package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/vellum-io/vellum/internal/cmd/base"
	"github.com/vellum-io/vellum/internal/cmd/commands/migrate"
	"github.com/vellum-io/vellum/internal/cmd/commands/reaper"
	"github.com/vellum-io/vellum/internal/cmd/commands/serve"
	"github.com/vellum-io/vellum/internal/cmd/commands/stage"
	"github.com/vellum-io/vellum/internal/cmd/commands/tools"
	"github.com/vellum-io/vellum/internal/cmd/commands/version"
	"github.com/vellum-io/vellum/internal/cmd/commands/worker"
)

// Commands is the mapping of all available commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	baseCommand := &base.Command{
		Log: log,
		UI:  ui,
	}

	Commands = map[string]cli.CommandFactory{
		"serve": func() (cli.Command, error) {
			return &serve.Command{Command: baseCommand}, nil
		},
		"worker": func() (cli.Command, error) {
			return &worker.Command{Command: baseCommand}, nil
		},
		"reaper": func() (cli.Command, error) {
			return &reaper.Command{Command: baseCommand}, nil
		},
		"migrate": func() (cli.Command, error) {
			return &migrate.Command{Command: baseCommand}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: baseCommand}, nil
		},
		"route": func() (cli.Command, error) {
			return &tools.RouteCommand{Command: baseCommand}, nil
		},
		"invoke": func() (cli.Command, error) {
			return &tools.InvokeCommand{Command: baseCommand}, nil
		},
		"detect-pii": func() (cli.Command, error) {
			return &tools.PIICommand{Command: baseCommand}, nil
		},
		"chunk": func() (cli.Command, error) {
			return &tools.ChunkCommand{Command: baseCommand}, nil
		},
		"embed": func() (cli.Command, error) {
			return &tools.EmbedCommand{Command: baseCommand}, nil
		},
		"vector": func() (cli.Command, error) {
			return &tools.VectorCommand{Command: baseCommand}, nil
		},
		"rerank": func() (cli.Command, error) {
			return &tools.RerankCommand{Command: baseCommand}, nil
		},
	}

	// Each pipeline stage gets a one-shot subcommand sharing the worker's
	// builders, so single objects can be reprocessed from the shell.
	builders := stage.Builders()
	for name, summary := range map[string]string{
		"classify":      "Classify one raw object into the office or pdf-raw prefix",
		"split":         "Split one multi-page PDF into page objects and a manifest",
		"page-classify": "Sort one PDF page into text-pages or scan-pages",
		"extract-text":  "Extract embedded text from one PDF page",
		"ocr":           "Run OCR on one scanned PDF page",
		"office":        "Convert one office document to markdown pages",
		"combine":       "Combine one document's pages into its text-docs object",
		"redact":        "Detect and paint over PII in one combined document",
	} {
		Commands[name] = func() (cli.Command, error) {
			return &stage.Command{
				Command: baseCommand,
				Name:    name,
				Summary: summary,
				Build:   builders[name],
			}, nil
		}
	}
}
