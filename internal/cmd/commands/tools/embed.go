package tools

import (
	"context"
	"flag"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/cmd/base"
	"github.com/vellum-io/vellum/pkg/embed"
)

// EmbedCommand embeds one piece of text and prints the vector.
type EmbedCommand struct {
	*base.Command

	flagConfig string
	flagText   string
	flagFile   string
	flagModel  string
}

func (c *EmbedCommand) Synopsis() string {
	return "Embed text into a vector"
}

func (c *EmbedCommand) Help() string {
	return `Usage: vellum embed [options]

  Embeds the given text with the configured (or named) model and prints
  the vector. Text comes from -text, -file, or stdin.
` + c.Flags().Help()
}

func (c *EmbedCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("embed", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[VELLUM_CONFIG] Path to the HCL configuration file",
	)
	f.StringVar(
		&c.flagText, "text", "",
		"Text to embed",
	)
	f.StringVar(
		&c.flagFile, "file", "",
		"File to embed instead of -text",
	)
	f.StringVar(
		&c.flagModel, "model", "",
		"Model spec, e.g. sbert:all-MiniLM-L6-v2 or openai:text-embedding-3-small",
	)

	return f
}

func (c *EmbedCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 2
	}

	cfg, err := base.LoadConfig(base.EnvDefault(c.flagConfig, "VELLUM_CONFIG"))
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	log := c.Log.Named("embed")
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	text, err := readText(c.flagText, c.flagFile)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	ctx := context.Background()
	embedder, err := embed.New(ctx, cfg.Embed, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building embedder: %v", err))
		return 1
	}

	vector, err := embedder.EmbedQuery(ctx, c.flagModel, text)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error embedding text: %v", err))
		return 1
	}

	out, err := printJSON(vector)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error rendering vector: %v", err))
		return 1
	}
	c.UI.Output(out)
	return 0
}
