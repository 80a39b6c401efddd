package tools

import (
	"context"
	"flag"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/cmd/base"
	"github.com/vellum-io/vellum/pkg/pii"
)

// PIICommand detects sensitive entities in one piece of text.
type PIICommand struct {
	*base.Command

	flagConfig string
	flagText   string
	flagFile   string
	flagDomain string
}

func (c *PIICommand) Synopsis() string {
	return "Detect PII entities in text"
}

func (c *PIICommand) Help() string {
	return `Usage: vellum detect-pii [options]

  Runs entity detection over the given text and prints the entities with
  their offsets. Text comes from -text, -file, or stdin.
` + c.Flags().Help()
}

func (c *PIICommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("detect-pii", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[VELLUM_CONFIG] Path to the HCL configuration file",
	)
	f.StringVar(
		&c.flagText, "text", "",
		"Text to scan",
	)
	f.StringVar(
		&c.flagFile, "file", "",
		"File to scan instead of -text",
	)
	f.StringVar(
		&c.flagDomain, "domain", "",
		"Domain pack to add (Medical or Legal)",
	)

	return f
}

func (c *PIICommand) Run(args []string) int {
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

	log := c.Log.Named("detect-pii")
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	text, err := readText(c.flagText, c.flagFile)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	detector, err := base.NewPIIDetector(cfg, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building detector: %v", err))
		return 1
	}

	entities, err := detector.Detect(context.Background(), text, pii.ParseDomain(c.flagDomain))
	if err != nil {
		c.UI.Error(fmt.Sprintf("error detecting entities: %v", err))
		return 1
	}

	out, err := printJSON(entities)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error rendering entities: %v", err))
		return 1
	}
	c.UI.Output(out)
	return 0
}
