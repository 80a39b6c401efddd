package tools

import (
	"context"
	"flag"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/cmd/base"
	"github.com/vellum-io/vellum/pkg/llm"
)

// InvokeCommand calls one LLM backend synchronously, bypassing the queue.
type InvokeCommand struct {
	*base.Command

	flagConfig       string
	flagPrompt       string
	flagBackend      string
	flagModel        string
	flagSystemPrompt string
	flagMaxTokens    int
}

func (c *InvokeCommand) Synopsis() string {
	return "Invoke an LLM backend directly"
}

func (c *InvokeCommand) Help() string {
	return `Usage: vellum invoke -backend=NAME -prompt=TEXT [options]

  Invokes the named backend once, synchronously, with the invoker's
  endpoint selection and health accounting, and prints the completion.
` + c.Flags().Help()
}

func (c *InvokeCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("invoke", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[VELLUM_CONFIG] Path to the HCL configuration file",
	)
	f.StringVar(
		&c.flagPrompt, "prompt", "",
		"Prompt text (stdin when omitted)",
	)
	f.StringVar(
		&c.flagBackend, "backend", "",
		"Configured backend to invoke",
	)
	f.StringVar(
		&c.flagModel, "model", "",
		"Model identifier, overriding the backend default",
	)
	f.StringVar(
		&c.flagSystemPrompt, "system-prompt", "",
		"System prompt",
	)
	f.IntVar(
		&c.flagMaxTokens, "max-tokens", 0,
		"Completion token cap, overriding the backend default",
	)

	return f
}

func (c *InvokeCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 2
	}
	if c.flagBackend == "" {
		c.UI.Error("-backend is required")
		return 2
	}

	cfg, err := base.LoadConfig(base.EnvDefault(c.flagConfig, "VELLUM_CONFIG"))
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	log := c.Log.Named("invoke")
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	prompt, err := readText(c.flagPrompt, "")
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	ctx := context.Background()
	invoker, err := llm.NewInvoker(ctx, cfg.Invoker, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building invoker: %v", err))
		return 1
	}

	result, err := invoker.Invoke(ctx, &llm.InvokeRequest{
		Backend:      c.flagBackend,
		Prompt:       prompt,
		Model:        c.flagModel,
		SystemPrompt: c.flagSystemPrompt,
		MaxTokens:    c.flagMaxTokens,
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error invoking %s: %v", c.flagBackend, err))
		return 1
	}

	out, err := printJSON(result)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error rendering result: %v", err))
		return 1
	}
	c.UI.Output(out)
	return 0
}
