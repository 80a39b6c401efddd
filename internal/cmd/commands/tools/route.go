package tools

import (
	"context"
	"flag"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/cmd/base"
	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/pkg/llm"
	"github.com/vellum-io/vellum/pkg/queue"
)

// RouteCommand routes one prompt through the cascade and enqueues the
// invocation.
type RouteCommand struct {
	*base.Command

	flagConfig       string
	flagPrompt       string
	flagBackend      string
	flagModel        string
	flagSystemPrompt string
	flagStrategy     string
}

func (c *RouteCommand) Synopsis() string {
	return "Route one prompt to an LLM backend"
}

func (c *RouteCommand) Help() string {
	return `Usage: vellum route -prompt=TEXT [options]

  Runs the routing cascade for one prompt and enqueues the invocation on
  the invocation topic. Without a kafka block the selected backend is
  reported but nothing is enqueued anywhere durable.
` + c.Flags().Help()
}

func (c *RouteCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("route", flag.ExitOnError))

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
		"Backend override, skipping the cascade",
	)
	f.StringVar(
		&c.flagModel, "model", "",
		"Model identifier passed through to the invoker",
	)
	f.StringVar(
		&c.flagSystemPrompt, "system-prompt", "",
		"System prompt passed through to the invoker",
	)
	f.StringVar(
		&c.flagStrategy, "strategy", "",
		"Force one strategy (heuristic, predictive, generative)",
	)

	return f
}

func (c *RouteCommand) Run(args []string) int {
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

	log := c.Log.Named("route")
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	prompt, err := readText(c.flagPrompt, "")
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	var pub queue.Publisher
	topic := config.DefaultInvocationTopic
	if cfg.Kafka != nil {
		topic = cfg.Kafka.InvocationTopic
		kp, err := queue.NewKafkaPublisher(cfg.Kafka, log)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error connecting to kafka: %v", err))
			return 1
		}
		defer kp.Close()
		pub = kp
	} else {
		broker := queue.NewMemoryBroker()
		defer broker.Close()
		pub = broker
	}

	var classifier llm.Classifier
	if cfg.Router.ClassifierModel != "" {
		classifier = llm.NewOllamaClassifier(cfg.Embed.OllamaURL, cfg.Router.ClassifierModel, 0)
	}
	router := llm.NewRouter(cfg.Router, pub, topic, classifier, log)

	resp, err := router.Route(context.Background(), &llm.RouteRequest{
		Prompt:       prompt,
		Backend:      c.flagBackend,
		Model:        c.flagModel,
		SystemPrompt: c.flagSystemPrompt,
		Strategy:     c.flagStrategy,
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error routing prompt: %v", err))
		return 1
	}

	out, err := printJSON(resp)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error rendering response: %v", err))
		return 1
	}
	c.UI.Output(out)
	return 0
}
