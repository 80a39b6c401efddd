// Package worker implements the pipeline worker command.
package worker

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/cmd/base"
	"github.com/vellum-io/vellum/internal/cmd/commands/stage"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/llm"
	"github.com/vellum-io/vellum/pkg/pdfutil"
	"github.com/vellum-io/vellum/pkg/pipeline"
	"github.com/vellum-io/vellum/pkg/queue"
)

// stageOrder lists the stages in pipeline order so startup logs and
// dispatch checks read the way documents flow.
var stageOrder = []string{
	"classify",
	"split",
	"page-classify",
	"extract-text",
	"ocr",
	"office",
	"combine",
	"redact",
}

type Command struct {
	*base.Command

	flagConfig      string
	flagConcurrency int
}

func (c *Command) Synopsis() string {
	return "Run the pipeline worker"
}

func (c *Command) Help() string {
	return `Usage: vellum worker [options]

  Consumes object-store notifications and LLM invocations from kafka and
  processes them: every pipeline stage plus the invoker run in this
  process. Requires a kafka block in the configuration.
` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("worker", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[VELLUM_CONFIG] Path to the HCL configuration file",
	)
	f.IntVar(
		&c.flagConcurrency, "concurrency", 0,
		"[VELLUM_CONCURRENCY] Records processed at once per batch (default: 4)",
	)

	return f
}

func (c *Command) Run(args []string) int {
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
	if cfg.Kafka == nil {
		c.UI.Error("the worker requires a kafka block in the configuration")
		return 1
	}

	concurrency := c.flagConcurrency
	if concurrency == 0 {
		if env := os.Getenv("VELLUM_CONCURRENCY"); env != "" {
			if n, err := strconv.Atoi(env); err == nil {
				concurrency = n
			}
		}
	}

	log := c.Log.Named("worker")
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// Backends without native bucket events need stage writes republished,
	// or documents would stall after the first stage.
	if *cfg.ObjectStore.NotifyWrites {
		pub, err := queue.NewKafkaPublisher(cfg.Kafka, log)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error connecting to kafka: %v", err))
			return 1
		}
		defer pub.Close()
		gw = pipeline.NewNotifyingGateway(gw, pub, cfg.Kafka.NotificationTopic, log)
	}

	deps := stage.Deps{
		Config:  cfg,
		Gateway: gw,
		Audit:   audit.NewStore(gdb, log),
		PDF:     pdfutil.New(log),
		Log:     log,
	}
	builders := stage.Builders()
	stages := make([]pipeline.Stage, 0, len(stageOrder))
	for _, name := range stageOrder {
		st, err := builders[name](deps)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error building %s stage: %v", name, err))
			return 1
		}
		stages = append(stages, st)
	}
	dispatcher := pipeline.NewDispatcher(log, concurrency, stages...)

	invoker, err := llm.NewInvoker(ctx, cfg.Invoker, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building invoker: %v", err))
		return 1
	}

	// Notifications and invocations get their own consumer groups so a slow
	// LLM call never stalls stage processing.
	notifications, err := queue.NewKafkaConsumer(
		cfg.Kafka, "", []string{cfg.Kafka.NotificationTopic}, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error connecting to kafka: %v", err))
		return 1
	}
	invocations, err := queue.NewKafkaConsumer(
		cfg.Kafka, cfg.Kafka.ConsumerGroup+"-invoker",
		[]string{cfg.Kafka.InvocationTopic}, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error connecting to kafka: %v", err))
		return 1
	}

	consumerErrors := make(chan error, 2)
	go func() {
		consumerErrors <- notifications.Start(ctx, dispatcher.Handler())
	}()
	go func() {
		consumerErrors <- invocations.Start(ctx, invoker.Handler())
	}()
	log.Info("worker started",
		"stages", len(stages),
		"notification_topic", cfg.Kafka.NotificationTopic,
		"invocation_topic", cfg.Kafka.InvocationTopic,
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-consumerErrors:
		if err != nil && err != context.Canceled {
			c.UI.Error(fmt.Sprintf("consumer error: %v", err))
			notifications.Stop()
			invocations.Stop()
			return 1
		}

	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig.String())
	}

	notifications.Stop()
	invocations.Stop()
	cancel()
	return 0
}
