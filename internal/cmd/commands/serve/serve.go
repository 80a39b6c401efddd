// Package serve implements the API server command.
package serve

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	httptrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/net/http"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/vellum-io/vellum/internal/api"
	"github.com/vellum-io/vellum/internal/cmd/base"
	"github.com/vellum-io/vellum/internal/config"
	"github.com/vellum-io/vellum/internal/server"
	"github.com/vellum-io/vellum/pkg/audit"
	"github.com/vellum-io/vellum/pkg/embed"
	"github.com/vellum-io/vellum/pkg/llm"
	"github.com/vellum-io/vellum/pkg/prompt"
	"github.com/vellum-io/vellum/pkg/queue"
	"github.com/vellum-io/vellum/pkg/rerank"
	"github.com/vellum-io/vellum/pkg/retrieval"
	"github.com/vellum-io/vellum/pkg/vector"
)

type Command struct {
	*base.Command

	flagConfig string
	flagAddr   string
}

func (c *Command) Synopsis() string {
	return "Run the API server"
}

func (c *Command) Help() string {
	return `Usage: vellum serve [options]

  Runs the HTTP API: routing, retrieval, ingest, search, rerank, PII
  detection, and prompt management. Without a kafka block the server runs
  the invoker in-process over an in-memory queue, so a single binary
  serves the whole request path.
` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("serve", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[VELLUM_CONFIG] Path to the HCL configuration file",
	)
	f.StringVar(
		&c.flagAddr, "addr", "",
		"[VELLUM_ADDR] Listen address, overriding the configured one",
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
	if addr := base.EnvDefault(c.flagAddr, "VELLUM_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}

	log := c.Log.Named("serve")
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gdb, err := base.OpenDatabase(cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error opening database: %v", err))
		return 1
	}
	gw, err := base.OpenObjectStore(cfg, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error opening object store: %v", err))
		return 1
	}
	backends, err := base.OpenVectorBackends(cfg, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error opening vector backends: %v", err))
		return 1
	}
	proxy := vector.NewProxy(cfg.Vector, backends, gdb, log)

	embedder, err := embed.New(ctx, cfg.Embed, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building embedder: %v", err))
		return 1
	}
	reranker, err := rerank.New(cfg.Rerank, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building reranker: %v", err))
		return 1
	}
	detector, err := base.NewPIIDetector(cfg, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building pii detector: %v", err))
		return 1
	}

	// With kafka configured, invocations go to the topic and a worker picks
	// them up. Without it, an in-memory broker carries them to an invoker
	// running in this process.
	var pub queue.Publisher
	invocationTopic := config.DefaultInvocationTopic
	if cfg.Kafka != nil {
		invocationTopic = cfg.Kafka.InvocationTopic
		kp, err := queue.NewKafkaPublisher(cfg.Kafka, log)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error connecting to kafka: %v", err))
			return 1
		}
		defer kp.Close()
		pub = kp
	} else {
		log.Info("no kafka block configured, running the invoker in-process")
		broker := queue.NewMemoryBroker()
		defer broker.Close()

		invoker, err := llm.NewInvoker(ctx, cfg.Invoker, log)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error building invoker: %v", err))
			return 1
		}
		consumer := broker.Consumer(invocationTopic)
		defer consumer.Stop()
		go func() {
			if err := consumer.Start(ctx, invoker.Handler()); err != nil && err != context.Canceled {
				log.Error("in-process invoker stopped", "error", err)
			}
		}()
		pub = broker
	}

	var classifier llm.Classifier
	if cfg.Router.ClassifierModel != "" {
		classifier = llm.NewOllamaClassifier(cfg.Embed.OllamaURL, cfg.Router.ClassifierModel, 0)
	}
	router := llm.NewRouter(cfg.Router, pub, invocationTopic, classifier, log)

	promptStore := prompt.NewStore(gdb, log)
	srv := server.Server{
		Config:       cfg,
		DB:           gdb,
		ObjectStore:  gw,
		Audit:        audit.NewStore(gdb, log),
		Chunker:      base.NewChunker(cfg, log),
		Embedder:     embedder,
		Vector:       proxy,
		Reranker:     reranker,
		Retrieval:    retrieval.New(embedder, proxy, reranker, router, cfg.Embed.DefaultModel, log),
		Router:       router,
		Prompts:      promptStore,
		PromptEngine: prompt.NewEngine(promptStore, router, log),
		PII:          detector,
		Logger:       log,
	}

	mux := http.NewServeMux()
	api.RegisterRoutes(srv, mux)

	var handler http.Handler = mux
	if cfg.Datadog.Enabled {
		tracer.Start(
			tracer.WithService(cfg.Datadog.Service),
			tracer.WithEnv(cfg.Datadog.Env),
		)
		defer tracer.Stop()
		handler = httptrace.WrapHandler(mux, cfg.Datadog.Service, "http.request")
	}

	// Write timeout covers the longest endpoint, a full retrieval pass.
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Server.Addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		c.UI.Error(fmt.Sprintf("server error: %v", err))
		return 1

	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			httpServer.Close()
			c.UI.Error(fmt.Sprintf("error during shutdown: %v", err))
			return 1
		}
	}

	return 0
}
