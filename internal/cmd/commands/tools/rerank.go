package tools

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/cmd/base"
	"github.com/vellum-io/vellum/pkg/rerank"
	"github.com/vellum-io/vellum/pkg/vector"
)

// RerankCommand reorders candidate documents by relevance to a query.
type RerankCommand struct {
	*base.Command

	flagConfig string
	flagQuery  string
	flagFile   string
	flagTopK   int
}

func (c *RerankCommand) Synopsis() string {
	return "Rerank candidate documents against a query"
}

func (c *RerankCommand) Help() string {
	return `Usage: vellum rerank -query=TEXT [options]

  Reads a JSON array of candidate strings from -file or stdin, scores
  each against the query with the configured reranker, and prints the
  reordered matches.
` + c.Flags().Help()
}

func (c *RerankCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("rerank", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[VELLUM_CONFIG] Path to the HCL configuration file",
	)
	f.StringVar(
		&c.flagQuery, "query", "",
		"Query text",
	)
	f.StringVar(
		&c.flagFile, "file", "",
		"JSON array of candidate strings (stdin when omitted)",
	)
	f.IntVar(
		&c.flagTopK, "top-k", 0,
		"Keep only the best K candidates",
	)

	return f
}

func (c *RerankCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 2
	}
	if c.flagQuery == "" {
		c.UI.Error("-query is required")
		return 2
	}

	cfg, err := base.LoadConfig(base.EnvDefault(c.flagConfig, "VELLUM_CONFIG"))
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	log := c.Log.Named("rerank")
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	raw, err := readText("", c.flagFile)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	var candidates []string
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing candidates: %v", err))
		return 2
	}

	matches := make([]vector.Match, len(candidates))
	for i, text := range candidates {
		matches[i] = vector.Match{
			ID:       fmt.Sprintf("%d", i),
			Metadata: map[string]interface{}{"text": text},
		}
	}

	reranker, err := rerank.New(cfg.Rerank, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building reranker: %v", err))
		return 1
	}

	ranked := reranker.Rerank(context.Background(), c.flagQuery, matches, c.flagTopK)

	out, err := printJSON(ranked)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error rendering matches: %v", err))
		return 1
	}
	c.UI.Output(out)
	return 0
}
