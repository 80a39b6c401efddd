package tools

import (
	"context"
	"flag"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/cmd/base"
	"github.com/vellum-io/vellum/pkg/embed"
	"github.com/vellum-io/vellum/pkg/vector"
)

// VectorCommand manages and queries vector collections.
type VectorCommand struct {
	*base.Command

	flagConfig     string
	flagOp         string
	flagCollection string
	flagMode       string
	flagQuery      string
	flagModel      string
	flagTopK       int
	flagKeywords   string
	flagDim        int
	flagEphemeral  bool
	flagExpiresAt  string
}

func (c *VectorCommand) Synopsis() string {
	return "Search, create, or drop a vector collection"
}

func (c *VectorCommand) Help() string {
	return `Usage: vellum vector -op=search|create|drop -collection=NAME [options]

  Runs one operation against the configured vector backends. Search
  embeds -query with the default model and prints the matches.
` + c.Flags().Help()
}

func (c *VectorCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("vector", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[VELLUM_CONFIG] Path to the HCL configuration file",
	)
	f.StringVar(
		&c.flagOp, "op", "search",
		"Operation: search, create, or drop",
	)
	f.StringVar(
		&c.flagCollection, "collection", "",
		"Collection name",
	)
	f.StringVar(
		&c.flagMode, "mode", "",
		"Storage mode (qdrant or bleve), overriding the configured default",
	)
	f.StringVar(
		&c.flagQuery, "query", "",
		"Query text for -op=search",
	)
	f.StringVar(
		&c.flagModel, "model", "",
		"Embedding model spec for -op=search",
	)
	f.IntVar(
		&c.flagTopK, "top-k", 0,
		"Result count for -op=search (default: 10)",
	)
	f.StringVar(
		&c.flagKeywords, "keywords", "",
		"Keyword terms switching -op=search to hybrid mode",
	)
	f.IntVar(
		&c.flagDim, "dim", 0,
		"Vector dimension for -op=create",
	)
	f.BoolVar(
		&c.flagEphemeral, "ephemeral", false,
		"Register a TTL for -op=create",
	)
	f.StringVar(
		&c.flagExpiresAt, "expires-at", "",
		"Expiry timestamp for -ephemeral collections",
	)

	return f
}

func (c *VectorCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 2
	}
	if c.flagCollection == "" {
		c.UI.Error("-collection is required")
		return 2
	}

	cfg, err := base.LoadConfig(base.EnvDefault(c.flagConfig, "VELLUM_CONFIG"))
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	log := c.Log.Named("vector")
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	gdb, err := base.OpenDatabase(cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error opening database: %v", err))
		return 1
	}
	backends, err := base.OpenVectorBackends(cfg, log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error opening vector backends: %v", err))
		return 1
	}
	proxy := vector.NewProxy(cfg.Vector, backends, gdb, log)

	ctx := context.Background()
	switch c.flagOp {
	case "search":
		if c.flagQuery == "" {
			c.UI.Error("-query is required for -op=search")
			return 2
		}
		embedder, err := embed.New(ctx, cfg.Embed, log)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error building embedder: %v", err))
			return 1
		}
		embedding, err := embedder.EmbedQuery(ctx, c.flagModel, c.flagQuery)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error embedding query: %v", err))
			return 1
		}
		matches, err := proxy.Search(ctx, vector.SearchRequest{
			Collection:  c.flagCollection,
			Embedding:   embedding,
			Keywords:    c.flagKeywords,
			TopK:        c.flagTopK,
			StorageMode: c.flagMode,
		})
		if err != nil {
			c.UI.Error(fmt.Sprintf("error searching %s: %v", c.flagCollection, err))
			return 1
		}
		out, err := printJSON(matches)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error rendering matches: %v", err))
			return 1
		}
		c.UI.Output(out)

	case "create":
		if err := proxy.CreateCollection(ctx, vector.CreateCollectionRequest{
			Name:        c.flagCollection,
			Dim:         c.flagDim,
			StorageMode: c.flagMode,
			Ephemeral:   c.flagEphemeral,
			ExpiresAt:   c.flagExpiresAt,
		}); err != nil {
			c.UI.Error(fmt.Sprintf("error creating %s: %v", c.flagCollection, err))
			return 1
		}
		c.UI.Info(fmt.Sprintf("created collection %s", c.flagCollection))

	case "drop":
		if err := proxy.DropCollection(ctx, c.flagCollection, c.flagMode); err != nil {
			c.UI.Error(fmt.Sprintf("error dropping %s: %v", c.flagCollection, err))
			return 1
		}
		c.UI.Info(fmt.Sprintf("dropped collection %s", c.flagCollection))

	default:
		c.UI.Error(fmt.Sprintf("unknown operation %q", c.flagOp))
		return 2
	}

	return 0
}
