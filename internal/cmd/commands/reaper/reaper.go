// Package reaper implements the collection-expiry sweeper command.
package reaper

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/vellum-io/vellum/internal/cmd/base"
	"github.com/vellum-io/vellum/pkg/vector"
)

type Command struct {
	*base.Command

	flagConfig string
	flagOnce   bool
}

func (c *Command) Synopsis() string {
	return "Run the collection and source-object reaper"
}

func (c *Command) Help() string {
	return `Usage: vellum reaper [options]

  Drops expired ephemeral collections and deletes raw source objects
  whose pending-delete tags have aged past the retention window. Runs on
  the configured cron schedule; -once sweeps a single time and exits.
` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("reaper", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[VELLUM_CONFIG] Path to the HCL configuration file",
	)
	f.BoolVar(
		&c.flagOnce, "once", false,
		"Sweep once and exit instead of running on the schedule",
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

	log := c.Log.Named("reaper")
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

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

	reaper := vector.NewReaper(cfg, gdb, backends, gw, log)

	if c.flagOnce {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		var result *multierror.Error
		result = multierror.Append(result, reaper.Sweep(ctx))
		result = multierror.Append(result, reaper.SweepSources(ctx))
		if err := result.ErrorOrNil(); err != nil {
			c.UI.Error(fmt.Sprintf("sweep failed: %v", err))
			return 1
		}
		c.UI.Info("sweep complete")
		return 0
	}

	if err := reaper.Start(); err != nil {
		c.UI.Error(fmt.Sprintf("error starting reaper: %v", err))
		return 1
	}
	log.Info("reaper started", "schedule", cfg.Reaper.Schedule)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	log.Info("shutdown signal received", "signal", sig.String())

	reaper.Stop()
	return 0
}
