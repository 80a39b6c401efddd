// Package migrate implements the schema migration command.
package migrate

import (
	"flag"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/vellum-io/vellum/internal/cmd/base"
	"github.com/vellum-io/vellum/internal/migrate"
)

type Command struct {
	*base.Command

	flagConfig string
	flagStatus bool
}

func (c *Command) Synopsis() string {
	return "Apply database schema migrations"
}

func (c *Command) Help() string {
	return `Usage: vellum migrate [options]

  Applies the embedded schema migrations to the configured database.
  With -status the current schema version is printed and nothing is
  changed.
` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("migrate", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[VELLUM_CONFIG] Path to the HCL configuration file",
	)
	f.BoolVar(
		&c.flagStatus, "status", false,
		"Print the schema version without applying anything",
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

	log := c.Log.Named("migrate")
	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	gdb, err := base.OpenDatabase(cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error opening database: %v", err))
		return 1
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		c.UI.Error(fmt.Sprintf("error unwrapping database handle: %v", err))
		return 1
	}

	if c.flagStatus {
		version, dirty, err := migrate.Version(sqlDB, cfg.Database.Driver)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error reading schema version: %v", err))
			return 1
		}
		c.UI.Output(fmt.Sprintf("schema version: %d (dirty: %t)", version, dirty))
		return 0
	}

	if err := migrate.Run(sqlDB, cfg.Database.Driver); err != nil {
		c.UI.Error(fmt.Sprintf("error applying migrations: %v", err))
		return 1
	}
	c.UI.Info("migrations applied")
	return 0
}
