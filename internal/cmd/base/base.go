// Package base carries the pieces every CLI command shares: the logger and
// UI handed down from main, a FlagSet whose help output names the
// environment variable mirroring each flag, and the constructors for the
// collaborators most commands wire.
package base

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
)

// Command is embedded by every subcommand.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui
}

// FlagSet wraps flag.FlagSet with help rendering. By convention a flag's
// usage string starts with "[VELLUM_X]" naming the environment variable
// consulted when the flag is left unset.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet wraps f and points its usage output at the rendered help.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	fs := &FlagSet{FlagSet: f}
	f.Usage = func() {
		fmt.Fprint(os.Stderr, fs.Help())
	}
	return fs
}

// Help renders the option table.
func (f *FlagSet) Help() string {
	var b strings.Builder
	b.WriteString("\n\nOptions:\n")
	f.VisitAll(func(fl *flag.Flag) {
		fmt.Fprintf(&b, "  -%s\n      %s", fl.Name, fl.Usage)
		if fl.DefValue != "" {
			fmt.Fprintf(&b, " (default: %s)", fl.DefValue)
		}
		b.WriteString("\n")
	})
	return b.String()
}

// EnvDefault returns flagValue, or the named environment variable when the
// flag was left empty.
func EnvDefault(flagValue, envName string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envName)
}
