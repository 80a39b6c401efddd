// Package version implements the version command.
package version

import (
	"github.com/vellum-io/vellum/internal/cmd/base"
	"github.com/vellum-io/vellum/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version"
}

func (c *Command) Help() string {
	return `Usage: vellum version

  Prints the version of this build.
`
}

func (c *Command) Run(args []string) int {
	c.UI.Output(version.Version)
	return 0
}
