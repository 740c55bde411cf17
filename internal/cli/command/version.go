package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/vos-go/internal/infra/buildinfo"
)

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			if CLIConfig(c).Output == "table" {
				fmt.Fprintf(c.App.Writer, "vos-cli %s\n", buildinfo.String())
				return nil
			}
			return render(c, buildinfo.Get())
		},
	}
}
