package command

import (
	"context"
	"slices"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/vos-go/internal/cli/repl"
)

// ShellCommand returns the interactive shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Run commands interactively",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:  "history",
				Usage: "History file (default ~/.vos/history)",
			},
		},
		Action: shell,
	}
}

// globalArgs rebuilds the global flags of the current invocation so that
// every shell line sees the same pool and output settings.
func globalArgs(c *cli.Context) []string {
	cfg := CLIConfig(c)
	args := []string{"--dir", cfg.Dir, "--backend", cfg.Backend, "--output", cfg.Output}
	if p := c.String("config"); p != "" {
		args = append(args, "--config", p)
	}
	if c.Bool("wide") {
		args = append(args, "--wide")
	}
	if c.Bool("verbose") {
		args = append(args, "--verbose")
	}
	return args
}

// commandNames lists "group sub" pairs for completion.
func commandNames(cmds []*cli.Command) []string {
	var names []string
	for _, cmd := range cmds {
		if cmd.Name == "shell" {
			continue
		}
		names = append(names, cmd.Name)
		for _, sub := range cmd.Subcommands {
			names = append(names, cmd.Name+" "+sub.Name)
		}
	}
	return names
}

func shell(c *cli.Context) error {
	prefix := append([]string{c.App.Name}, globalArgs(c)...)
	exec := func(ctx context.Context, args []string) error {
		if len(args) > 0 && args[0] == "shell" {
			return nil
		}
		app := App()
		app.Writer = c.App.Writer
		app.ErrWriter = c.App.ErrWriter
		app.ExitErrHandler = func(*cli.Context, error) {}
		return app.RunContext(ctx, append(slices.Clone(prefix), args...))
	}

	history := repl.NewHistory(c.Path("history"))
	if err := history.Load(); err != nil {
		PrintError("load history: %v", err)
	}

	r := repl.New(exec, commandNames(c.App.Commands),
		repl.WithIO(c.App.Reader, c.App.Writer), repl.WithHistory(history))
	runErr := r.Run(c.Context)
	if err := history.Save(); err != nil {
		PrintError("save history: %v", err)
	}
	return runErr
}
