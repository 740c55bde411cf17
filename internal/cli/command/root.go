package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/vos-go/internal/cli/config"
	"github.com/yndnr/vos-go/internal/cli/output"
	"github.com/yndnr/vos-go/internal/infra/buildinfo"
	"github.com/yndnr/vos-go/internal/storage"
)

const configKey = "config"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:     "vos-cli",
		Usage:    "Versioned object store pool administration",
		Version:  buildinfo.String(),
		Flags:    globalFlags(),
		Metadata: make(map[string]any),
		Commands: []*cli.Command{
			PoolCommand(),
			ContCommand(),
			EpochCommand(),
			ObjCommand(),
			DiscardCommand(),
			SnapCommand(),
			RemoteCommand(),
			ConfigCommand(),
			ShellCommand(),
			VersionCommand(),
		},
		Before: loadConfig,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI config file (default ~/.vos/cli.yaml)",
			EnvVars: []string{"VOS_CLI_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "Server data directory holding the pool",
		},
		&cli.StringFlag{
			Name:    "backend",
			Aliases: []string{"b"},
			Usage:   "Storage backend: file, badger",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log engine activity to stderr",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	ConfigPath string
	Wide       bool
	Verbose    bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		ConfigPath: c.String("config"),
		Wide:       c.Bool("wide"),
		Verbose:    c.Bool("verbose"),
	}
}

// loadConfig loads the CLI config file and layers the global flags on top.
func loadConfig(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	cfg = config.Merge(cfg, config.CLIConfig{
		Dir:     c.String("dir"),
		Backend: c.String("backend"),
		Output:  c.String("output"),
	})

	if _, err := output.ParseFormat(cfg.Output); err != nil {
		return err
	}
	switch cfg.Backend {
	case storage.BackendFile, storage.BackendBadger:
	default:
		return fmt.Errorf("unsupported backend %q (want file or badger)", cfg.Backend)
	}

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

// CLIConfig returns the configuration loaded by the root Before hook.
func CLIConfig(c *cli.Context) *config.CLIConfig {
	if cfg, ok := c.App.Metadata[configKey].(*config.CLIConfig); ok {
		return cfg
	}
	return config.Default()
}

// render writes data to the app writer in the configured format.
func render(c *cli.Context, data any) error {
	format, err := output.ParseFormat(CLIConfig(c).Output)
	if err != nil {
		return err
	}
	return output.NewFormatter(format, c.Bool("wide")).Format(c.App.Writer, data)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
