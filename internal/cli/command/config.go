package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/vos-go/internal/cli/config"
	"github.com/yndnr/vos-go/internal/infra/confloader"
	srvconfig "github.com/yndnr/vos-go/internal/server/config"
	"github.com/yndnr/vos-go/pkg/token"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective CLI configuration",
				Action: configShow,
			},
			{
				Name:   "save",
				Usage:  "Write the effective CLI configuration to the config file",
				Action: configSave,
			},
			{
				Name:      "check",
				Usage:     "Validate a vos-server configuration file",
				ArgsUsage: "FILE",
				Action:    configCheck,
			},
			{
				Name:   "gen-token",
				Usage:  "Generate an admin token and the hash to put in server.http.admin_token",
				Action: configGenToken,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	return render(c, CLIConfig(c))
}

func configSave(c *cli.Context) error {
	path := c.String("config")
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := config.Save(CLIConfig(c), path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Configuration written to %s\n", path)
	return nil
}

// configCheck loads a server config file the way vos-server does, then
// verifies it and prints it with secrets masked.
func configCheck(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("config file required")
	}
	path := c.Args().First()

	cfg := srvconfig.Default()
	loader := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithDefaults(srvconfig.Default()),
	)
	if err := loader.Load(cfg); err != nil {
		return err
	}
	if err := srvconfig.Verify(cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if CLIConfig(c).Output == "table" {
		fmt.Fprintf(c.App.Writer, "%s: OK\n", path)
		return nil
	}
	return render(c, srvconfig.Sanitize(cfg))
}

type generatedToken struct {
	Token string `json:"token"`
	Hash  string `json:"hash"`
}

func configGenToken(c *cli.Context) error {
	tok, err := token.Generate()
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	gen := generatedToken{Token: tok, Hash: token.Hash(tok)}
	if CLIConfig(c).Output == "table" {
		fmt.Fprintf(c.App.Writer, "token: %s\nhash:  %s\n", gen.Token, gen.Hash)
		return nil
	}
	return render(c, gen)
}
