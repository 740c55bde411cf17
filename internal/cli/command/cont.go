package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/vos"
)

// ContCommand returns the container subcommand group.
func ContCommand() *cli.Command {
	return &cli.Command{
		Name:    "cont",
		Aliases: []string{"container"},
		Usage:   "Manage containers",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a container",
				ArgsUsage: "[UUID]",
				Action:    contCreate,
			},
			{
				Name:      "destroy",
				Usage:     "Destroy a container and everything in it",
				ArgsUsage: "UUID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: contDestroy,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List containers",
				Action:  contList,
			},
			{
				Name:  "query",
				Usage: "Show the epoch state of a container",
				Flags: []cli.Flag{
					contFlag,
					&cli.StringFlag{
						Name:  "mode",
						Value: "ro",
						Usage: "Open mode: ro, rw",
					},
				},
				Action: contQuery,
			},
		},
	}
}

// argUUID parses the first positional argument.
func argUUID(c *cli.Context) (uuid.UUID, error) {
	if c.NArg() < 1 {
		return uuid.Nil, fmt.Errorf("container UUID required")
	}
	id, err := uuid.Parse(c.Args().First())
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid container UUID: %w", err)
	}
	return id, nil
}

func contCreate(c *cli.Context) error {
	id := uuid.New()
	if c.NArg() > 0 {
		var err error
		if id, err = argUUID(c); err != nil {
			return err
		}
	}
	return withPool(c, func(ctx context.Context, s *poolSession) error {
		if err := s.engine.ContCreate(ctx, s.poh, id); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Container %s created\n", id)
		return nil
	})
}

func contDestroy(c *cli.Context) error {
	id, err := argUUID(c)
	if err != nil {
		return err
	}
	if !c.Bool("force") {
		return fmt.Errorf("destroying container %s removes all of its data; rerun with --force", id)
	}
	return withPool(c, func(ctx context.Context, s *poolSession) error {
		if err := s.engine.ContDestroy(ctx, s.poh, id); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Container %s destroyed\n", id)
		return nil
	})
}

func contList(c *cli.Context) error {
	return withPool(c, func(ctx context.Context, s *poolSession) error {
		items, err := s.engine.ContList(ctx, s.poh)
		if err != nil {
			return err
		}
		if len(items) == 0 && CLIConfig(c).Output == "table" {
			fmt.Fprintln(c.App.Writer, "No containers found.")
			return nil
		}
		return render(c, items)
	})
}

func contQuery(c *cli.Context) error {
	mode, err := domain.ParseOpenMode(c.String("mode"))
	if err != nil {
		return err
	}
	return withCont(c, mode, func(ctx context.Context, s *poolSession, coh vos.ContHandle) error {
		info, err := s.engine.ContQuery(ctx, coh)
		if err != nil {
			return err
		}
		return render(c, info)
	})
}
