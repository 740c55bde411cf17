package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/vos"
)

// SnapCommand returns the snapshot subcommand group.
func SnapCommand() *cli.Command {
	return &cli.Command{
		Name:    "snap",
		Aliases: []string{"snapshot"},
		Usage:   "Pin committed epochs against discard",
		Subcommands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "Snapshot the current HCE",
				Flags:  []cli.Flag{contFlag},
				Action: snapCreate,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List snapshots",
				Flags:   []cli.Flag{contFlag},
				Action:  snapList,
			},
			{
				Name:  "destroy",
				Usage: "Remove the snapshot at an epoch",
				Flags: []cli.Flag{
					contFlag,
					&cli.StringFlag{
						Name:     "epoch",
						Aliases:  []string{"e"},
						Usage:    "Snapshot epoch",
						Required: true,
					},
				},
				Action: snapDestroy,
			},
		},
	}
}

func snapCreate(c *cli.Context) error {
	return withCont(c, domain.ModeRW, func(ctx context.Context, s *poolSession, coh vos.ContHandle) error {
		epoch, err := s.engine.SnapCreate(ctx, coh)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Snapshot created at epoch %s\n", epoch)
		return nil
	})
}

func snapList(c *cli.Context) error {
	return withCont(c, domain.ModeRO, func(ctx context.Context, s *poolSession, coh vos.ContHandle) error {
		snaps, err := s.engine.SnapList(ctx, coh)
		if err != nil {
			return err
		}
		if len(snaps) == 0 && CLIConfig(c).Output == "table" {
			fmt.Fprintln(c.App.Writer, "No snapshots found.")
			return nil
		}
		return render(c, snaps)
	})
}

func snapDestroy(c *cli.Context) error {
	epoch, err := epochOr(c, 0)
	if err != nil {
		return err
	}
	return withCont(c, domain.ModeRW, func(ctx context.Context, s *poolSession, coh vos.ContHandle) error {
		if err := s.engine.SnapDestroy(ctx, coh, epoch); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Snapshot at epoch %s destroyed\n", epoch)
		return nil
	})
}
