package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/vos"
)

// DiscardCommand returns the discard command.
func DiscardCommand() *cli.Command {
	return &cli.Command{
		Name:  "discard",
		Usage: "Remove the stale records a writer left in an epoch range",
		Description: "Removes the extents written by --cookie in [lo, hi] whose epoch differs from\n" +
			"the epoch last committed under that cookie. The range must be a single epoch\n" +
			"or open ended (--hi max), and must not contain a snapshot.",
		Flags: []cli.Flag{
			contFlag,
			&cli.StringFlag{
				Name:     "cookie",
				Usage:    "Writer cookie (UUID)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "lo",
				Usage:    "First epoch of the range",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "hi",
				Value: "max",
				Usage: "Last epoch of the range (lo or max)",
			},
		},
		Action: discard,
	}
}

func discard(c *cli.Context) error {
	lo, err := domain.ParseEpoch(c.String("lo"))
	if err != nil {
		return fmt.Errorf("--lo: %w", err)
	}
	hi, err := domain.ParseEpoch(c.String("hi"))
	if err != nil {
		return fmt.Errorf("--hi: %w", err)
	}
	epr := domain.EpochRange{Lo: lo, Hi: hi}
	if err := epr.ValidateDiscard(); err != nil {
		return err
	}
	cookie, err := parseUUIDFlag(c, "cookie")
	if err != nil {
		return err
	}
	if cookie == uuid.Nil {
		return fmt.Errorf("--cookie must not be the nil UUID")
	}

	return withCont(c, domain.ModeRO, func(ctx context.Context, s *poolSession, coh vos.ContHandle) error {
		stats, err := s.engine.Discard(ctx, coh, epr, cookie)
		if err != nil {
			return err
		}
		return render(c, stats)
	})
}
