package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/vos"
)

// EpochCommand returns the epoch subcommand group. Each command opens its
// own container handle, so holds and slips last only for that command.
func EpochCommand() *cli.Command {
	flags := []cli.Flag{contFlag, cookieFlag, epochFlag}
	return &cli.Command{
		Name:  "epoch",
		Usage: "Query, hold, commit, abort and slip epochs",
		Subcommands: []*cli.Command{
			{
				Name:   "query",
				Usage:  "Show HCE, LRE and LHE",
				Flags:  []cli.Flag{contFlag},
				Action: epochQuery,
			},
			{
				Name:   "hold",
				Usage:  "Hold an epoch for writing",
				Flags:  flags,
				Action: epochHold,
			},
			{
				Name:  "commit",
				Usage: "Commit an epoch (default HCE+1)",
				Flags: append(flags[:3:3], &cli.StringSliceFlag{
					Name:  "depends",
					Usage: "Epochs that must already be committed",
				}),
				Action: epochCommit,
			},
			{
				Name:   "abort",
				Usage:  "Abort an uncommitted epoch",
				Flags:  flags,
				Action: epochAbort,
			},
			{
				Name:   "slip",
				Usage:  "Raise the lowest referenced epoch",
				Flags:  []cli.Flag{contFlag, epochFlag},
				Action: epochSlip,
			},
		},
	}
}

func epochQuery(c *cli.Context) error {
	return withCont(c, domain.ModeRO, func(_ context.Context, s *poolSession, coh vos.ContHandle) error {
		st, err := s.engine.EpochQuery(coh)
		if err != nil {
			return err
		}
		return render(c, st)
	})
}

// nextEpoch resolves --epoch against the container, defaulting to HCE+1.
func nextEpoch(c *cli.Context, s *poolSession, coh vos.ContHandle) (domain.Epoch, error) {
	st, err := s.engine.EpochQuery(coh)
	if err != nil {
		return 0, err
	}
	return epochOr(c, st.HCE+1)
}

func epochHold(c *cli.Context) error {
	return withCont(c, domain.ModeRW, func(_ context.Context, s *poolSession, coh vos.ContHandle) error {
		epoch, err := nextEpoch(c, s, coh)
		if err != nil {
			return err
		}
		st, err := s.engine.EpochHold(coh, epoch)
		if err != nil {
			return err
		}
		return render(c, st)
	})
}

func epochCommit(c *cli.Context) error {
	var depends []domain.Epoch
	for _, v := range c.StringSlice("depends") {
		d, err := domain.ParseEpoch(v)
		if err != nil {
			return fmt.Errorf("--depends: %w", err)
		}
		depends = append(depends, d)
	}

	return withCont(c, domain.ModeRW, func(ctx context.Context, s *poolSession, coh vos.ContHandle) error {
		epoch, err := nextEpoch(c, s, coh)
		if err != nil {
			return err
		}
		// A fresh handle holds nothing; commit needs epoch >= LHE.
		if _, err := s.engine.EpochHold(coh, epoch); err != nil {
			return err
		}
		st, err := s.engine.EpochCommit(ctx, coh, epoch, depends)
		if err != nil {
			return err
		}
		return render(c, st)
	})
}

func epochAbort(c *cli.Context) error {
	return withCont(c, domain.ModeRW, func(ctx context.Context, s *poolSession, coh vos.ContHandle) error {
		epoch, err := nextEpoch(c, s, coh)
		if err != nil {
			return err
		}
		if _, err := s.engine.EpochHold(coh, epoch); err != nil {
			return err
		}
		st, err := s.engine.EpochAbort(ctx, coh, epoch)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.ErrWriter, "Epoch %s aborted; run \"vos-cli discard --lo %s --hi %s\" with its cookie to reclaim space\n",
			epoch, epoch, epoch)
		return render(c, st)
	})
}

func epochSlip(c *cli.Context) error {
	return withCont(c, domain.ModeRO, func(_ context.Context, s *poolSession, coh vos.ContHandle) error {
		epoch, err := epochOr(c, domain.EpochMax)
		if err != nil {
			return err
		}
		st, err := s.engine.EpochSlip(coh, epoch)
		if err != nil {
			return err
		}
		return render(c, st)
	})
}
