package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/vos-go/internal/vos"
)

// PoolCommand returns the pool subcommand group.
func PoolCommand() *cli.Command {
	return &cli.Command{
		Name:  "pool",
		Usage: "Create and inspect the pool",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a pool in the data directory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "uuid",
						Usage: "Pool UUID (generated when empty)",
					},
					&cli.Uint64Flag{
						Name:  "size",
						Usage: "Pool size in bytes (default from config)",
					},
				},
				Action: poolCreate,
			},
			{
				Name:   "query",
				Usage:  "Show pool size, usage and container count",
				Action: poolQuery,
			},
		},
	}
}

func poolCreate(c *cli.Context) (err error) {
	id, err := parseUUIDFlag(c, "uuid")
	if err != nil {
		return err
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	size := c.Uint64("size")
	if size == 0 {
		size = CLIConfig(c).PoolSize
	}

	log := sessionLogger(c)
	store, err := openStore(c, log)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	engine := vos.New(vos.Options{Logger: log})
	defer engine.Close()
	if err := engine.PoolCreate(c.Context, store, id, size); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Pool %s created (%s)\n", id, humanize.IBytes(size))
	return nil
}

func poolQuery(c *cli.Context) error {
	return withPool(c, func(ctx context.Context, s *poolSession) error {
		info, err := s.engine.PoolQuery(ctx, s.poh)
		if err != nil {
			return err
		}
		if CLIConfig(c).Output != "table" {
			return render(c, info)
		}
		w := c.App.Writer
		fmt.Fprintf(w, "UUID:        %s\n", info.UUID)
		fmt.Fprintf(w, "Size:        %s (%d)\n", humanize.IBytes(info.Size), info.Size)
		fmt.Fprintf(w, "Used:        %s (%d)\n", humanize.IBytes(info.Used), info.Used)
		fmt.Fprintf(w, "Available:   %s\n", humanize.IBytes(info.Available))
		fmt.Fprintf(w, "Containers:  %d\n", info.Containers)
		created := time.UnixMilli(info.CreatedAt)
		fmt.Fprintf(w, "Created:     %s (%s)\n", created.Format(time.RFC3339), humanize.Time(created))
		return nil
	})
}
