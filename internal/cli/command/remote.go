package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/vos-go/internal/cli/connection"
	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/infra/tlsroots"
	srvconfig "github.com/yndnr/vos-go/internal/server/config"
	"github.com/yndnr/vos-go/internal/server/httpserver/handler"
)

// RemoteCommand returns the subcommand group that talks to a running
// vos-server through its admin API.
func RemoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "remote",
		Usage: "Query a running vos-server through its admin API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Server admin address (host:port, URL or unix:///path)",
				EnvVars: []string{"VOS_CLI_SERVER"},
				Value:   srvconfig.DefaultHTTPAddr,
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Admin bearer token",
				EnvVars: []string{"VOS_CLI_TOKEN"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 30 * time.Second,
				Usage: "Request timeout",
			},
			&cli.StringFlag{
				Name:    "ca-file",
				Usage:   "PEM bundle trusted for the server certificate (implies https)",
				EnvVars: []string{"VOS_CLI_CA_FILE"},
			},
			&cli.BoolFlag{
				Name:  "insecure",
				Usage: "Use https without verifying the server certificate",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:   "pool",
				Usage:  "Show pool usage",
				Action: remotePool,
			},
			{
				Name:    "containers",
				Aliases: []string{"conts"},
				Usage:   "List containers",
				Action:  remoteContainers,
			},
			{
				Name:      "container",
				Aliases:   []string{"cont"},
				Usage:     "Show one container",
				ArgsUsage: "UUID",
				Action:    remoteContainer,
			},
			{
				Name:      "snapshots",
				Usage:     "List the snapshots of a container",
				ArgsUsage: "UUID",
				Action:    remoteSnapshots,
			},
			{
				Name:      "discard",
				Usage:     "Discard a writer's stale records",
				ArgsUsage: "UUID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "cookie", Usage: "Writer cookie (UUID)", Required: true},
					&cli.StringFlag{Name: "lo", Usage: "First epoch", Required: true},
					&cli.StringFlag{Name: "hi", Usage: "Last epoch (lo or max, default max)"},
					&cli.BoolFlag{Name: "async", Usage: "Queue the job on the reclaimer"},
				},
				Action: remoteDiscard,
			},
			{
				Name:   "reclaimer",
				Usage:  "Show reclaimer counters and pending jobs",
				Action: remoteReclaimer,
			},
			{
				Name:   "reclaim",
				Usage:  "Drain the reclaimer queue now",
				Action: remoteReclaim,
			},
		},
	}
}

// withClient runs fn with an admin client and a request deadline.
func withClient(c *cli.Context, fn func(ctx context.Context, client *connection.HTTPClient) error) error {
	var opts []connection.Option
	if c.IsSet("ca-file") || c.Bool("insecure") {
		tlsCfg, err := tlsroots.ClientConfig(c.String("ca-file"), c.Bool("insecure"))
		if err != nil {
			return err
		}
		opts = append(opts, connection.WithTLS(tlsCfg))
	}
	client := connection.NewHTTPClient(c.String("server"), c.String("token"), opts...)
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	return fn(ctx, client)
}

func remotePool(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, client *connection.HTTPClient) error {
		info, err := client.Pool(ctx)
		if err != nil {
			return err
		}
		return render(c, info)
	})
}

func remoteContainers(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, client *connection.HTTPClient) error {
		items, err := client.Containers(ctx)
		if err != nil {
			return err
		}
		return render(c, items)
	})
}

func remoteContainer(c *cli.Context) error {
	id, err := argUUID(c)
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *connection.HTTPClient) error {
		info, err := client.Container(ctx, id)
		if err != nil {
			return err
		}
		return render(c, info)
	})
}

func remoteSnapshots(c *cli.Context) error {
	id, err := argUUID(c)
	if err != nil {
		return err
	}
	return withClient(c, func(ctx context.Context, client *connection.HTTPClient) error {
		snaps, err := client.Snapshots(ctx, id)
		if err != nil {
			return err
		}
		return render(c, snaps)
	})
}

func remoteDiscard(c *cli.Context) error {
	id, err := argUUID(c)
	if err != nil {
		return err
	}
	cookie, err := uuid.Parse(c.String("cookie"))
	if err != nil {
		return fmt.Errorf("--cookie: %w", err)
	}
	lo, err := domain.ParseEpoch(c.String("lo"))
	if err != nil {
		return fmt.Errorf("--lo: %w", err)
	}
	req := handler.DiscardRequest{Lo: lo, Cookie: cookie.String(), Async: c.Bool("async")}
	if c.IsSet("hi") {
		hi, err := domain.ParseEpoch(c.String("hi"))
		if err != nil {
			return fmt.Errorf("--hi: %w", err)
		}
		req.Hi = &hi
	}

	return withClient(c, func(ctx context.Context, client *connection.HTTPClient) error {
		resp, err := client.Discard(ctx, id, req)
		if err != nil {
			return err
		}
		if resp.Queued {
			fmt.Fprintf(c.App.Writer, "Discard of %s queued on the reclaimer\n", resp.Epr)
			return nil
		}
		return render(c, resp.Stats)
	})
}

func remoteReclaimer(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, client *connection.HTTPClient) error {
		resp, err := client.Reclaimer(ctx)
		if err != nil {
			return err
		}
		if CLIConfig(c).Output != "table" {
			return render(c, resp)
		}
		if err := render(c, resp.Stats); err != nil {
			return err
		}
		if len(resp.Pending) == 0 {
			return nil
		}
		fmt.Fprintln(c.App.Writer)
		return render(c, resp.Pending)
	})
}

func remoteReclaim(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, client *connection.HTTPClient) error {
		rep, err := client.RunReclaimer(ctx)
		if err != nil {
			return err
		}
		return render(c, rep)
	})
}
