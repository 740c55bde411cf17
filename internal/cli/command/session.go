package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/vos-go/internal/core/domain"
	srvconfig "github.com/yndnr/vos-go/internal/server/config"
	"github.com/yndnr/vos-go/internal/storage"
	"github.com/yndnr/vos-go/internal/telemetry/logger"
	"github.com/yndnr/vos-go/internal/vos"
)

// poolSession is the engine, store and pool handle behind one command.
type poolSession struct {
	engine *vos.Engine
	store  storage.Store
	poh    vos.PoolHandle
}

// Shared flags of the container commands.
var (
	contFlag = &cli.StringFlag{
		Name:     "cont",
		Usage:    "Container UUID",
		Required: true,
	}
	cookieFlag = &cli.StringFlag{
		Name:  "cookie",
		Usage: "Writer cookie (UUID); a fresh one when empty",
	}
	epochFlag = &cli.StringFlag{
		Name:    "epoch",
		Aliases: []string{"e"},
		Usage:   "Epoch (decimal or max)",
	}
)

func sessionLogger(c *cli.Context) *slog.Logger {
	if !c.Bool("verbose") {
		return logger.Discard()
	}
	w := c.App.ErrWriter
	if w == nil {
		w = os.Stderr
	}
	l, err := logger.New(logger.Config{Level: "debug", Format: "text", Output: w})
	if err != nil {
		return logger.Discard()
	}
	return l
}

// openStore opens the backend under the configured data directory the
// way vos-server lays it out.
func openStore(c *cli.Context, log *slog.Logger) (storage.Store, error) {
	cfg := CLIConfig(c)
	sc := srvconfig.Default()
	sc.Storage.DataDir = cfg.Dir
	sc.Storage.Backend = cfg.Backend

	store, err := storage.OpenStore(c.Context, srvconfig.ToStorageOptions(sc), log)
	if err != nil {
		return nil, fmt.Errorf("open %s store in %s: %w", cfg.Backend, cfg.Dir, err)
	}
	return store, nil
}

// openPool opens the pool of the configured data directory.
func openPool(c *cli.Context) (*poolSession, error) {
	log := sessionLogger(c)
	store, err := openStore(c, log)
	if err != nil {
		return nil, err
	}

	engine := vos.New(vos.Options{Logger: log})
	poh, err := engine.PoolOpen(c.Context, store)
	if err != nil {
		engine.Close()
		_ = store.Close()
		if errors.Is(err, domain.ErrPoolNotFound) {
			return nil, fmt.Errorf("no pool in %s (run \"vos-cli pool create\" first): %w", CLIConfig(c).Dir, err)
		}
		return nil, err
	}
	return &poolSession{engine: engine, store: store, poh: poh}, nil
}

// Close releases the pool handle, the engine and the store.
func (s *poolSession) Close() error {
	err := s.engine.PoolClose(s.poh)
	s.engine.Close()
	return errors.Join(err, s.store.Close())
}

// withPool runs fn against an open pool.
func withPool(c *cli.Context, fn func(ctx context.Context, s *poolSession) error) (err error) {
	s, err := openPool(c)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()
	return fn(c.Context, s)
}

// withCont runs fn against a handle on the container named by --cont.
func withCont(c *cli.Context, mode domain.OpenMode, fn func(ctx context.Context, s *poolSession, coh vos.ContHandle) error) error {
	id, err := parseUUIDFlag(c, "cont")
	if err != nil {
		return err
	}
	cookie, err := parseUUIDFlag(c, "cookie")
	if err != nil {
		return err
	}

	return withPool(c, func(ctx context.Context, s *poolSession) (err error) {
		coh, err := s.engine.ContOpen(ctx, s.poh, id, mode, cookie)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, s.engine.ContClose(coh))
		}()
		return fn(ctx, s, coh)
	})
}

// parseUUIDFlag parses a UUID flag; an unset flag yields uuid.Nil.
func parseUUIDFlag(c *cli.Context, name string) (uuid.UUID, error) {
	v := c.String(name)
	if v == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s: %w", name, err)
	}
	return id, nil
}

// epochOr parses --epoch, falling back to def when it is unset.
func epochOr(c *cli.Context, def domain.Epoch) (domain.Epoch, error) {
	v := c.String("epoch")
	if v == "" {
		return def, nil
	}
	e, err := domain.ParseEpoch(v)
	if err != nil {
		return 0, fmt.Errorf("--epoch: %w", err)
	}
	return e, nil
}
