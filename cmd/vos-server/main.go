package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/infra/buildinfo"
	"github.com/yndnr/vos-go/internal/infra/confloader"
	"github.com/yndnr/vos-go/internal/infra/shutdown"
	"github.com/yndnr/vos-go/internal/server/config"
	"github.com/yndnr/vos-go/internal/server/httpserver"
	"github.com/yndnr/vos-go/internal/server/httpserver/handler"
	"github.com/yndnr/vos-go/internal/server/localserver"
	"github.com/yndnr/vos-go/internal/service/reclaimer"
	"github.com/yndnr/vos-go/internal/storage"
	"github.com/yndnr/vos-go/internal/telemetry/logger"
	"github.com/yndnr/vos-go/internal/telemetry/metric"
	"github.com/yndnr/vos-go/internal/vos"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("vos-server %s\n", buildinfo.String())
		return nil
	}

	loader := confloader.NewLoader(
		confloader.WithConfigFile(*configFile),
		confloader.WithDefaults(config.Default()),
	)
	cfg, err := loadConfig(loader)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Setup(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    os.Stdout,
		AddSource: cfg.Log.AddSource,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	bi := buildinfo.Get()
	log.Info("starting vos-server",
		"version", bi.Version,
		"commit", bi.Commit,
		"config", *configFile,
		"backend", cfg.Storage.Backend)

	ctx := context.Background()
	var reg *metric.Registry
	if cfg.Telemetry.Metrics {
		reg = metric.NewRegistry()
		reg.SetBuildInfo(bi.Version, bi.Commit)
	}

	store, err := initStorage(ctx, cfg, reg, log)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// The reclaimer needs the pool handle, the engine needs the reclaimer
	// hook; jobs reported before the reclaimer exists are dropped.
	var rc atomic.Pointer[reclaimer.Reclaimer]
	engineOpts := config.ToEngineOptions(cfg, log)
	engineOpts.OnDiscardable = func(job vos.DiscardJob) {
		if r := rc.Load(); r != nil {
			r.Enqueue(job)
		}
	}
	if reg != nil {
		engineOpts.Metrics = vos.NewMetrics(reg.Registerer())
	}
	engine := vos.New(engineOpts)

	poh, poolID, err := openPool(ctx, engine, store, cfg, log)
	if err != nil {
		engine.Close()
		_ = store.Close()
		return fmt.Errorf("open pool: %w", err)
	}

	r := reclaimer.New(config.ToReclaimerConfig(cfg), engine, poh, poolID, log)
	rc.Store(r)
	r.Start()

	if reg != nil {
		reg.Registerer().MustRegister(metric.NewCollector(snapshotSource(engine, poh, r)))
	}

	var stopping atomic.Bool
	routerCfg := &httpserver.RouterConfig{
		Handler: handler.Config{
			Engine:    engine,
			Pool:      poh,
			Reclaimer: r,
			Ready: func() error {
				if stopping.Load() {
					return errors.New("shutting down")
				}
				return nil
			},
			Logger: log,
		},
		Metrics:        reg,
		Logger:         log,
		AdminToken:     cfg.Server.HTTP.AdminToken,
		AdminAllowList: cfg.Server.HTTP.AdminAllowList,
		RateLimit:      cfg.Server.HTTP.RateLimit,
		RateBurst:      cfg.Server.HTTP.RateBurst,
		EnableAudit:    true,
	}
	httpServer := httpserver.New(httpserver.Config{
		Addr:        cfg.Server.HTTP.Addr,
		TLSCertFile: cfg.Server.HTTP.TLSCertFile,
		TLSKeyFile:  cfg.Server.HTTP.TLSKeyFile,
		Logger:      log,
	}, httpserver.NewRouter(routerCfg))
	if err := httpServer.Listen(); err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.HTTP.Addr, err)
	}

	var local *localserver.Server
	if cfg.Server.Local.Socket != "" {
		localCfg := *routerCfg
		localCfg.Metrics = nil
		localCfg.AdminToken = ""
		localCfg.AdminAllowList = nil
		localCfg.RateLimit = 0
		local = localserver.New(cfg.Server.Local.Socket, httpserver.NewRouter(&localCfg), localserver.WithLogger(log))
		if err := local.Listen(); err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.Local.Socket, err)
		}
	}

	watcher := watchConfig(loader, log)

	// Hooks run in reverse order of registration.
	shutdownHandler := shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, log)
	shutdownHandler.OnShutdownFunc("store", store.Close)
	shutdownHandler.OnShutdownFunc("engine", func() error {
		engine.Close()
		return nil
	})
	shutdownHandler.OnShutdownFunc("pool", func() error {
		return engine.PoolClose(poh)
	})
	shutdownHandler.OnShutdown("reclaimer", r.Stop)
	shutdownHandler.OnShutdown("http", func(ctx context.Context) error {
		stopping.Store(true)
		return httpServer.Shutdown(ctx)
	})
	if local != nil {
		shutdownHandler.OnShutdown("local socket", local.Shutdown)
	}
	if watcher != nil {
		shutdownHandler.OnShutdownFunc("config watcher", watcher.Stop)
	}

	serveCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		if err := httpServer.Serve(); err != nil {
			log.Error("http server error", "error", err)
			cancel(err)
		}
	}()

	if local != nil {
		go func() {
			if err := local.Serve(); err != nil {
				log.Error("local socket error", "error", err)
				cancel(err)
			}
		}()
	}

	log.Info("server started", "addr", httpServer.Addr(), "pool", poolID)
	if err := shutdownHandler.Wait(serveCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	if cause := context.Cause(serveCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from defaults, file and environment,
// then verifies it.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initStorage opens the configured backend. Badger exports its own
// metrics when a registry is given.
func initStorage(ctx context.Context, cfg *config.ServerConfig, reg *metric.Registry, log *slog.Logger) (storage.Store, error) {
	store, err := storage.OpenStore(ctx, config.ToStorageOptions(cfg), log)
	if err != nil {
		return nil, err
	}
	if be, ok := store.(*storage.BadgerEngine); ok && reg != nil {
		be.RegisterMetrics(reg.Registerer())
	}
	return store, nil
}

// openPool opens the pool in store, creating it on first start.
func openPool(ctx context.Context, engine *vos.Engine, store storage.Store, cfg *config.ServerConfig, log *slog.Logger) (vos.PoolHandle, uuid.UUID, error) {
	poh, err := engine.PoolOpen(ctx, store)
	if errors.Is(err, domain.ErrPoolNotFound) {
		id, generated, perr := config.PoolUUID(cfg)
		if perr != nil {
			return 0, uuid.Nil, perr
		}
		if generated {
			log.Warn("storage.pool_uuid not set, generated one", "pool", id)
		}
		if err := engine.PoolCreate(ctx, store, id, cfg.Storage.PoolSize); err != nil {
			return 0, uuid.Nil, err
		}
		poh, err = engine.PoolOpen(ctx, store)
	}
	if err != nil {
		return 0, uuid.Nil, err
	}

	id, err := engine.PoolUUID(poh)
	if err != nil {
		return 0, uuid.Nil, err
	}
	if cfg.Storage.PoolUUID != "" && cfg.Storage.PoolUUID != id.String() {
		log.Warn("configured pool uuid differs from the stored pool",
			"configured", cfg.Storage.PoolUUID, "stored", id)
	}
	return poh, id, nil
}

// watchConfig reloads the config file on change and applies the log
// level. Other settings need a restart.
func watchConfig(loader *confloader.Loader, log *slog.Logger) *confloader.Watcher {
	if loader.FilePath() == "" {
		return nil
	}
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		log.Warn("config watcher unavailable", "error", err)
		return nil
	}
	if err := w.Watch(loader.FilePath()); err != nil {
		log.Warn("config watcher unavailable", "error", err)
		_ = w.Stop()
		return nil
	}
	w.OnChange(func(path string) {
		cfg := config.Default()
		if err := loader.Reload(cfg); err != nil {
			log.Error("config reload failed", "path", path, "error", err)
			return
		}
		if err := config.Verify(cfg); err != nil {
			log.Error("config reload rejected", "path", path, "error", err)
			return
		}
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Error("config reload rejected", "path", path, "error", err)
			return
		}
		log.Info("config reloaded", "path", path, "log_level", cfg.Log.Level)
	})
	w.StartAsync()
	return w
}

// snapshotSource samples the pool and reclaimer for the metrics collector.
func snapshotSource(engine *vos.Engine, poh vos.PoolHandle, r *reclaimer.Reclaimer) func() (metric.Snapshot, error) {
	return func() (metric.Snapshot, error) {
		info, err := engine.PoolQuery(context.Background(), poh)
		if err != nil {
			return metric.Snapshot{}, err
		}
		pools, conts := engine.OpenHandles()
		rs := r.Stats()
		return metric.Snapshot{
			PoolUsed:       info.Used,
			PoolSize:       info.Size,
			Containers:     info.Containers,
			PoolHandles:    pools,
			ContHandles:    conts,
			ReclaimQueued:  rs.Queued,
			ReclaimDeleted: rs.Deleted,
		}, nil
	}
}
