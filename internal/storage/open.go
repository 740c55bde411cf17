package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names accepted by OpenStore.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	File    Config
	Badger  BadgerConfig
}

// OpenStore opens the backend named by opts.Backend and recovers any
// persisted state.
func OpenStore(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		cfg := opts.File
		cfg.Logger = logger
		return Open(ctx, cfg)
	case BackendBadger:
		return NewBadgerEngine(opts.Badger, logger)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}
