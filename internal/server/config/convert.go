// Package config defines the server configuration structure.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/service/reclaimer"
	"github.com/yndnr/vos-go/internal/storage"
	"github.com/yndnr/vos-go/internal/storage/wal"
	"github.com/yndnr/vos-go/internal/vos"
)

// ToStorageOptions maps the storage section onto backend options.
func ToStorageOptions(cfg *ServerConfig) storage.Options {
	s := cfg.Storage

	file := storage.DefaultConfig(filepath.Join(s.DataDir, "file"))
	file.WAL.SyncMode = wal.SyncMode(s.WALSyncMode)
	file.WAL.SyncInterval = s.WALSyncInterval
	file.CheckpointInterval = s.CheckpointInterval
	file.Checkpoint.RetentionCount = s.CheckpointKeep

	badger := storage.DefaultBadgerConfig(filepath.Join(s.DataDir, "badger"))
	badger.GCInterval = s.BadgerGCInterval
	badger.GCThreshold = s.BadgerGCRatio
	badger.SyncWrites = s.BadgerSyncWrites

	return storage.Options{
		Backend: s.Backend,
		File:    file,
		Badger:  badger,
	}
}

// ToEngineOptions maps the engine section onto vos options. Metrics and
// the discard hook are wired by the caller.
func ToEngineOptions(cfg *ServerConfig, logger *slog.Logger) vos.Options {
	return vos.Options{
		BucketBits:      cfg.Engine.RegistryBucketBits,
		DisableChecksum: !cfg.Engine.Checksum,
		Logger:          logger,
	}
}

// ToReclaimerConfig maps the reclaimer section.
func ToReclaimerConfig(cfg *ServerConfig) reclaimer.Config {
	r := cfg.Reclaimer
	return reclaimer.Config{
		Enabled:        r.Enabled,
		Interval:       r.Interval,
		Rate:           r.Rate,
		Burst:          r.Burst,
		DiscardOnAbort: r.DiscardOnAbort,
		MaxAttempts:    r.MaxAttempts,
		QueueSize:      r.QueueSize,
	}
}

// PoolUUID returns the configured pool uuid, or a fresh one when unset.
// The generated flag reports the latter.
func PoolUUID(cfg *ServerConfig) (id uuid.UUID, generated bool, err error) {
	if cfg.Storage.PoolUUID == "" {
		return uuid.New(), true, nil
	}
	id, err = uuid.Parse(cfg.Storage.PoolUUID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("storage.pool_uuid: %w", err)
	}
	return id, false, nil
}
