// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyEngine(&cfg.Engine); err != nil {
		return err
	}
	if err := verifyReclaimer(&cfg.Reclaimer); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.HTTP.Addr == "" {
		return errors.New("server.http.addr is required")
	}
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		return fmt.Errorf("server.http.addr: %w", err)
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("server.http: %w", err)
		}
	}
	if cfg.HTTP.RateLimit < 0 {
		return errors.New("server.http.rate_limit must not be negative")
	}
	if cfg.Local.Socket != "" && !filepath.IsAbs(cfg.Local.Socket) {
		return fmt.Errorf("server.local.socket %q must be an absolute path", cfg.Local.Socket)
	}
	for _, entry := range cfg.HTTP.AdminAllowList {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("server.http.admin_allow_list: %w", err)
			}
		} else if net.ParseIP(entry) == nil {
			return fmt.Errorf("server.http.admin_allow_list: invalid IP %q", entry)
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case "memory":
		return verifyPool(cfg)
	case "file", "badger":
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, file, badger", cfg.Backend)
	}

	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}

	// Check if data directory exists or can be created
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}

	if cfg.Backend == "file" {
		switch strings.ToLower(cfg.WALSyncMode) {
		case "sync", "batch":
		default:
			return fmt.Errorf("storage.wal_sync_mode %q is not one of sync, batch", cfg.WALSyncMode)
		}
		if cfg.CheckpointKeep < 1 {
			return errors.New("storage.checkpoint_keep must be at least 1")
		}
	}
	if cfg.Backend == "badger" && (cfg.BadgerGCRatio <= 0 || cfg.BadgerGCRatio >= 1) {
		return errors.New("storage.badger_gc_ratio must be in (0, 1)")
	}
	return verifyPool(cfg)
}

func verifyPool(cfg *StorageSection) error {
	if cfg.PoolSize == 0 {
		return errors.New("storage.pool_size must be positive")
	}
	if cfg.PoolUUID != "" {
		id, err := uuid.Parse(cfg.PoolUUID)
		if err != nil {
			return fmt.Errorf("storage.pool_uuid: %w", err)
		}
		if id == uuid.Nil {
			return errors.New("storage.pool_uuid must not be the nil uuid")
		}
	}
	return nil
}

func verifyEngine(cfg *EngineSection) error {
	if cfg.RegistryBucketBits == 0 || cfg.RegistryBucketBits > 20 {
		return errors.New("engine.registry_bucket_bits must be between 1 and 20")
	}
	return nil
}

func verifyReclaimer(cfg *ReclaimerSection) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Interval <= 0 {
		return errors.New("reclaimer.interval must be positive")
	}
	if cfg.Rate < 0 || cfg.Burst < 0 || cfg.MaxAttempts < 0 || cfg.QueueSize < 0 {
		return errors.New("reclaimer.rate, burst, max_attempts and queue_size must not be negative")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q is not one of json, text", cfg.Format)
	}
	return nil
}
