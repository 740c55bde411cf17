// Package config defines the server configuration structure.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/vos-go/internal/storage/wal"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.HTTP.Addr != DefaultHTTPAddr {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.Server.HTTP.Addr, DefaultHTTPAddr)
	}
	if cfg.Storage.Backend != DefaultBackend {
		t.Errorf("Backend = %q, want %q", cfg.Storage.Backend, DefaultBackend)
	}
	if cfg.Storage.DataDir != DefaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.Storage.DataDir, DefaultDataDir)
	}
	if cfg.Storage.PoolSize != DefaultPoolSize {
		t.Errorf("PoolSize = %d, want %d", cfg.Storage.PoolSize, DefaultPoolSize)
	}
	if !cfg.Engine.Checksum {
		t.Error("checksums should be on by default")
	}
	if !cfg.Reclaimer.Enabled || cfg.Reclaimer.Interval != DefaultReclaimInterval {
		t.Errorf("Reclaimer = %+v", cfg.Reclaimer)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, DefaultLogFormat)
	}
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Server.HTTP.AdminToken = "super-secret-token-1234567890"

	sanitized := Sanitize(cfg)

	if cfg.Server.HTTP.AdminToken != "super-secret-token-1234567890" {
		t.Error("Original config should not be modified")
	}
	if sanitized.Server.HTTP.AdminToken == cfg.Server.HTTP.AdminToken {
		t.Error("Sanitized config should mask the admin token")
	}
	if len(sanitized.Server.HTTP.AdminToken) != len(cfg.Server.HTTP.AdminToken) {
		t.Errorf("Masked token length = %d, want %d",
			len(sanitized.Server.HTTP.AdminToken), len(cfg.Server.HTTP.AdminToken))
	}

	empty := Sanitize(Default())
	if empty.Server.HTTP.AdminToken != "" {
		t.Error("Empty token should remain empty")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a", "****"},
		{"abcd", "****"},
		{"abcde", "ab*de"},
		{"abcdef", "ab**ef"},
		{"1234567890", "12******90"},
	}

	for _, tt := range tests {
		result := maskSecret(tt.input)
		if result != tt.expected {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *ServerConfig)
		wantErr bool
	}{
		{"defaults", nil, false},
		{"memory backend needs no dir", func(c *ServerConfig) { c.Storage.Backend = "memory"; c.Storage.DataDir = "" }, false},
		{"badger", func(c *ServerConfig) { c.Storage.Backend = "badger" }, false},
		{"unknown backend", func(c *ServerConfig) { c.Storage.Backend = "rocks" }, true},
		{"empty data dir", func(c *ServerConfig) { c.Storage.DataDir = "" }, true},
		{"bad sync mode", func(c *ServerConfig) { c.Storage.WALSyncMode = "never" }, true},
		{"no checkpoints kept", func(c *ServerConfig) { c.Storage.CheckpointKeep = 0 }, true},
		{"gc ratio", func(c *ServerConfig) { c.Storage.Backend = "badger"; c.Storage.BadgerGCRatio = 1 }, true},
		{"zero pool size", func(c *ServerConfig) { c.Storage.PoolSize = 0 }, true},
		{"pool uuid", func(c *ServerConfig) { c.Storage.PoolUUID = uuid.NewString() }, false},
		{"bad pool uuid", func(c *ServerConfig) { c.Storage.PoolUUID = "pool-1" }, true},
		{"nil pool uuid", func(c *ServerConfig) { c.Storage.PoolUUID = uuid.Nil.String() }, true},
		{"missing addr", func(c *ServerConfig) { c.Server.HTTP.Addr = "" }, true},
		{"addr without port", func(c *ServerConfig) { c.Server.HTTP.Addr = "localhost" }, true},
		{"cert without key", func(c *ServerConfig) { c.Server.HTTP.TLSCertFile = "/etc/cert.pem" }, true},
		{"local socket", func(c *ServerConfig) { c.Server.Local.Socket = "/run/vos/admin.sock" }, false},
		{"relative local socket", func(c *ServerConfig) { c.Server.Local.Socket = "admin.sock" }, true},
		{"admin allow list", func(c *ServerConfig) { c.Server.HTTP.AdminAllowList = []string{"10.0.0.0/8", "::1"} }, false},
		{"bad allow cidr", func(c *ServerConfig) { c.Server.HTTP.AdminAllowList = []string{"10.0.0.0/99"} }, true},
		{"bad allow ip", func(c *ServerConfig) { c.Server.HTTP.AdminAllowList = []string{"localhost"} }, true},
		{"bucket bits", func(c *ServerConfig) { c.Engine.RegistryBucketBits = 0 }, true},
		{"reclaimer interval", func(c *ServerConfig) { c.Reclaimer.Interval = 0 }, true},
		{"disabled reclaimer ignores interval", func(c *ServerConfig) {
			c.Reclaimer.Enabled = false
			c.Reclaimer.Interval = 0
		}, false},
		{"log level", func(c *ServerConfig) { c.Log.Level = "trace" }, true},
		{"log format", func(c *ServerConfig) { c.Log.Format = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Storage.DataDir = t.TempDir()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := Verify(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_CreateDataDir(t *testing.T) {
	newDir := filepath.Join(t.TempDir(), "subdir", "data")

	cfg := Default()
	cfg.Storage.DataDir = newDir
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify failed: %v", err)
	}

	if _, err := os.Stat(newDir); os.IsNotExist(err) {
		t.Error("Data directory should have been created")
	}
}

func TestToStorageOptions(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = "/data"
	cfg.Storage.WALSyncMode = "sync"
	cfg.Storage.CheckpointInterval = time.Minute
	cfg.Storage.BadgerGCRatio = 0.7

	opts := ToStorageOptions(cfg)
	if opts.Backend != "file" {
		t.Errorf("Backend = %q", opts.Backend)
	}
	if opts.File.DataDir != filepath.Join("/data", "file") || opts.Badger.Dir != filepath.Join("/data", "badger") {
		t.Errorf("dirs = %q, %q", opts.File.DataDir, opts.Badger.Dir)
	}
	if opts.File.WAL.SyncMode != wal.SyncModeSync || opts.File.CheckpointInterval != time.Minute {
		t.Errorf("file options = %+v", opts.File)
	}
	if opts.Badger.GCThreshold != 0.7 || opts.Badger.GCInterval != DefaultBadgerGCInterval {
		t.Errorf("badger options = %+v", opts.Badger)
	}
}

func TestToEngineAndReclaimer(t *testing.T) {
	cfg := Default()
	cfg.Engine.Checksum = false
	cfg.Reclaimer.DiscardOnAbort = false

	opts := ToEngineOptions(cfg, nil)
	if opts.BucketBits != DefaultRegistryBucketBits || !opts.DisableChecksum {
		t.Errorf("engine options = %+v", opts)
	}
	rc := ToReclaimerConfig(cfg)
	if rc.DiscardOnAbort || rc.Rate != DefaultReclaimRate || rc.QueueSize != DefaultReclaimQueueSize {
		t.Errorf("reclaimer config = %+v", rc)
	}
}

func TestPoolUUID(t *testing.T) {
	cfg := Default()
	id, generated, err := PoolUUID(cfg)
	if err != nil || !generated || id == uuid.Nil {
		t.Errorf("PoolUUID() = %s, %v, %v", id, generated, err)
	}

	want := uuid.New()
	cfg.Storage.PoolUUID = want.String()
	id, generated, err = PoolUUID(cfg)
	if err != nil || generated || id != want {
		t.Errorf("PoolUUID() = %s, %v, %v, want %s", id, generated, err, want)
	}

	cfg.Storage.PoolUUID = "nope"
	if _, _, err := PoolUUID(cfg); err == nil {
		t.Error("PoolUUID accepted a malformed uuid")
	}
}
