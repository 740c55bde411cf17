// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for vos-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server"`
	Storage   StorageSection   `koanf:"storage"`
	Engine    EngineSection    `koanf:"engine"`
	Reclaimer ReclaimerSection `koanf:"reclaimer"`
	Log       LogSection       `koanf:"log"`
	Telemetry TelemetrySection `koanf:"telemetry"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP  HTTPConfig  `koanf:"http"`
	Local LocalConfig `koanf:"local"`
}

// LocalConfig configures the local admin socket. It serves the same
// /admin/v1 API as HTTP without token or allow-list checks; access is
// governed by the socket file mode.
type LocalConfig struct {
	// Socket is the Unix socket path. Empty disables the local listener.
	Socket string `koanf:"socket"`
}

// HTTPConfig configures the admin HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// AdminToken, when set, must be presented as a bearer token on
	// every /admin/v1 request.
	AdminToken string `koanf:"admin_token"`

	// AdminAllowList restricts /admin/v1 to these IPs or CIDRs. Empty allows all.
	AdminAllowList []string `koanf:"admin_allow_list"`

	// RateLimit is the per-client request rate (requests/s). Zero disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StorageSection configures the pool store.
type StorageSection struct {
	// Backend is one of memory, file or badger.
	Backend string `koanf:"backend"`
	DataDir string `koanf:"data_dir"`

	// PoolUUID names the pool created on first start. Empty generates one.
	PoolUUID string `koanf:"pool_uuid"`
	PoolSize uint64 `koanf:"pool_size"`

	WALSyncMode        string        `koanf:"wal_sync_mode"`
	WALSyncInterval    time.Duration `koanf:"wal_sync_interval"`
	CheckpointInterval time.Duration `koanf:"checkpoint_interval"`
	CheckpointKeep     int           `koanf:"checkpoint_keep"`

	BadgerGCInterval time.Duration `koanf:"badger_gc_interval"`
	BadgerGCRatio    float64       `koanf:"badger_gc_ratio"`
	BadgerSyncWrites bool          `koanf:"badger_sync_writes"`
}

// EngineSection configures the versioning engine.
type EngineSection struct {
	// RegistryBucketBits sizes the handle tables (2^bits buckets).
	RegistryBucketBits uint `koanf:"registry_bucket_bits"`
	Checksum           bool `koanf:"checksum"`
}

// ReclaimerSection configures background discard.
type ReclaimerSection struct {
	Enabled        bool          `koanf:"enabled"`
	Interval       time.Duration `koanf:"interval"`
	Rate           float64       `koanf:"rate"`
	Burst          int           `koanf:"burst"`
	DiscardOnAbort bool          `koanf:"discard_on_abort"`
	MaxAttempts    int           `koanf:"max_attempts"`
	QueueSize      int           `koanf:"queue_size"`
}

// LogSection configures logging.
type LogSection struct {
	Level     string `koanf:"level"`
	Format    string `koanf:"format"`
	AddSource bool   `koanf:"add_source"`
}

// TelemetrySection configures metrics export.
type TelemetrySection struct {
	Metrics bool `koanf:"metrics"`
}
