// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5080"
	DefaultRateLimit       = 200
	DefaultRateBurst       = 50
	DefaultShutdownTimeout = 10 * time.Second

	DefaultBackend            = "file"
	DefaultDataDir            = "/var/lib/vos-server/data"
	DefaultPoolSize           = 1 << 30
	DefaultWALSyncMode        = "batch"
	DefaultWALSyncInterval    = 100 * time.Millisecond
	DefaultCheckpointInterval = 5 * time.Minute
	DefaultCheckpointKeep     = 3
	DefaultBadgerGCInterval   = 10 * time.Minute
	DefaultBadgerGCRatio      = 0.5

	DefaultRegistryBucketBits = 10

	DefaultReclaimInterval    = 5 * time.Second
	DefaultReclaimRate        = 50
	DefaultReclaimBurst       = 10
	DefaultReclaimMaxAttempts = 10
	DefaultReclaimQueueSize   = 4096

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				RateLimit:       DefaultRateLimit,
				RateBurst:       DefaultRateBurst,
				ShutdownTimeout: DefaultShutdownTimeout,
			},
		},
		Storage: StorageSection{
			Backend:            DefaultBackend,
			DataDir:            DefaultDataDir,
			PoolSize:           DefaultPoolSize,
			WALSyncMode:        DefaultWALSyncMode,
			WALSyncInterval:    DefaultWALSyncInterval,
			CheckpointInterval: DefaultCheckpointInterval,
			CheckpointKeep:     DefaultCheckpointKeep,
			BadgerGCInterval:   DefaultBadgerGCInterval,
			BadgerGCRatio:      DefaultBadgerGCRatio,
		},
		Engine: EngineSection{
			RegistryBucketBits: DefaultRegistryBucketBits,
			Checksum:           true,
		},
		Reclaimer: ReclaimerSection{
			Enabled:        true,
			Interval:       DefaultReclaimInterval,
			Rate:           DefaultReclaimRate,
			Burst:          DefaultReclaimBurst,
			DiscardOnAbort: true,
			MaxAttempts:    DefaultReclaimMaxAttempts,
			QueueSize:      DefaultReclaimQueueSize,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Telemetry: TelemetrySection{
			Metrics: true,
		},
	}
}
