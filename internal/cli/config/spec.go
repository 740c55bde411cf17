// Package config defines the CLI configuration structure.
package config

// CLIConfig is the configuration for vos-cli. Flags override it.
type CLIConfig struct {
	// Dir is the server data directory holding the pool.
	Dir string `koanf:"dir" yaml:"dir" json:"dir"`

	// Backend is file or badger.
	Backend string `koanf:"backend" yaml:"backend" json:"backend"`

	// Output is table, json or yaml.
	Output string `koanf:"output" yaml:"output" json:"output"`

	// PoolSize is used by "pool create" when --size is not given.
	PoolSize uint64 `koanf:"pool_size" yaml:"pool_size" json:"pool_size"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Dir:      "/var/lib/vos-server/data",
		Backend:  "file",
		Output:   "table",
		PoolSize: 1 << 30,
	}
}
