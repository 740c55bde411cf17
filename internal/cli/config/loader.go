// Package config defines the CLI configuration structure.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/vos-go/internal/infra/confloader"
)

// EnvPrefix prefixes the CLI environment variables (VOS_CLI_DIR, ...).
const EnvPrefix = "VOS_CLI_"

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".vos", "cli.yaml")
}

// Load loads CLI configuration: defaults, then the file if it exists,
// then VOS_CLI_* variables.
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		path = ""
	}

	loader := confloader.NewLoader(
		confloader.WithEnvPrefix(EnvPrefix),
		confloader.WithConfigFile(path),
		confloader.WithDefaults(Default()),
	)
	cfg := &CLIConfig{}
	if err := loader.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cli config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML, readable by the owner only.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Merge applies flag values on top of cfg. Empty or zero values are ignored.
func Merge(cfg *CLIConfig, flags CLIConfig) *CLIConfig {
	out := *cfg
	if flags.Dir != "" {
		out.Dir = flags.Dir
	}
	if flags.Backend != "" {
		out.Backend = flags.Backend
	}
	if flags.Output != "" {
		out.Output = flags.Output
	}
	if flags.PoolSize != 0 {
		out.PoolSize = flags.PoolSize
	}
	return &out
}
