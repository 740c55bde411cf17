// Package config provides server configuration for vos-server.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Semantic validation (backend names, sizes, intervals)
//   - sanitize.go: Log sanitization (hide the admin token)
//   - convert.go: Mapping onto storage, engine and reclaimer options
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: files, environment variables, and flags.
package config
