// Package config provides the vos-cli configuration.
//
// The file lives at ~/.vos/cli.yaml and names the pool directory, the
// store backend and the output format. VOS_CLI_* environment variables
// override the file and command-line flags override both.
package config
