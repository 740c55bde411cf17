// Package main provides the entry point for vos-server.
//
// vos-server opens (or creates on first start) one versioned object pool
// in its data directory and runs:
//
//   - the background reclaimer that discards epochs left behind by
//     aborted or closed writers
//   - the admin HTTP API under /admin/v1 with /health, /ready and /metrics
//
// Configuration comes from defaults, an optional YAML file (-config) and
// VOS_* environment variables. Changes to the file's log level apply
// without a restart.
package main
