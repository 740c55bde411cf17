// Package httpserver provides the admin HTTP server of vos-server.
//
// Endpoints, all served through net/http:
//
//   - Health: /health, /ready, /metrics
//   - Pool and containers: /admin/v1/pool, /admin/v1/containers[/{uuid}[/snapshots]]
//   - Discard control: /admin/v1/containers/{uuid}/discard, /admin/v1/reclaimer[/run]
//
// The middleware chain adds request IDs, panic recovery, audit logging,
// per-client rate limiting, an admin IP allowlist, bearer token checks
// and Prometheus request metrics.
package httpserver
