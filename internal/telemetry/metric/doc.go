// Package metric provides Prometheus metrics for vos-server.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: the process registry, HTTP request metrics and the
//     /metrics handler
//   - collector.go: a collector sampling pool space, open handles and
//     the reclaimer queue at scrape time
//
// Engine counters are defined next to the engine (vos.NewMetrics) and
// registered on this registry.
package metric
