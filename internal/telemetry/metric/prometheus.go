// Package metric provides Prometheus metrics for vos-server.
package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the process metrics.
type Registry struct {
	registry *prometheus.Registry

	// Admin HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimited     prometheus.Counter

	// BuildInfo is always 1, labelled with the binary version.
	BuildInfo *prometheus.GaugeVec
}

// NewRegistry creates a registry with the Go runtime and process
// collectors plus the HTTP metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vos",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Admin HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vos",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vos",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Admin HTTP requests rejected by the rate limiter.",
		}),
		BuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vos",
			Name:      "build_info",
			Help:      "Build information of the running binary.",
		}, []string{"version", "commit"}),
	}
	reg.MustRegister(r.RequestsTotal, r.RequestDuration, r.RateLimited, r.BuildInfo)
	return r
}

// Registerer exposes the registry to other packages' metrics.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer exposes the registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// SetBuildInfo records the running version.
func (r *Registry) SetBuildInfo(version, commit string) {
	r.BuildInfo.WithLabelValues(version, commit).Set(1)
}

// Handler returns the /metrics handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}
