// Package metric provides Prometheus metrics for vos-server.
package metric

import "github.com/prometheus/client_golang/prometheus"

// Snapshot is the state sampled on each scrape.
type Snapshot struct {
	PoolUsed       uint64
	PoolSize       uint64
	Containers     int
	PoolHandles    int
	ContHandles    int
	ReclaimQueued  int
	ReclaimDeleted uint64
}

// Collector turns a Snapshot source into gauges at scrape time.
type Collector struct {
	source func() (Snapshot, error)

	poolUsed       *prometheus.Desc
	poolSize       *prometheus.Desc
	containers     *prometheus.Desc
	handles        *prometheus.Desc
	reclaimQueued  *prometheus.Desc
	reclaimDeleted *prometheus.Desc
	scrapeErrors   prometheus.Counter
}

// NewCollector creates a collector reading from source.
func NewCollector(source func() (Snapshot, error)) *Collector {
	return &Collector{
		source:         source,
		poolUsed:       prometheus.NewDesc("vos_pool_used_bytes", "Bytes charged against the pool.", nil, nil),
		poolSize:       prometheus.NewDesc("vos_pool_size_bytes", "Pool capacity.", nil, nil),
		containers:     prometheus.NewDesc("vos_pool_containers", "Containers in the pool.", nil, nil),
		handles:        prometheus.NewDesc("vos_open_handles", "Open handles by kind.", []string{"kind"}, nil),
		reclaimQueued:  prometheus.NewDesc("vos_reclaimer_queued_jobs", "Discard jobs waiting in the reclaimer.", nil, nil),
		reclaimDeleted: prometheus.NewDesc("vos_reclaimer_deleted_entries_total", "Tree entries removed by the reclaimer.", nil, nil),
		scrapeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vos_collector_errors_total",
			Help: "Scrapes whose snapshot could not be taken.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.poolUsed
	ch <- c.poolSize
	ch <- c.containers
	ch <- c.handles
	ch <- c.reclaimQueued
	ch <- c.reclaimDeleted
	c.scrapeErrors.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s, err := c.source()
	if err != nil {
		c.scrapeErrors.Inc()
		c.scrapeErrors.Collect(ch)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.poolUsed, prometheus.GaugeValue, float64(s.PoolUsed))
	ch <- prometheus.MustNewConstMetric(c.poolSize, prometheus.GaugeValue, float64(s.PoolSize))
	ch <- prometheus.MustNewConstMetric(c.containers, prometheus.GaugeValue, float64(s.Containers))
	ch <- prometheus.MustNewConstMetric(c.handles, prometheus.GaugeValue, float64(s.PoolHandles), "pool")
	ch <- prometheus.MustNewConstMetric(c.handles, prometheus.GaugeValue, float64(s.ContHandles), "container")
	ch <- prometheus.MustNewConstMetric(c.reclaimQueued, prometheus.GaugeValue, float64(s.ReclaimQueued))
	ch <- prometheus.MustNewConstMetric(c.reclaimDeleted, prometheus.CounterValue, float64(s.ReclaimDeleted))
	c.scrapeErrors.Collect(ch)
}
