package vos

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine operation counters. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	updates        prometheus.Counter
	bytesWritten   prometheus.Counter
	fetches        prometheus.Counter
	punches        prometheus.Counter
	commits        prometheus.Counter
	aborts         prometheus.Counter
	discardRuns    *prometheus.CounterVec
	discardDeleted *prometheus.CounterVec
	openPools      prometheus.Gauge
	openConts      prometheus.Gauge
}

// NewMetrics creates the engine metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vos",
			Subsystem: "engine",
			Name:      "updates_total",
			Help:      "Record extents written",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vos",
			Subsystem: "engine",
			Name:      "written_bytes_total",
			Help:      "Payload bytes written by updates",
		}),
		fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vos",
			Subsystem: "engine",
			Name:      "fetches_total",
			Help:      "Fetch and extent fetch calls",
		}),
		punches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vos",
			Subsystem: "engine",
			Name:      "punches_total",
			Help:      "Tombstones written by punch calls",
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vos",
			Subsystem: "epoch",
			Name:      "commits_total",
			Help:      "Successful epoch commits",
		}),
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vos",
			Subsystem: "epoch",
			Name:      "aborts_total",
			Help:      "Successful epoch aborts",
		}),
		discardRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vos",
			Subsystem: "discard",
			Name:      "runs_total",
			Help:      "Discard calls by result",
		}, []string{"result"}),
		discardDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vos",
			Subsystem: "discard",
			Name:      "deleted_total",
			Help:      "Tree entries removed by discard, by level",
		}, []string{"level"}),
		openPools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vos",
			Subsystem: "registry",
			Name:      "pool_handles",
			Help:      "Open pool handles",
		}),
		openConts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vos",
			Subsystem: "registry",
			Name:      "container_handles",
			Help:      "Open container handles",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.updates,
			m.bytesWritten,
			m.fetches,
			m.punches,
			m.commits,
			m.aborts,
			m.discardRuns,
			m.discardDeleted,
			m.openPools,
			m.openConts,
		)
	}
	return m
}

func (m *Metrics) updated(bytes int) {
	if m == nil {
		return
	}
	m.updates.Inc()
	m.bytesWritten.Add(float64(bytes))
}

func (m *Metrics) fetched() {
	if m == nil {
		return
	}
	m.fetches.Inc()
}

func (m *Metrics) punched(n int) {
	if m == nil {
		return
	}
	m.punches.Add(float64(n))
}

func (m *Metrics) committed() {
	if m == nil {
		return
	}
	m.commits.Inc()
}

func (m *Metrics) aborted() {
	if m == nil {
		return
	}
	m.aborts.Inc()
}

func (m *Metrics) discarded(stats DiscardStats, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case stats.FastPath:
		result = "fast_path"
	}
	m.discardRuns.WithLabelValues(result).Inc()
	m.discardDeleted.WithLabelValues(LevelObject.String()).Add(float64(stats.Objects))
	m.discardDeleted.WithLabelValues(LevelDKey.String()).Add(float64(stats.DKeys))
	m.discardDeleted.WithLabelValues(LevelAKey.String()).Add(float64(stats.AKeys))
	m.discardDeleted.WithLabelValues(LevelRecx.String()).Add(float64(stats.Records))
}

func (m *Metrics) poolOpened() {
	if m == nil {
		return
	}
	m.openPools.Inc()
}

func (m *Metrics) poolClosed() {
	if m == nil {
		return
	}
	m.openPools.Dec()
}

func (m *Metrics) contOpened() {
	if m == nil {
		return
	}
	m.openConts.Inc()
}

func (m *Metrics) contClosed() {
	if m == nil {
		return
	}
	m.openConts.Dec()
}
