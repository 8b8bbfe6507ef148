// Package observability provides Prometheus metrics for the aggregation engine.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Fetch metrics
	FetchAttempts *prometheus.CounterVec
	FetchLatency  *prometheus.HistogramVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Resolver metrics
	Resolutions *prometheus.CounterVec

	// Job metrics
	JobPolls    *prometheus.CounterVec
	JobOutcomes *prometheus.CounterVec

	// Refresh metrics
	RefreshDuration prometheus.Histogram
	StaleMetrics    prometheus.Gauge
	LastRefresh     prometheus.Gauge
	BackupWrites    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers all metrics on reg. A nil reg uses a fresh registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "supply_sentinel"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		FetchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "attempts_total",
			Help:      "HTTP attempts by provider and outcome",
		}, []string{"provider", "outcome"}),
		FetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "latency_seconds",
			Help:      "Latency of single HTTP attempts",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by cache name and result (hit, miss, stale)",
		}, []string{"cache", "result"}),
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Metric resolutions by key, source and freshness",
		}, []string{"key", "source", "freshness"}),
		JobPolls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "polls_total",
			Help:      "Status polls issued per query",
		}, []string{"query"}),
		JobOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "outcomes_total",
			Help:      "Terminal job states per query",
		}, []string{"query", "state"}),
		RefreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Duration of full refresh cycles",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		StaleMetrics: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "stale_metrics",
			Help:      "Number of metrics served stale after the last refresh",
		}),
		LastRefresh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "last_completed_timestamp_seconds",
			Help:      "Unix time of the last completed refresh cycle",
		}),
		BackupWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "writes_total",
			Help:      "Durable store writes by outcome",
		}, []string{"outcome"}),
		gatherer: reg,
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveFetch records one HTTP attempt.
func (m *Metrics) ObserveFetch(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.FetchAttempts.WithLabelValues(provider, outcome).Inc()
	m.FetchLatency.WithLabelValues(provider).Observe(seconds)
}

// ObserveCache records a cache lookup result.
func (m *Metrics) ObserveCache(cache, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// ObserveResolution records how a metric was served.
func (m *Metrics) ObserveResolution(key, source string, stale bool) {
	if m == nil {
		return
	}
	freshness := "fresh"
	if stale {
		freshness = "stale"
	}
	m.Resolutions.WithLabelValues(key, source, freshness).Inc()
}

// ObservePoll records a status poll.
func (m *Metrics) ObservePoll(query string) {
	if m == nil {
		return
	}
	m.JobPolls.WithLabelValues(query).Inc()
}

// ObserveJob records a terminal job state.
func (m *Metrics) ObserveJob(query, state string) {
	if m == nil {
		return
	}
	m.JobOutcomes.WithLabelValues(query, state).Inc()
}

// ObserveRefresh records a completed refresh cycle.
func (m *Metrics) ObserveRefresh(seconds float64, stale int, unix float64) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(seconds)
	m.StaleMetrics.Set(float64(stale))
	m.LastRefresh.Set(unix)
}

// ObserveBackupWrite records a durable store write.
func (m *Metrics) ObserveBackupWrite(outcome string) {
	if m == nil {
		return
	}
	m.BackupWrites.WithLabelValues(outcome).Inc()
}
