// Package metrics defines the Prometheus metric collectors used across the
// index (§2.2 domain stack) and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the index.
type Metrics struct {
	DocsIndexedTotal    *prometheus.CounterVec
	LinkEdgesTotal      *prometheus.CounterVec
	ShardMergesTotal    *prometheus.CounterVec
	ShardMergeDuration  *prometheus.HistogramVec
	ShardUniqueCount    *prometheus.GaugeVec
	ActiveBuilders      *prometheus.GaugeVec
	QueriesTotal        *prometheus.CounterVec
	QueryLatency        *prometheus.HistogramVec
	LinksAppliedTotal   prometheus.Counter
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	IngestionRunsTotal  *prometheus.CounterVec
	HyperballDuration   prometheus.Histogram
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents folded into a level by IndexDocument.",
			},
			[]string{"level"},
		),
		LinkEdgesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "link_edges_total",
				Help: "Total link edges folded into link_level by IndexLinkDocument, by bloom outcome.",
			},
			[]string{"outcome"},
		),
		ShardMergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shard_merges_total",
				Help: "Total shard merge operations by level and status.",
			},
			[]string{"level", "status"},
		),
		ShardMergeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shard_merge_duration_seconds",
				Help:    "Shard merge latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"level"},
		),
		ShardUniqueCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shard_unique_key_estimate",
				Help: "HyperLogLog estimate of distinct keys per shard.",
			},
			[]string{"level", "shard_id"},
		),
		ActiveBuilders: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "active_builders",
				Help: "Number of shard builders a level currently holds (per-host for url_level).",
			},
			[]string{"level"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queries_total",
				Help: "Total find() queries by cache outcome (hit, miss, error).",
			},
			[]string{"result_type"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_latency_seconds",
				Help:    "find() query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		LinksAppliedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "links_applied_total",
				Help: "Total unique (source_domain, target) edges folded into results by apply_url_links.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total query-cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total query-cache misses.",
			},
		),
		IngestionRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_runs_total",
				Help: "Total ingestion-run ledger rows by command and status.",
			},
			[]string{"command", "status"},
		),
		HyperballDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hyperball_run_duration_seconds",
				Help:    "Wall-clock duration of a full HyperBall harmonic-centrality run.",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.DocsIndexedTotal,
		m.LinkEdgesTotal,
		m.ShardMergesTotal,
		m.ShardMergeDuration,
		m.ShardUniqueCount,
		m.ActiveBuilders,
		m.QueriesTotal,
		m.QueryLatency,
		m.LinksAppliedTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IngestionRunsTotal,
		m.HyperballDuration,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
