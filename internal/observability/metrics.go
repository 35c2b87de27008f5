// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Search metrics
	SearchesTotal  *prometheus.CounterVec
	SearchLatency  *prometheus.HistogramVec
	SampleFailures *prometheus.CounterVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec
	CacheEntries prometheus.Gauge

	// Batch metrics
	PaymentsProcessed prometheus.Counter
	OverpaidPayments  prometheus.Counter
	BlocksProcessed   prometheus.Counter

	// Data source metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "lightning_fee_lab"
	}

	return &Metrics{
		SearchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "searches_total",
			Help:      "Total number of route searches by searcher and outcome",
		}, []string{"searcher", "outcome"}),
		SearchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "latency_seconds",
			Help:      "Route search latency in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"searcher"}),
		SampleFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "sample_failures_total",
			Help:      "Fee samples excluded from an aggregate by reason",
		}, []string{"reason"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Fee cache lookups by result",
		}, []string{"result"}),
		CacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of normalized amount buckets in the fee cache",
		}),

		PaymentsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "payments_processed_total",
			Help:      "Total number of on-chain payments evaluated",
		}),
		OverpaidPayments: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "overpaid_payments_total",
			Help:      "Total number of payments whose chain fee exceeded the routing estimate",
		}),
		BlocksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "blocks_processed_total",
			Help:      "Total number of blocks evaluated",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "External RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_errors_total",
			Help:      "Total number of failed external RPC calls",
		}, []string{"source", "method"}),

		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"phase", "status"}),
		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"phase"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful day computation",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSearch records one route search.
func RecordSearch(searcher string, seconds float64, reachable bool) {
	outcome := "unreachable"
	if reachable {
		outcome = "reachable"
	}
	DefaultMetrics.SearchesTotal.WithLabelValues(searcher, outcome).Inc()
	DefaultMetrics.SearchLatency.WithLabelValues(searcher).Observe(seconds)
}

// RecordSampleFailure records a sample excluded from an aggregate.
func RecordSampleFailure(reason string) {
	DefaultMetrics.SampleFailures.WithLabelValues(reason).Inc()
}

// RecordCacheLookup records a fee cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheLookups.WithLabelValues(result).Inc()
}

// UpdateCacheEntries updates the fee cache size gauge.
func UpdateCacheEntries(n int) {
	DefaultMetrics.CacheEntries.Set(float64(n))
}

// RecordPayment records an evaluated payment.
func RecordPayment(overpaid bool) {
	DefaultMetrics.PaymentsProcessed.Inc()
	if overpaid {
		DefaultMetrics.OverpaidPayments.Inc()
	}
}

// RecordBlockProcessed increments the blocks processed counter.
func RecordBlockProcessed() {
	DefaultMetrics.BlocksProcessed.Inc()
}

// RecordRPC records an external RPC call.
func RecordRPC(source, method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(source, method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(source, method).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordPipelineRun records a pipeline run.
func RecordPipelineRun(phase, status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// MarkSuccessfulRun sets the last successful run gauge to unixSeconds.
func MarkSuccessfulRun(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulRun.Set(float64(unixSeconds))
}
