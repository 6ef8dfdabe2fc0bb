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
	// Chain reader metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec
	HeadsReceived  prometheus.Counter
	HighestBlock   prometheus.Gauge

	// Aggregation metrics
	AggregationRuns     *prometheus.CounterVec
	AggregationDuration prometheus.Histogram
	EnumerationSkips    prometheus.Counter
	URIFailures         prometheus.Counter
	AssetsReturned      prometheus.Histogram
	TrackedAccounts     prometheus.Gauge

	// Metadata metrics
	MetadataResolutions *prometheus.CounterVec
	MetadataLatency     prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
// on the given registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "nft_holdings"
	}
	factory := promauto.With(reg)

	return &Metrics{
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "JSON-RPC call latency by method",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		RPCCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_errors_total",
			Help:      "JSON-RPC call failures by method and kind",
		}, []string{"method", "kind"}),
		HeadsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "heads_received_total",
			Help:      "Total number of newHeads notifications received",
		}),
		HighestBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "highest_block",
			Help:      "Highest block number seen on the head subscription",
		}),

		AggregationRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "aggregation_runs_total",
			Help:      "Aggregation runs by outcome (published, superseded, cancelled)",
		}, []string{"outcome"}),
		AggregationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of completed aggregation runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		EnumerationSkips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "enumeration_skips_total",
			Help:      "Enumeration indices dropped after a failed tokenOfOwnerByIndex",
		}),
		URIFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "uri_failures_total",
			Help:      "tokenURI reads that failed; the asset is kept with an empty uri",
		}),
		AssetsReturned: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "assets_per_run",
			Help:      "Number of assets returned per aggregation run",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		TrackedAccounts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "tracked_accounts",
			Help:      "Number of accounts with a live tracker",
		}),

		MetadataResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "resolutions_total",
			Help:      "Metadata resolutions by result",
		}, []string{"result"}),
		MetadataLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "metadata",
			Name:      "fetch_duration_seconds",
			Help:      "Metadata document fetch latency",
			Buckets:   prometheus.DefBuckets,
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query latency",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCError records a failed RPC call. kind is "transport" or "rpc".
func RecordRPCError(method, kind string) {
	DefaultMetrics.RPCCallErrors.WithLabelValues(method, kind).Inc()
}

// RecordHead records a newHeads notification.
func RecordHead(number uint64) {
	DefaultMetrics.HeadsReceived.Inc()
	DefaultMetrics.HighestBlock.Set(float64(number))
}

// RecordAggregationRun records the outcome of an aggregation run.
func RecordAggregationRun(outcome string) {
	DefaultMetrics.AggregationRuns.WithLabelValues(outcome).Inc()
}

// RecordAggregationCompleted records duration and size of a completed run.
func RecordAggregationCompleted(seconds float64, assets int) {
	DefaultMetrics.AggregationDuration.Observe(seconds)
	DefaultMetrics.AssetsReturned.Observe(float64(assets))
}

// RecordEnumerationSkip increments the skipped index counter.
func RecordEnumerationSkip() {
	DefaultMetrics.EnumerationSkips.Inc()
}

// RecordURIFailure increments the failed tokenURI counter.
func RecordURIFailure() {
	DefaultMetrics.URIFailures.Inc()
}

// SetTrackedAccounts updates the tracked accounts gauge.
func SetTrackedAccounts(n int) {
	DefaultMetrics.TrackedAccounts.Set(float64(n))
}

// RecordMetadataResolution records a metadata resolution result.
func RecordMetadataResolution(result string) {
	DefaultMetrics.MetadataResolutions.WithLabelValues(result).Inc()
}

// RecordMetadataLatency records a metadata fetch duration.
func RecordMetadataLatency(seconds float64) {
	DefaultMetrics.MetadataLatency.Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
