// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Fetch metrics
	SwapsFetched       prometheus.Counter
	MalformedSwaps     prometheus.Counter
	SubgraphRequests   *prometheus.CounterVec
	SubgraphLatency    prometheus.Histogram
	LatestBlockLag     prometheus.Gauge
	LastProcessedBlock prometheus.Gauge

	// Price metrics
	PriceRequests   *prometheus.CounterVec
	PriceCacheSize  prometheus.Gauge
	PricesMissing   prometheus.Counter
	RateLimitedTime prometheus.Counter

	// Enrichment metrics
	SwapsEnriched prometheus.Counter
	SwapsSkipped  *prometheus.CounterVec

	// Run metrics
	RunsTotal    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	OutputWrites *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "phoenix_pipeline"
	}

	return &Metrics{
		// Fetch metrics
		SwapsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "swaps_fetched_total",
			Help:      "Total number of swap events fetched from the subgraph",
		}),
		MalformedSwaps: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "malformed_swaps_total",
			Help:      "Total number of swap records dropped during parsing",
		}),
		SubgraphRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "subgraph_requests_total",
			Help:      "Total number of subgraph requests by status",
		}, []string{"status"}),
		SubgraphLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "subgraph_latency_seconds",
			Help:      "Subgraph request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		LatestBlockLag: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "latest_block_lag",
			Help:      "Blocks between the indexer head and last processed block",
		}),
		LastProcessedBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "last_processed_block",
			Help:      "Last block committed to the state store",
		}),

		// Price metrics
		PriceRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "requests_total",
			Help:      "Total number of price API requests by status",
		}, []string{"status"}),
		PriceCacheSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "cache_size",
			Help:      "Number of entries in the price cache",
		}),
		PricesMissing: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "missing_total",
			Help:      "Total number of identifiers priced at zero for lack of data",
		}),
		RateLimitedTime: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "rate_limited_seconds_total",
			Help:      "Total seconds spent waiting on the rate limiter",
		}),

		// Enrichment metrics
		SwapsEnriched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "swaps_enriched_total",
			Help:      "Total number of swaps enriched with USD prices",
		}),
		SwapsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "swaps_skipped_total",
			Help:      "Total number of swaps skipped during enrichment by reason",
		}, []string{"reason"}),

		// Run metrics
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		OutputWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "writes_total",
			Help:      "Total number of artifact writes by result (written, skipped)",
		}, []string{"result"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRun records a completed pipeline run.
func RecordRun(outcome string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.RunDuration.Observe(durationSeconds)
}

// RecordOutputWrite records an artifact write result.
func RecordOutputWrite(written bool) {
	if written {
		DefaultMetrics.OutputWrites.WithLabelValues("written").Inc()
	} else {
		DefaultMetrics.OutputWrites.WithLabelValues("skipped").Inc()
	}
}

// RecordEnrichment records enrichment counts for one run.
func RecordEnrichment(enriched int, skippedByReason map[string]int) {
	DefaultMetrics.SwapsEnriched.Add(float64(enriched))
	for reason, n := range skippedByReason {
		DefaultMetrics.SwapsSkipped.WithLabelValues(reason).Add(float64(n))
	}
}
