package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "swarmkb"

// Catalog Prometheus metrics.
var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Federated query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"strategy", "consistency"},
	)

	QueryTruncatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_truncated_total",
			Help:      "Federated queries that returned a truncated result",
		},
		[]string{"strategy"},
	)

	PeerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "peer_request_duration_seconds",
			Help:      "Peer query latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"peer", "status"},
	)

	EnrichmentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_total",
			Help:      "Metadata enrichment outcomes",
		},
		[]string{"outcome"}, // published / error
	)

	EnrichmentAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_attempts",
			Help:      "Primary write attempts per enrichment task",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
	)

	EnrichmentInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enrichment_in_flight",
			Help:      "Enrichment tasks currently running",
		},
	)

	MirrorDirty = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mirror_dirty_records",
			Help:      "Published records whose mirror row is missing or stale",
		},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Metadata extraction calls to the LLM provider",
		},
		[]string{"model", "status"}, // success / error / invalid_response
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM extraction latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by metadata extraction",
		},
		[]string{"model", "type"}, // prompt / completion
	)
)

var registerOnce sync.Once

// RegisterCatalogMetrics registers catalog metrics. Safe to call more than once.
func RegisterCatalogMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueryDuration,
			QueryTruncatedTotal,
			PeerRequestDuration,
			EnrichmentTotal,
			EnrichmentAttempts,
			EnrichmentInFlight,
			MirrorDirty,
			LLMRequestsTotal,
			LLMRequestDuration,
			LLMTokensTotal,
		)
	})
}

// ObservePeer records one peer round trip.
func ObservePeer(peer string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	PeerRequestDuration.WithLabelValues(peer, status).Observe(d.Seconds())
}

// ObserveQuery records one federated query.
func ObserveQuery(strategy, consistency string, d time.Duration, truncated bool) {
	QueryDuration.WithLabelValues(strategy, consistency).Observe(d.Seconds())
	if truncated {
		QueryTruncatedTotal.WithLabelValues(strategy).Inc()
	}
}
