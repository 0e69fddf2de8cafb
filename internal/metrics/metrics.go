// Package metrics exposes Prometheus collectors for the collection pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channelrank_fetch_attempts_total",
			Help: "Page retrieval attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	rowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channelrank_rows_total",
			Help: "Listing rows processed, labeled by outcome (parsed, skipped).",
		},
		[]string{"outcome"},
	)

	unparsableNumbersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channelrank_unparsable_numbers_total",
			Help: "Numeric cells the normalizer could not interpret, labeled by field.",
		},
		[]string{"field"},
	)

	fallbackResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channelrank_fallback_resolutions_total",
			Help: "Click-and-navigate URL resolutions, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	enrichmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channelrank_enrichments_total",
			Help: "Detail page enrichments, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	upsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channelrank_upserts_total",
			Help: "Store upserts, labeled by collection and outcome.",
		},
		[]string{"collection", "outcome"},
	)

	phaseDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "channelrank_phase_duration_seconds",
			Help:    "Wall time of each pipeline phase.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"phase", "status"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt counts one retrieval attempt.
func ObserveFetchAttempt(outcome string) {
	fetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRow counts one listing row.
func ObserveRow(outcome string) {
	rowsTotal.WithLabelValues(outcome).Inc()
}

// ObserveUnparsable counts a numeric field that normalized to nil.
func ObserveUnparsable(field string) {
	unparsableNumbersTotal.WithLabelValues(field).Inc()
}

// ObserveFallback counts one fallback URL resolution.
func ObserveFallback(outcome string) {
	fallbackResolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveEnrichment counts one enrichment item.
func ObserveEnrichment(outcome string) {
	enrichmentsTotal.WithLabelValues(outcome).Inc()
}

// ObserveUpsert counts one store write.
func ObserveUpsert(collection string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upsertsTotal.WithLabelValues(collection, outcome).Inc()
}

// ObservePhase records the duration of a pipeline phase.
func ObservePhase(phase string, err error, duration time.Duration) {
	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	phaseDurationSeconds.WithLabelValues(phase, status).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
