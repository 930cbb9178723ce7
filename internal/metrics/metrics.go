// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

// Package metrics registers the Prometheus collectors instrumenting
// analysis throughput, signal-source availability, the content-hash
// registry and the HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Analysis pipeline

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truthlens_analysis_duration_seconds",
			Help:    "End-to-end analysis duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"media_kind"},
	)

	AnalysisVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthlens_analysis_verdicts_total",
			Help: "Analyses completed, by media kind and verdict",
		},
		[]string{"media_kind", "verdict"},
	)

	AnalysisErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthlens_analysis_errors_total",
			Help: "Analyses that failed before producing a verdict",
		},
		[]string{"media_kind", "error_type"},
	)

	// Signal sources

	SignalAvailability = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthlens_signal_source_results_total",
			Help: "Per-source signal outcomes (available=true/false)",
		},
		[]string{"source", "available"},
	)

	SignalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truthlens_signal_source_duration_seconds",
			Help:    "Per-source signal collection duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "truthlens_circuit_breaker_state",
			Help: "Circuit breaker state per adapter (0=closed, 1=half-open, 2=open)",
		},
		[]string{"adapter"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthlens_circuit_breaker_trips_total",
			Help: "Circuit breaker transitions to open, per adapter",
		},
		[]string{"adapter"},
	)

	// Content-hash registry

	RegistryInserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthlens_registry_inserts_total",
			Help: "Registry insert attempts by outcome (inserted/duplicate)",
		},
		[]string{"outcome"},
	)

	RegistryConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "truthlens_registry_conflict_retries_total",
			Help: "Badger transaction conflicts retried during registration",
		},
	)

	// Record store

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truthlens_db_query_duration_seconds",
			Help:    "DuckDB query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthlens_db_query_errors_total",
			Help: "DuckDB query errors",
		},
		[]string{"operation"},
	)

	// HTTP surface

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truthlens_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "truthlens_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)

	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "truthlens_upload_bytes",
			Help:    "Size of accepted uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	// WebSocket hub

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "truthlens_ws_connections",
			Help: "Active WebSocket subscribers",
		},
	)

	WSEventsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "truthlens_ws_events_sent_total",
			Help: "Lifecycle events broadcast to WebSocket subscribers",
		},
	)
)

// ObserveAnalysis records one completed analysis.
func ObserveAnalysis(kind, verdict string, start time.Time) {
	AnalysisDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	AnalysisVerdicts.WithLabelValues(kind, verdict).Inc()
}

// ObserveSignal records one signal-source outcome.
func ObserveSignal(source string, available bool, start time.Time) {
	SignalDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	SignalAvailability.WithLabelValues(source, strconv.FormatBool(available)).Inc()
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, status int, start time.Time) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).
		Observe(time.Since(start).Seconds())
}
