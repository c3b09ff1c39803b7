// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for production observability:
// - Bitrix24 REST call latency, errors and pagination volume
// - Dashboard pipeline duration and outcomes
// - Result cache efficiency
// - Streaming delivery volume
// - API endpoint latency and throughput

var (
	// Upstream Bitrix24 REST metrics
	BitrixCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bitrix_call_duration_seconds",
			Help:    "Duration of Bitrix24 REST calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	BitrixCallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitrix_call_errors_total",
			Help: "Total number of failed Bitrix24 REST calls",
		},
		[]string{"method", "error_type"}, // "timeout", "api", "transport", "breaker"
	)

	BitrixPagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitrix_pages_fetched_total",
			Help: "Total number of result pages fetched from Bitrix24",
		},
		[]string{"method"},
	)

	BitrixRecordsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitrix_records_fetched_total",
			Help: "Total number of records fetched from Bitrix24",
		},
		[]string{"method"},
	)

	// Circuit breaker state: 0=closed, 1=half-open, 2=open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Dashboard pipeline metrics
	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dashboard_pipeline_duration_seconds",
			Help:    "Duration of full dashboard pipeline runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_pipeline_runs_total",
			Help: "Total number of dashboard pipeline runs",
		},
		[]string{"outcome"}, // "success", "error"
	)

	PipelineChunkFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_chunk_failures_total",
			Help: "Total number of per-chunk task fetch failures skipped by the pipeline",
		},
	)

	// Result cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_cache_hits_total",
			Help: "Total number of dashboard cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_cache_misses_total",
			Help: "Total number of dashboard cache misses",
		},
	)

	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashboard_cache_entries",
			Help: "Current number of cached dashboard entries",
		},
	)

	// Streaming delivery metrics
	StreamFramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_frames_sent_total",
			Help: "Total number of stream frames sent",
		},
		[]string{"type"}, // "progress", "chunked_start", "chunk", "complete", "error"
	)

	StreamBytesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_bytes_sent_total",
			Help: "Total payload bytes sent over streams",
		},
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)
)

// RecordBitrixCall records a single upstream REST call.
func RecordBitrixCall(method string, duration time.Duration, errorType string) {
	BitrixCallDuration.WithLabelValues(method).Observe(duration.Seconds())
	if errorType != "" {
		BitrixCallErrors.WithLabelValues(method, errorType).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordPipelineRun records a full pipeline run outcome.
func RecordPipelineRun(duration time.Duration, err error) {
	PipelineDuration.Observe(duration.Seconds())
	if err != nil {
		PipelineRuns.WithLabelValues("error").Inc()
	} else {
		PipelineRuns.WithLabelValues("success").Inc()
	}
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
