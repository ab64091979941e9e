// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

// Package metrics holds the Prometheus instruments shared by the sync
// pipeline, the store and the read API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meterline_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB statements in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterline_duckdb_query_errors_total",
			Help: "Total number of failed DuckDB statements",
		},
		[]string{"operation", "table"},
	)

	// Sync
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meterline_sync_duration_seconds",
			Help:    "Duration of one equipment reference sync",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	SyncOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterline_sync_outcomes_total",
			Help: "Per-reference sync outcomes by status",
		},
		[]string{"status"}, // success, partial_failure, fatal
	)

	SyncValuesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meterline_sync_values_written_total",
			Help: "Time-series values upserted by the sync engine",
		},
	)

	SyncChannelFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meterline_sync_channel_failures_total",
			Help: "Channel transactions rolled back during sync",
		},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meterline_sync_last_success_timestamp",
			Help: "Unix timestamp of the last fully successful reference sync",
		},
	)

	// Auth
	AuthHandshakes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterline_auth_handshakes_total",
			Help: "PKCE login handshakes by result",
		},
		[]string{"result"}, // success, failure
	)

	TokenCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterline_auth_token_cache_lookups_total",
			Help: "Bearer token cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)

	// Upstream data API
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meterline_upstream_request_duration_seconds",
			Help:    "Duration of requests to the building-management API",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint", "status_code"},
	)

	// Import
	ImportRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meterline_import_rows_total",
			Help: "Rows read from equipment extracts",
		},
	)

	ImportSkippedAttachments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meterline_import_skipped_attachments_total",
			Help: "Attachment rows skipped because an endpoint is unknown",
		},
	)

	// Read API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterline_api_requests_total",
			Help: "Total number of read API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meterline_api_request_duration_seconds",
			Help:    "Read API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meterline_websocket_clients",
			Help: "Connected sync-outcome stream clients",
		},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meterline_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterline_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meterline_circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterline_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordDBQuery records one store statement.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordSyncOutcome records the result of one reference sync.
func RecordSyncOutcome(status string, duration time.Duration, valuesWritten, failedChannels int) {
	SyncDuration.Observe(duration.Seconds())
	SyncOutcomes.WithLabelValues(status).Inc()
	SyncValuesWritten.Add(float64(valuesWritten))
	SyncChannelFailures.Add(float64(failedChannels))
	if status == "success" {
		SyncLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordAuthHandshake records a login handshake result.
func RecordAuthHandshake(err error) {
	if err != nil {
		AuthHandshakes.WithLabelValues("failure").Inc()
		return
	}
	AuthHandshakes.WithLabelValues("success").Inc()
}

// RecordTokenCacheLookup records a cache hit or miss.
func RecordTokenCacheLookup(hit bool) {
	if hit {
		TokenCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	TokenCacheLookups.WithLabelValues("miss").Inc()
}

// RecordUpstreamRequest records a request to the source API. status 0 means
// the request never got a response.
func RecordUpstreamRequest(endpoint string, status int, duration time.Duration) {
	UpstreamRequestDuration.WithLabelValues(endpoint, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordImport records one extract import.
func RecordImport(rows, skippedAttachments int) {
	ImportRows.Add(float64(rows))
	ImportSkippedAttachments.Add(float64(skippedAttachments))
}

// RecordAPIRequest records a read API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
