// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	// API Endpoint Metrics
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
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"operation"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operation_errors_total",
			Help: "Total number of failed store operations",
		},
		[]string{"operation"},
	)

	StoreGCRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_value_log_gc_runs_total",
			Help: "Total number of value log GC passes",
		},
		[]string{"result"}, // "rewritten", "noop", "error"
	)

	// WebSocket Transport Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of open WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket frames written",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket frames read",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"}, // "upgrade", "read", "write", "buffer_full", "rate_limited"
	)

	// Realtime Core Metrics
	RealtimeConnectedPrincipals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connected_principals",
			Help: "Distinct principals with at least one live connection",
		},
	)

	RealtimeActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_active_rooms",
			Help: "Rooms with at least one live participant",
		},
	)

	RealtimeEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_received_total",
			Help: "Inbound events handled, by event name",
		},
		[]string{"event"},
	)

	RealtimeEventsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_sent_total",
			Help: "Outbound events queued for delivery, by event name",
		},
		[]string{"event"},
	)

	RealtimeUndeliverable = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_undeliverable_total",
			Help: "Outbound events dropped because the target was gone or saturated",
		},
		[]string{"event"},
	)

	RealtimeHandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_handler_errors_total",
			Help: "Scoped error events sent to clients, by error code",
		},
		[]string{"code"},
	)

	RealtimeAuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_auth_failures_total",
			Help: "Rejected connection handshakes, by error code",
		},
		[]string{"code"},
	)

	RealtimeTypingExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_typing_expired_total",
			Help: "Typing indicators cleared by timeout",
		},
	)

	RealtimePresenceWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_presence_write_failures_total",
			Help: "Presence flag writes that failed or were short-circuited",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordStoreOp records the duration and outcome of one store operation.
func RecordStoreOp(operation string, start time.Time, err error) {
	StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(operation).Inc()
	}
}

// RecordBreakerTransition updates the state gauge and transition counter.
func RecordBreakerTransition(name string, from, to gobreaker.State) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
}
