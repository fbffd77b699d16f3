// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered on the default registry through promauto and
exposed at /metrics in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

HTTP Metrics:
  - api_requests_total: Total API requests (counter)
    Labels: method, endpoint, status_code
  - api_request_duration_seconds: Request latency (histogram)
  - api_active_requests: In-flight requests (gauge)
  - api_rate_limit_hits_total: Rate limit rejections (counter)

Store Metrics:
  - store_operation_duration_seconds, store_operation_errors_total
  - store_value_log_gc_runs_total (label: result)

Realtime Metrics:
  - realtime_connected_principals, realtime_active_rooms (gauges)
  - realtime_events_received_total, realtime_events_sent_total,
    realtime_events_undeliverable_total (label: event)
  - realtime_handler_errors_total, realtime_auth_failures_total (label: code)
  - realtime_typing_expired_total, realtime_presence_write_failures_total

WebSocket Metrics:
  - websocket_connections, websocket_messages_sent_total,
    websocket_messages_received_total, websocket_errors_total

Circuit Breaker Metrics:
  - circuit_breaker_state (0=closed, 1=half-open, 2=open)
  - circuit_breaker_state_transitions_total
*/
package metrics
