// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package middleware provides the HTTP middleware shared by the API router.

Key Components:

  - RequestID: reuses or generates X-Request-ID and stores it for logging
  - PrometheusMetrics: request count, latency and in-flight gauges labeled by
    chi route pattern
  - AccessLog: one structured log line per request, warning above a latency
    threshold
  - Compression: gzip for JSON responses; websocket upgrades pass through

All components are func(http.Handler) http.Handler so they compose with
chi's Use. The shared response wrapper implements http.Hijacker so the
websocket endpoint can sit behind the same stack.
*/
package middleware
