// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/parley/internal/logging"
)

// DefaultSlowThreshold marks a request as slow.
const DefaultSlowThreshold = time.Second

// AccessLog writes one log line per request at debug level, or at warn when
// the request took longer than slow. Hijacked connections are logged when
// the handler returns, which for websockets is the end of the session.
func AccessLog(slow time.Duration) func(http.Handler) http.Handler {
	if slow <= 0 {
		slow = DefaultSlowThreshold
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			log := logging.Ctx(r.Context())
			var event *zerolog.Event
			switch {
			case rec.hijacked:
				event = log.Debug()
			case rec.statusCode >= http.StatusInternalServerError:
				event = log.Error()
			case elapsed > slow:
				event = log.Warn().Dur("threshold", slow)
			default:
				event = log.Debug()
			}
			event.
				Str("method", r.Method).
				Str("route", routePattern(r)).
				Int("status", rec.statusCode).
				Dur("duration", elapsed).
				Bool("hijacked", rec.hijacked).
				Msg("http request")
		})
	}
}
