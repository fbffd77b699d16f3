// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/realtime"
)

// Handler upgrades HTTP requests to websocket sessions bound to a realtime
// router. Authentication happens after the upgrade so failures can be
// reported as an error event before the connection is closed.
type Handler struct {
	hub      *Hub
	router   *realtime.Router
	cfg      Config
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler creates the /ws handler.
func NewHandler(hub *Hub, router *realtime.Router, cfg Config) *Handler {
	h := &Handler{
		hub:    hub,
		router: router,
		cfg:    cfg.withDefaults(),
		log:    logging.WithComponent("websocket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// ServeHTTP upgrades the connection, authenticates it with the bearer
// token from the handshake, and then serves the session until it ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractToken(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.WSErrors.WithLabelValues("upgrade").Inc()
		h.log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := NewClient(h.hub, conn, h.cfg, h.log)
	if !h.hub.register(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.cfg.WriteWait))
		_ = conn.Close()
		return
	}
	go client.writePump()

	ctx := r.Context()
	session, err := h.router.Connect(ctx, client, token)
	if err != nil {
		// The router already queued the error event and closed the client;
		// the write pump flushes it.
		h.hub.unregister(client)
		return
	}

	// Serving on the handler goroutine keeps the request context alive for
	// the life of the session.
	client.readPump(ctx, h.router, session)
}

// checkOrigin validates websocket connection origins against the CORS list.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Legitimate browser websockets always send Origin; allowing an empty
	// one would bypass CORS entirely.
	if origin == "" {
		h.log.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}

	h.log.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters and bounds length to keep
// client-supplied values from forging log lines.
func sanitizeLogValue(s string) string {
	const maxLen = 200
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
