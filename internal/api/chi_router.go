// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/authz"
	"github.com/tomtom215/parley/internal/middleware"
)

// Router wires handlers, middleware and the websocket endpoint.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	roomAuthz     *authz.Middleware
	verifier      auth.TokenVerifier
	ws            http.Handler
}

// NewRouter creates the HTTP router. ws serves GET /ws.
func NewRouter(handler *Handler, chiMW *ChiMiddleware, roomAuthz *authz.Middleware, verifier auth.TokenVerifier, ws http.Handler) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: chiMW,
		roomAuthz:     roomAuthz,
		verifier:      verifier,
		ws:            ws,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global middleware, in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog(middleware.DefaultSlowThreshold))
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// Health and metrics
	r.Route("/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket: authentication happens inside the session so failures can
	// be reported as an error event.
	r.With(router.chiMiddleware.RateLimitWebSocket()).Get("/ws", router.ws.ServeHTTP)

	// Authentication
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitAuth())
		r.Use(APISecurityHeaders())
		r.Use(middleware.Compression)
		r.Post("/register", router.handler.Register)
		r.With(router.chiMiddleware.RateLimitLogin()).Post("/login", router.handler.Login)
	})

	// Authenticated API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.Compression)
		r.Use(auth.RequireAuth(router.verifier))

		r.Get("/me", router.handler.Me)
		r.Get("/stats", router.handler.Stats)

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", router.handler.ListRooms)
			r.With(router.chiMiddleware.RateLimitWrite()).Post("/", router.handler.CreateRoom)

			r.Route("/{roomID}", func(r chi.Router) {
				can := router.roomAuthz.RequireRoomAction

				r.With(can(authz.ActionMessageRead)).Get("/", router.handler.GetRoom)
				r.With(can(authz.ActionRoomUpdate)).Patch("/", router.handler.UpdateRoom)
				r.With(can(authz.ActionMessageRead)).Get("/members", router.handler.ListMembers)
				r.With(can(authz.ActionMemberAdd)).Post("/members", router.handler.AddMember)
				r.With(can(authz.ActionPresenceRead)).Get("/presence", router.handler.Presence)

				r.With(can(authz.ActionMessageRead)).Get("/messages", router.handler.ListMessages)
				r.With(can(authz.ActionMessageCreate), router.chiMiddleware.RateLimitWrite()).
					Post("/messages", router.handler.PostMessage)
				r.With(can(authz.ActionMessageEditOwn)).Patch("/messages/{messageID}", router.handler.EditMessage)
				// Author versus moderator is decided in the handler.
				r.With(can(authz.ActionMessageRead)).Delete("/messages/{messageID}", router.handler.DeleteMessage)
			})
		})

		r.With(router.chiMiddleware.RateLimitWrite()).Post("/users/{userID}/notify", router.handler.Notify)
	})

	return r
}
