// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/authz"
	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/realtime"
	"github.com/tomtom215/parley/internal/store"
)

// Realtime is the slice of the realtime router the HTTP handlers use.
type Realtime interface {
	BroadcastToRoom(roomID string, ev realtime.Outbound)
	SendToPrincipal(principalID string, ev realtime.Outbound) bool
	ActiveParticipants(roomID string) []string
	TypingUsers(roomID string) []realtime.TypingUser
	ConnectedPrincipalCount() int
	ActiveRoomCount() int
	ConnectionCount() int
	PresenceBreakerState() string
}

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers_auth.go: register, login, me
//   - handlers_rooms.go: rooms, members, presence
//   - handlers_messages.go: message history and mutation
//   - handlers_users.go: direct notices and stats
//   - handlers_health.go: liveness and readiness
type Handler struct {
	store      *store.Store
	jwtManager *auth.JWTManager
	authz      *authz.Service
	realtime   Realtime
	config     *config.Config
	startTime  time.Time
	newID      func() string
}

// NewHandler creates the API handler.
func NewHandler(st *store.Store, jwtManager *auth.JWTManager, az *authz.Service, rt Realtime, cfg *config.Config) *Handler {
	return &Handler{
		store:      st,
		jwtManager: jwtManager,
		authz:      az,
		realtime:   rt,
		config:     cfg,
		startTime:  time.Now(),
		newID:      uuid.NewString,
	}
}

// principal returns the caller id stored by auth.RequireAuth.
func principal(r *http.Request) string {
	id, _ := auth.PrincipalID(r.Context())
	return id
}

// respondStoreError maps store and authorization failures to HTTP errors.
func respondStoreError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
	case errors.Is(err, store.ErrUsernameTaken):
		respondError(w, http.StatusConflict, "USERNAME_TAKEN", "Username is already taken", nil)
	case errors.Is(err, store.ErrConflict):
		respondError(w, http.StatusConflict, "CONFLICT", what+" already exists", nil)
	case errors.Is(err, authz.ErrNotMember):
		respondError(w, http.StatusForbidden, "NOT_A_MEMBER", "You are not a member of this room", nil)
	case errors.Is(err, authz.ErrForbidden):
		respondError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", nil)
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", err)
	}
}
