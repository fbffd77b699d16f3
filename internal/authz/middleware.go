// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package authz

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/models"
)

// RoomIDParam is the chi route parameter carrying the room id.
const RoomIDParam = "roomID"

type roleKey struct{}

// RoleFromContext returns the room role resolved by RequireRoomAction.
func RoleFromContext(ctx context.Context) (models.Role, bool) {
	role, ok := ctx.Value(roleKey{}).(models.Role)
	return role, ok
}

// Middleware enforces room actions on chi routes.
type Middleware struct {
	service *Service
}

// NewMiddleware creates the room authorization middleware.
func NewMiddleware(service *Service) *Middleware {
	return &Middleware{service: service}
}

// RequireRoomAction rejects the request unless the authenticated caller
// belongs to the {roomID} room and their role grants action. The role is
// stored in the request context for handlers that refine the check.
func (m *Middleware) RequireRoomAction(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principalID, ok := auth.PrincipalID(r.Context())
			if !ok {
				writeDenied(w, http.StatusUnauthorized, "AUTH_REQUIRED", "Authentication required")
				return
			}

			role, err := m.service.Require(r.Context(), principalID, chi.URLParam(r, RoomIDParam), action)
			switch {
			case errors.Is(err, ErrNotMember):
				writeDenied(w, http.StatusForbidden, "NOT_A_MEMBER", "You are not a member of this room")
				return
			case errors.Is(err, ErrForbidden):
				writeDenied(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			case err != nil:
				logging.Ctx(r.Context()).Error().Err(err).Str("action", action).Msg("authorization error")
				writeDenied(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleKey{}, role)))
		})
	}
}

func writeDenied(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error:    &models.APIError{Code: code, Message: message},
	})
}
