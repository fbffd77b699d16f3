// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/models"
)

// TokenQueryParam is the query parameter accepted as a fallback bearer
// credential. Browsers cannot set headers on websocket upgrades.
const TokenQueryParam = "token"

type principalKey struct{}

// ExtractToken returns the bearer token from the Authorization header, or
// from the token query parameter when no header is present.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get(TokenQueryParam))
}

// ContextWithPrincipalID stores the authenticated user id.
func ContextWithPrincipalID(ctx context.Context, id string) context.Context {
	ctx = logging.ContextWithPrincipalID(ctx, id)
	return context.WithValue(ctx, principalKey{}, id)
}

// PrincipalID returns the authenticated user id stored by RequireAuth.
func PrincipalID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalKey{}).(string)
	return id, ok && id != ""
}

// TokenVerifier is satisfied by *JWTManager.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// user id in the request context.
func RequireAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.Verify(ExtractToken(r))
			if err != nil {
				code, msg := "AUTH_FAILED", "Invalid or expired token"
				switch {
				case errors.Is(err, ErrNoCredentials):
					code, msg = "AUTH_REQUIRED", "Authentication required"
				case errors.Is(err, ErrExpiredCredentials):
					code, msg = "AUTH_EXPIRED", "Token has expired"
				}
				writeUnauthorized(w, code, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipalID(r.Context(), id)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="parley"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(&models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error:    &models.APIError{Code: code, Message: message},
	})
}
