// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/models"
	"github.com/tomtom215/parley/internal/store"
)

// dummyHash is compared against when a login names an unknown user so that
// both failure paths cost one bcrypt comparison.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("parley-unknown-user"), bcrypt.DefaultCost)
	if err != nil {
		return nil
	}
	return hash
})

// Register creates an account and returns a token for it.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password, h.config.Security.BcryptCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create account", err)
		return
	}

	user := &models.User{
		ID:           h.newID(),
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		AvatarURL:    req.AvatarURL,
		PasswordHash: hash,
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		respondStoreError(w, err, "User")
		return
	}

	logging.Ctx(r.Context()).Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	h.respondToken(w, r, http.StatusCreated, user)
}

// Login exchanges a username and password for a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), req.Username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		_ = auth.CheckPassword(dummyHash(), req.Password)
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed", err)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		logging.Ctx(r.Context()).Info().Str("username", sanitizeLogValue(req.Username)).Msg("failed login")
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
		return
	}

	h.respondToken(w, r, http.StatusOK, user)
}

func (h *Handler) respondToken(w http.ResponseWriter, r *http.Request, status int, user *models.User) {
	token, expires, err := h.jwtManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token", err)
		return
	}
	respondData(w, r, status, &TokenResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
		User:      user,
	}, nil)
}

// Me returns the caller's account.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUser(r.Context(), principal(r))
	if err != nil {
		respondStoreError(w, err, "User")
		return
	}
	respondData(w, r, http.StatusOK, user, nil)
}
