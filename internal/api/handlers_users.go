// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/realtime"
)

// Notify sends a direct notice to a user's most recent connection. The
// caller must hold user:notify in a room the target belongs to.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	targetID := chi.URLParam(r, "userID")
	if _, err := h.store.GetUser(r.Context(), targetID); err != nil {
		respondStoreError(w, err, "User")
		return
	}

	actorID := principal(r)
	if err := h.authz.RequireNotify(r.Context(), actorID, targetID); err != nil {
		respondStoreError(w, err, "User")
		return
	}

	actor, err := h.store.GetPrincipal(r.Context(), actorID)
	if err != nil {
		respondStoreError(w, err, "User")
		return
	}

	delivered := h.realtime.SendToPrincipal(targetID, realtime.NotificationEvent{
		FromUserID:   actor.ID,
		FromUsername: actor.DisplayName,
		Message:      req.Message,
		SentAt:       time.Now().UTC(),
	})
	logging.Ctx(r.Context()).Debug().
		Str("target_id", targetID).
		Bool("delivered", delivered).
		Msg("direct notice")
	respondData(w, r, http.StatusOK, &NotifyResponse{Delivered: delivered}, nil)
}

// Stats reports live realtime counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, &StatsResponse{
		ConnectedUsers: h.realtime.ConnectedPrincipalCount(),
		Connections:    h.realtime.ConnectionCount(),
		ActiveRooms:    h.realtime.ActiveRoomCount(),
	}, nil)
}
