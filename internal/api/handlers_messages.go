// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/parley/internal/authz"
	"github.com/tomtom215/parley/internal/models"
	"github.com/tomtom215/parley/internal/realtime"
	"github.com/tomtom215/parley/internal/store"
)

// defaultMessageLimit applies when ?limit is absent.
const defaultMessageLimit = 50

// ListMessages returns recent messages, oldest first. Requires message:read.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", defaultMessageLimit)
	if limit < 1 || limit > store.MaxListMessages {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and 200", nil)
		return
	}

	msgs, err := h.store.ListMessages(r.Context(), roomID(r), limit)
	if err != nil {
		respondStoreError(w, err, "Room")
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	respondData(w, r, http.StatusOK, msgs, intPtr(len(msgs)))
}

// PostMessage persists a message and announces newMessage to the room.
// Requires message:create.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	msg := &models.Message{
		ID:       h.newID(),
		RoomID:   roomID(r),
		AuthorID: principal(r),
		Content:  req.Content,
	}
	if err := h.store.CreateMessage(r.Context(), msg); err != nil {
		respondStoreError(w, err, "Room")
		return
	}

	h.realtime.BroadcastToRoom(msg.RoomID, realtime.NewMessageEvent{Message: msg})
	respondData(w, r, http.StatusCreated, msg, nil)
}

// EditMessage lets the author change a message and announces
// messageUpdated. Requires message:edit-own.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "messageID")
	existing, err := h.store.GetMessage(r.Context(), roomID(r), id)
	if err != nil {
		respondStoreError(w, err, "Message")
		return
	}
	if existing.AuthorID != principal(r) {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "Only the author can edit a message", nil)
		return
	}

	msg, err := h.store.UpdateMessageContent(r.Context(), existing.RoomID, id, req.Content)
	if err != nil {
		respondStoreError(w, err, "Message")
		return
	}

	h.realtime.BroadcastToRoom(msg.RoomID, realtime.MessageUpdatedEvent{Message: msg})
	respondData(w, r, http.StatusOK, msg, nil)
}

// DeleteMessage removes a message and announces messageDeleted. Authors
// need message:delete-own; anyone else needs message:delete-any.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")
	existing, err := h.store.GetMessage(r.Context(), roomID(r), id)
	if err != nil {
		respondStoreError(w, err, "Message")
		return
	}

	action := authz.ActionMessageDeleteAny
	if existing.AuthorID == principal(r) {
		action = authz.ActionMessageDeleteOwn
	}
	role, _ := authz.RoleFromContext(r.Context())
	if err := h.authz.Check(role, action); err != nil {
		respondStoreError(w, err, "Message")
		return
	}

	if err := h.store.DeleteMessage(r.Context(), existing.RoomID, id); err != nil {
		respondStoreError(w, err, "Message")
		return
	}

	h.realtime.BroadcastToRoom(existing.RoomID, realtime.MessageDeletedEvent{MessageID: id, RoomID: existing.RoomID})
	w.WriteHeader(http.StatusNoContent)
}
