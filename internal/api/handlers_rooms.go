// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/parley/internal/authz"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/models"
	"github.com/tomtom215/parley/internal/realtime"
)

func roomID(r *http.Request) string {
	return chi.URLParam(r, authz.RoomIDParam)
}

// CreateRoom creates a room; the caller becomes its admin.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	room := &models.Room{
		ID:          h.newID(),
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   principal(r),
	}
	if err := h.store.CreateRoom(r.Context(), room); err != nil {
		respondStoreError(w, err, "Room")
		return
	}

	logging.Ctx(r.Context()).Info().Str("room_id", room.ID).Msg("room created")
	respondData(w, r, http.StatusCreated, room, nil)
}

// ListRooms lists the caller's durable rooms.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.store.ListRooms(r.Context(), principal(r))
	if err != nil {
		respondStoreError(w, err, "Room")
		return
	}
	if rooms == nil {
		rooms = []*models.Room{}
	}
	respondData(w, r, http.StatusOK, rooms, intPtr(len(rooms)))
}

// GetRoom returns one room. Requires message:read.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.store.GetRoom(r.Context(), roomID(r))
	if err != nil {
		respondStoreError(w, err, "Room")
		return
	}
	respondData(w, r, http.StatusOK, room, nil)
}

// UpdateRoom changes name or description and announces roomUpdated.
// Requires room:update.
func (h *Handler) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoomRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.Name == nil && req.Description == nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Nothing to update", nil)
		return
	}

	room, err := h.store.UpdateRoom(r.Context(), roomID(r), func(room *models.Room) {
		if req.Name != nil {
			room.Name = *req.Name
		}
		if req.Description != nil {
			room.Description = *req.Description
		}
	})
	if err != nil {
		respondStoreError(w, err, "Room")
		return
	}

	h.realtime.BroadcastToRoom(room.ID, realtime.RoomUpdatedEvent{Room: room})
	respondData(w, r, http.StatusOK, room, nil)
}

// ListMembers lists durable memberships. Requires message:read.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.ListMembers(r.Context(), roomID(r))
	if err != nil {
		respondStoreError(w, err, "Room")
		return
	}
	if members == nil {
		members = []*models.Membership{}
	}
	respondData(w, r, http.StatusOK, members, intPtr(len(members)))
}

// AddMember adds a user to the room or changes their role. Requires
// member:add; granting or changing an admin additionally requires
// member:grant-admin.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	role := models.Role(req.Role)
	if role == "" {
		role = models.RoleMember
	}

	callerRole, _ := authz.RoleFromContext(r.Context())
	existing, _, err := h.store.IsMember(r.Context(), req.UserID, roomID(r))
	if err != nil {
		respondStoreError(w, err, "Membership")
		return
	}
	if role == models.RoleAdmin || existing == models.RoleAdmin {
		if err := h.authz.Check(callerRole, authz.ActionMemberGrantAdmin); err != nil {
			respondStoreError(w, err, "Membership")
			return
		}
	}

	m, err := h.store.AddMember(r.Context(), roomID(r), req.UserID, role)
	if err != nil {
		respondStoreError(w, err, "User")
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("room_id", m.RoomID).
		Str("member_id", m.UserID).
		Str("role", string(m.Role)).
		Msg("member added")
	respondData(w, r, http.StatusCreated, m, nil)
}

// Presence reports live participants and typing users. Requires
// presence:read.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	id := roomID(r)
	participants := h.realtime.ActiveParticipants(id)
	if participants == nil {
		participants = []string{}
	}
	typing := h.realtime.TypingUsers(id)
	if typing == nil {
		typing = []realtime.TypingUser{}
	}
	respondData(w, r, http.StatusOK, &PresenceResponse{
		RoomID:       id,
		Participants: participants,
		Typing:       typing,
	}, nil)
}
