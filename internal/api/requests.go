// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package api

import (
	"github.com/tomtom215/parley/internal/models"
	"github.com/tomtom215/parley/internal/realtime"
)

// RegisterRequest creates an account.
type RegisterRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=32,username"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"displayName" validate:"required,min=1,max=64"`
	AvatarURL   string `json:"avatarUrl" validate:"omitempty,url,max=512"`
}

// LoginRequest exchanges credentials for a token.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=32"`
	Password string `json:"password" validate:"required,max=72"`
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// CreateRoomRequest creates a room owned by the caller.
type CreateRoomRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// UpdateRoomRequest changes room metadata. Nil fields are left alone.
type UpdateRoomRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// AddMemberRequest adds or re-roles a room member.
type AddMemberRequest struct {
	UserID string `json:"userId" validate:"required,max=64,identifier"`
	Role   string `json:"role" validate:"omitempty,role"`
}

// MessageRequest carries message content for posts and edits.
type MessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

// NotifyRequest is a direct notice to one user.
type NotifyRequest struct {
	Message string `json:"message" validate:"required,min=1,max=1000"`
}

// PresenceResponse describes live activity in a room.
type PresenceResponse struct {
	RoomID       string                `json:"roomId"`
	Participants []string              `json:"participants"`
	Typing       []realtime.TypingUser `json:"typing"`
}

// NotifyResponse reports whether the notice reached a live connection.
type NotifyResponse struct {
	Delivered bool `json:"delivered"`
}

// StatsResponse summarizes live realtime state.
type StatsResponse struct {
	ConnectedUsers int `json:"connectedUsers"`
	Connections    int `json:"connections"`
	ActiveRooms    int `json:"activeRooms"`
}
