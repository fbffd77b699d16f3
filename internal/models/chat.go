// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package models holds the durable records and HTTP envelopes shared between
// the store, the API handlers and the realtime core.
package models

import "time"

// Role is a principal's durable role within a room.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// Valid reports whether r is one of the known room roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleMember:
		return true
	}
	return false
}

// User is a registered principal.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	PasswordHash []byte    `json:"-"`
	IsOnline     bool      `json:"isOnline"`
	LastSeen     time.Time `json:"lastSeen,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Room is a durable chat room.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Membership is a principal's durable membership in a room.
type Membership struct {
	RoomID   string    `json:"roomId"`
	UserID   string    `json:"userId"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Message is a persisted chat message.
type Message struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"roomId"`
	AuthorID  string     `json:"authorId"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
}

// Principal is the identity bound to a realtime connection.
type Principal struct {
	ID          string `json:"userId"`
	DisplayName string `json:"username"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Principal returns the public identity of u.
func (u *User) Principal() Principal {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	return Principal{ID: u.ID, DisplayName: name, AvatarURL: u.AvatarURL}
}
