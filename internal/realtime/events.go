// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package realtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/parley/internal/models"
	"github.com/tomtom215/parley/internal/validation"
)

// EventName is the wire name of an event.
type EventName string

// Inbound events (client -> server).
const (
	EventJoinRoom       EventName = "joinRoom"
	EventLeaveRoom      EventName = "leaveRoom"
	EventStartTyping    EventName = "startTyping"
	EventStopTyping     EventName = "stopTyping"
	EventUpdatePresence EventName = "updatePresence"
)

// Outbound events (server -> client).
const (
	EventError             EventName = "error"
	EventUserJoinedRoom    EventName = "userJoinedRoom"
	EventUserLeftRoom      EventName = "userLeftRoom"
	EventUserTyping        EventName = "userTyping"
	EventUserStoppedTyping EventName = "userStoppedTyping"
	EventUserOnline        EventName = "userOnline"
	EventUserOffline       EventName = "userOffline"
	EventNewMessage        EventName = "newMessage"
	EventMessageUpdated    EventName = "messageUpdated"
	EventMessageDeleted    EventName = "messageDeleted"
	EventRoomUpdated       EventName = "roomUpdated"
	EventNotification      EventName = "notification"
)

// ErrorCode classifies an error event. AUTH_* codes mean the client must
// re-authenticate; ROOM_ACCESS_DENIED means it is not a member; anything
// else is transient.
type ErrorCode string

const (
	CodeAuthRequired     ErrorCode = "AUTH_REQUIRED"
	CodeAuthFailed       ErrorCode = "AUTH_FAILED"
	CodeUserNotFound     ErrorCode = "USER_NOT_FOUND"
	CodeRoomAccessDenied ErrorCode = "ROOM_ACCESS_DENIED"
	CodeInvalidEvent     ErrorCode = "INVALID_EVENT"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// Terminal reports whether the code ends the connection.
func (c ErrorCode) Terminal() bool {
	return strings.HasPrefix(string(c), "AUTH_") || c == CodeUserNotFound
}

// PresenceStatus is the status carried by updatePresence.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

// Frame is the JSON envelope for every event on the wire.
//
//	{"event":"joinRoom","data":{"roomId":"..."}}
type Frame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is a decoded client event. The set is closed: only the types in
// this file implement it.
type Inbound interface {
	Name() EventName
	inbound()
}

// JoinRoom asks to enter a room's live participant set.
type JoinRoom struct {
	RoomID string `json:"roomId" validate:"required,max=64,identifier"`
}

// LeaveRoom asks to leave a room's live participant set.
type LeaveRoom struct {
	RoomID string `json:"roomId" validate:"required,max=64,identifier"`
}

// StartTyping marks the sender as composing in a room.
type StartTyping struct {
	RoomID string `json:"roomId" validate:"required,max=64,identifier"`
}

// StopTyping clears the sender's typing flag in a room.
type StopTyping struct {
	RoomID string `json:"roomId" validate:"required,max=64,identifier"`
}

// UpdatePresence changes the sender's presence status.
type UpdatePresence struct {
	Status PresenceStatus `json:"status" validate:"required,oneof=online away offline"`
}

func (JoinRoom) Name() EventName       { return EventJoinRoom }
func (LeaveRoom) Name() EventName      { return EventLeaveRoom }
func (StartTyping) Name() EventName    { return EventStartTyping }
func (StopTyping) Name() EventName     { return EventStopTyping }
func (UpdatePresence) Name() EventName { return EventUpdatePresence }

func (JoinRoom) inbound()       {}
func (LeaveRoom) inbound()      {}
func (StartTyping) inbound()    {}
func (StopTyping) inbound()     {}
func (UpdatePresence) inbound() {}

// DecodeInbound parses a wire frame into its typed inbound event.
func DecodeInbound(raw []byte) (Inbound, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: malformed frame: %v", ErrInvalidEvent, err)
	}

	var ev Inbound
	switch f.Event {
	case EventJoinRoom:
		var p JoinRoom
		if err := decodeData(f.Data, &p); err != nil {
			return nil, err
		}
		ev = p
	case EventLeaveRoom:
		var p LeaveRoom
		if err := decodeData(f.Data, &p); err != nil {
			return nil, err
		}
		ev = p
	case EventStartTyping:
		var p StartTyping
		if err := decodeData(f.Data, &p); err != nil {
			return nil, err
		}
		ev = p
	case EventStopTyping:
		var p StopTyping
		if err := decodeData(f.Data, &p); err != nil {
			return nil, err
		}
		ev = p
	case EventUpdatePresence:
		var p UpdatePresence
		if err := decodeData(f.Data, &p); err != nil {
			return nil, err
		}
		ev = p
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidEvent, f.Event)
	}

	if verr := validation.ValidateStruct(ev); verr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, verr)
	}
	return ev, nil
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidEvent)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: bad payload: %v", ErrInvalidEvent, err)
	}
	return nil
}

// Outbound is an event sent to one or more connections. The set is closed.
type Outbound interface {
	Name() EventName
	outbound()
}

// ErrorEvent reports a failure to the originating connection only.
type ErrorEvent struct {
	Message string    `json:"message"`
	Code    ErrorCode `json:"code,omitempty"`
}

// RoomUserEvent is the payload of userJoinedRoom and userLeftRoom.
type RoomUserEvent struct {
	Event     EventName   `json:"-"`
	UserID    string      `json:"userId"`
	Username  string      `json:"username"`
	AvatarURL string      `json:"avatarUrl,omitempty"`
	RoomID    string      `json:"roomId"`
	Role      models.Role `json:"role"`
}

// TypingEvent is the payload of userTyping and userStoppedTyping.
type TypingEvent struct {
	Event    EventName `json:"-"`
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	RoomID   string    `json:"roomId"`
}

// PresenceEvent is the payload of userOnline and userOffline.
type PresenceEvent struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	RoomID    string `json:"roomId"`
	IsOnline  bool   `json:"isOnline"`
}

// NewMessageEvent announces a persisted message.
type NewMessageEvent struct {
	*models.Message
}

// MessageUpdatedEvent announces an edited message.
type MessageUpdatedEvent struct {
	*models.Message
}

// MessageDeletedEvent announces a deleted message.
type MessageDeletedEvent struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// RoomUpdatedEvent announces changed room metadata.
type RoomUpdatedEvent struct {
	*models.Room
}

// NotificationEvent is a direct notice addressed to one principal.
type NotificationEvent struct {
	FromUserID   string    `json:"fromUserId"`
	FromUsername string    `json:"fromUsername"`
	Message      string    `json:"message"`
	SentAt       time.Time `json:"sentAt"`
}

func (ErrorEvent) Name() EventName          { return EventError }
func (e RoomUserEvent) Name() EventName     { return e.Event }
func (e TypingEvent) Name() EventName       { return e.Event }
func (NewMessageEvent) Name() EventName     { return EventNewMessage }
func (MessageUpdatedEvent) Name() EventName { return EventMessageUpdated }
func (MessageDeletedEvent) Name() EventName { return EventMessageDeleted }
func (RoomUpdatedEvent) Name() EventName    { return EventRoomUpdated }
func (NotificationEvent) Name() EventName   { return EventNotification }

// Name is userOnline or userOffline depending on IsOnline.
func (e PresenceEvent) Name() EventName {
	if e.IsOnline {
		return EventUserOnline
	}
	return EventUserOffline
}

func (ErrorEvent) outbound()          {}
func (RoomUserEvent) outbound()       {}
func (TypingEvent) outbound()         {}
func (PresenceEvent) outbound()       {}
func (NewMessageEvent) outbound()     {}
func (MessageUpdatedEvent) outbound() {}
func (MessageDeletedEvent) outbound() {}
func (RoomUpdatedEvent) outbound()    {}
func (NotificationEvent) outbound()   {}

func joinedEvent(p models.Principal, roomID string, role models.Role) RoomUserEvent {
	return RoomUserEvent{Event: EventUserJoinedRoom, UserID: p.ID, Username: p.DisplayName, AvatarURL: p.AvatarURL, RoomID: roomID, Role: role}
}

// leftEvent always reports RoleMember; the departing role is not looked up.
func leftEvent(p models.Principal, roomID string) RoomUserEvent {
	return RoomUserEvent{Event: EventUserLeftRoom, UserID: p.ID, Username: p.DisplayName, AvatarURL: p.AvatarURL, RoomID: roomID, Role: models.RoleMember}
}

func typingEvent(name EventName, p models.Principal, roomID string) TypingEvent {
	return TypingEvent{Event: name, UserID: p.ID, Username: p.DisplayName, RoomID: roomID}
}

// EncodeOutbound renders an outbound event as a wire frame.
func EncodeOutbound(ev Outbound) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Name(), err)
	}
	return json.Marshal(Frame{Event: ev.Name(), Data: data})
}
