// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired: no bearer credential on the handshake.
	ErrAuthRequired = errors.New("authentication required")

	// ErrAuthFailed: the credential did not verify.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrUserNotFound: the credential named a principal that no longer exists.
	ErrUserNotFound = errors.New("user not found")

	// ErrAccessDenied: the principal is not a durable member of the room.
	ErrAccessDenied = errors.New("room access denied")

	// ErrInvalidEvent: the inbound frame could not be decoded or validated.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrNotAuthenticated: an event arrived on a session that is not in the
	// authenticated state.
	ErrNotAuthenticated = errors.New("session not authenticated")
)

// handlerPanic wraps a recovered panic so it flows through the normal
// error-to-event path.
type handlerPanic struct {
	value interface{}
}

func (p handlerPanic) Error() string {
	return fmt.Sprintf("handler panic: %v", p.value)
}

// errorEventFor maps a handler error to the scoped error event sent back to
// the originating connection.
func errorEventFor(event EventName, err error) ErrorEvent {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return ErrorEvent{Code: CodeRoomAccessDenied, Message: "You are not a member of this room"}
	case errors.Is(err, ErrInvalidEvent):
		return ErrorEvent{Code: CodeInvalidEvent, Message: err.Error()}
	case errors.Is(err, ErrNotAuthenticated):
		return ErrorEvent{Code: CodeAuthRequired, Message: "Authentication required"}
	default:
		if event == "" {
			return ErrorEvent{Code: CodeInternal, Message: "Internal error"}
		}
		return ErrorEvent{Code: CodeInternal, Message: fmt.Sprintf("Failed to process %s", event)}
	}
}
