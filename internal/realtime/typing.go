// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package realtime

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/models"
)

// DefaultTypingTimeout clears a typing flag that is not refreshed or stopped.
const DefaultTypingTimeout = 10 * time.Second

// typingEntry is one (room, connection) typing flag. gen identifies the
// arming that created it; an expiry carrying an older gen is ignored.
type typingEntry struct {
	principal models.Principal
	gen       uint64
	timer     *time.Timer
}

func (e *typingEntry) cancel() {
	if e.timer != nil {
		e.timer.Stop()
	}
}

// TypingUser is one entry of TypingUsersOf.
type TypingUser struct {
	PrincipalID string `json:"userId"`
	DisplayName string `json:"username"`
}

// ExpireFunc is called, outside any lock, when a typing flag times out.
type ExpireFunc func(connID, roomID string, principal models.Principal)

// TypingManager keeps per-room, per-connection typing flags inside the
// tracker's active rooms. All mutations for a room run under that room's
// mutex, so start, stop and expiry of a pair never interleave.
type TypingManager struct {
	tracker  *Tracker
	timeout  time.Duration
	gen      atomic.Uint64
	onExpire ExpireFunc
}

// NewTypingManager creates a manager over tracker. A zero timeout uses
// DefaultTypingTimeout.
func NewTypingManager(tracker *Tracker, timeout time.Duration, onExpire ExpireFunc) *TypingManager {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingManager{tracker: tracker, timeout: timeout, onExpire: onExpire}
}

// Start sets or refreshes the typing flag of connID in roomID and re-arms
// its expiry. It returns false, changing nothing, when connID has not
// joined roomID.
func (m *TypingManager) Start(connID, roomID string, principal models.Principal) bool {
	started := false
	m.tracker.withRoom(roomID, func(room *activeRoom) {
		if _, ok := room.participants[connID]; !ok {
			return
		}
		if prev, ok := room.typing[connID]; ok {
			prev.cancel()
		}
		gen := m.gen.Add(1)
		e := &typingEntry{principal: principal, gen: gen}
		e.timer = time.AfterFunc(m.timeout, func() {
			m.expire(connID, roomID, gen)
		})
		room.typing[connID] = e
		started = true
	})
	return started
}

// Stop clears the typing flag of connID in roomID. It returns the principal
// and true only when a flag existed, so racing stops and expiries produce
// one notice between them.
func (m *TypingManager) Stop(connID, roomID string) (models.Principal, bool) {
	var (
		principal models.Principal
		stopped   bool
	)
	m.tracker.withRoom(roomID, func(room *activeRoom) {
		e, ok := room.typing[connID]
		if !ok {
			return
		}
		e.cancel()
		delete(room.typing, connID)
		principal, stopped = e.principal, true
	})
	return principal, stopped
}

func (m *TypingManager) expire(connID, roomID string, gen uint64) {
	var (
		principal models.Principal
		fired     bool
	)
	m.tracker.withRoom(roomID, func(room *activeRoom) {
		e, ok := room.typing[connID]
		if !ok || e.gen != gen {
			return
		}
		delete(room.typing, connID)
		principal, fired = e.principal, true
	})
	if !fired {
		return
	}
	metrics.RealtimeTypingExpired.Inc()
	if m.onExpire != nil {
		m.onExpire(connID, roomID, principal)
	}
}

// IsTyping reports whether connID has a live typing flag in roomID.
func (m *TypingManager) IsTyping(connID, roomID string) bool {
	typing := false
	m.tracker.withRoom(roomID, func(room *activeRoom) {
		_, typing = room.typing[connID]
	})
	return typing
}

// UsersOf lists the principals typing in roomID, one entry per principal,
// sorted by principal id.
func (m *TypingManager) UsersOf(roomID string) []TypingUser {
	var users []TypingUser
	m.tracker.withRoom(roomID, func(room *activeRoom) {
		seen := make(map[string]struct{}, len(room.typing))
		for _, e := range room.typing {
			if _, dup := seen[e.principal.ID]; dup {
				continue
			}
			seen[e.principal.ID] = struct{}{}
			users = append(users, TypingUser{PrincipalID: e.principal.ID, DisplayName: e.principal.DisplayName})
		}
	})
	sort.Slice(users, func(i, j int) bool { return users[i].PrincipalID < users[j].PrincipalID })
	return users
}
