// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package realtime

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/models"
)

// AuthorizeFunc answers the durable membership question for a join. It is
// called before any lock is taken.
type AuthorizeFunc func(ctx context.Context) (role models.Role, ok bool, err error)

// activeRoom is the in-memory state of a room with at least one live
// participant. participants maps connection id to principal id.
type activeRoom struct {
	mu           sync.Mutex
	participants map[string]string
	typing       map[string]*typingEntry
}

// Tracker is the in-memory view of which live connections are in which
// rooms. The top-level mutex guards the room index and the per-connection
// room sets; each activeRoom has its own mutex for participants and typing
// entries. Lock order is always Tracker.mu then activeRoom.mu.
type Tracker struct {
	mu        sync.RWMutex
	rooms     map[string]*activeRoom
	connRooms map[string]map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		rooms:     make(map[string]*activeRoom),
		connRooms: make(map[string]map[string]struct{}),
	}
}

// Join authorizes and adds connID to roomID. It returns the durable role and
// whether this call added the connection; joining twice is not an error but
// reports added=false. On denial nothing changes and ErrAccessDenied is
// returned.
func (t *Tracker) Join(ctx context.Context, connID, principalID, roomID string, authorize AuthorizeFunc) (models.Role, bool, error) {
	role, ok, err := authorize(ctx)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, ErrAccessDenied
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	room, exists := t.rooms[roomID]
	if !exists {
		room = &activeRoom{
			participants: make(map[string]string),
			typing:       make(map[string]*typingEntry),
		}
		t.rooms[roomID] = room
		metrics.RealtimeActiveRooms.Set(float64(len(t.rooms)))
	}

	room.mu.Lock()
	_, already := room.participants[connID]
	room.participants[connID] = principalID
	room.mu.Unlock()

	joined, ok := t.connRooms[connID]
	if !ok {
		joined = make(map[string]struct{})
		t.connRooms[connID] = joined
	}
	joined[roomID] = struct{}{}

	return role, !already, nil
}

// Leave removes connID from roomID, cancelling its typing entry there. An
// emptied room is evicted. It reports whether the connection was present.
func (t *Tracker) Leave(connID, roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaveLocked(connID, roomID)
}

func (t *Tracker) leaveLocked(connID, roomID string) bool {
	joined := t.connRooms[connID]
	if _, ok := joined[roomID]; !ok {
		return false
	}
	delete(joined, roomID)
	if len(joined) == 0 {
		delete(t.connRooms, connID)
	}

	room, ok := t.rooms[roomID]
	if !ok {
		return true
	}
	room.mu.Lock()
	delete(room.participants, connID)
	if e, ok := room.typing[connID]; ok {
		e.cancel()
		delete(room.typing, connID)
	}
	empty := len(room.participants) == 0
	if empty {
		for id, e := range room.typing {
			e.cancel()
			delete(room.typing, id)
		}
	}
	room.mu.Unlock()

	if empty {
		delete(t.rooms, roomID)
		metrics.RealtimeActiveRooms.Set(float64(len(t.rooms)))
	}
	return true
}

// CleanupConnection removes connID from every room it joined and returns
// those rooms in sorted order.
func (t *Tracker) CleanupConnection(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	rooms := sortedKeys(t.connRooms[connID])
	for _, roomID := range rooms {
		t.leaveLocked(connID, roomID)
	}
	return rooms
}

// RoomsOf returns the rooms connID has joined, sorted.
func (t *Tracker) RoomsOf(connID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.connRooms[connID])
}

// IsJoined reports whether connID is a live participant of roomID.
func (t *Tracker) IsJoined(connID, roomID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.connRooms[connID][roomID]
	return ok
}

// ParticipantsOf returns the connection ids in roomID, sorted. An inactive
// room has none.
func (t *Tracker) ParticipantsOf(roomID string) []string {
	t.mu.RLock()
	room, ok := t.rooms[roomID]
	if !ok {
		t.mu.RUnlock()
		return nil
	}
	room.mu.Lock()
	ids := make([]string, 0, len(room.participants))
	for id := range room.participants {
		ids = append(ids, id)
	}
	room.mu.Unlock()
	t.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// PrincipalsOf returns the distinct principal ids live in roomID, sorted.
func (t *Tracker) PrincipalsOf(roomID string) []string {
	t.mu.RLock()
	room, ok := t.rooms[roomID]
	if !ok {
		t.mu.RUnlock()
		return nil
	}
	room.mu.Lock()
	seen := make(map[string]struct{}, len(room.participants))
	for _, pid := range room.participants {
		seen[pid] = struct{}{}
	}
	room.mu.Unlock()
	t.mu.RUnlock()

	return sortedKeys(seen)
}

// ActiveRoomCount is the number of rooms with live participants.
func (t *Tracker) ActiveRoomCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}

// withRoom runs fn with the room locked. It returns false when the room is
// not active. The top-level read lock is held for the duration so the room
// cannot be evicted underneath fn.
func (t *Tracker) withRoom(roomID string, fn func(*activeRoom)) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	room, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	fn(room)
	return true
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
