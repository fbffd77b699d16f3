// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/parley/internal/models"
)

// fakeConn records every event it is sent.
type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Outbound
	closed bool
	full   bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(ev Outbound) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) all() []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Outbound, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

func (c *fakeConn) names() []EventName {
	evs := c.all()
	names := make([]EventName, len(evs))
	for i, ev := range evs {
		names[i] = ev.Name()
	}
	return names
}

func (c *fakeConn) count(name EventName) int {
	n := 0
	for _, ev := range c.all() {
		if ev.Name() == name {
			n++
		}
	}
	return n
}

func (c *fakeConn) lastError(t *testing.T) ErrorEvent {
	t.Helper()
	evs := c.all()
	for i := len(evs) - 1; i >= 0; i-- {
		if e, ok := evs[i].(ErrorEvent); ok {
			return e
		}
	}
	t.Fatalf("conn %s received no error event; got %v", c.id, c.names())
	return ErrorEvent{}
}

// fakeDirectory is an in-memory Directory.
type fakeDirectory struct {
	mu          sync.Mutex
	principals  map[string]models.Principal
	members     map[string]map[string]models.Role // room -> user -> role
	online      map[string]bool
	setOnlineN  int
	setErr      error
	lookupErr   error
	memberPanic bool
	memberDelay time.Duration
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		principals: make(map[string]models.Principal),
		members:    make(map[string]map[string]models.Role),
		online:     make(map[string]bool),
	}
}

func (d *fakeDirectory) addUser(id, name string) models.Principal {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := models.Principal{ID: id, DisplayName: name}
	d.principals[id] = p
	return p
}

func (d *fakeDirectory) addMember(roomID, userID string, role models.Role) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[roomID]
	if !ok {
		m = make(map[string]models.Role)
		d.members[roomID] = m
	}
	m[userID] = role
}

func (d *fakeDirectory) isOnline(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online[id]
}

func (d *fakeDirectory) IsMember(_ context.Context, principalID, roomID string) (models.Role, bool, error) {
	d.mu.Lock()
	panicNow, delay, lookupErr := d.memberPanic, d.memberDelay, d.lookupErr
	role, ok := d.members[roomID][principalID]
	d.mu.Unlock()

	if panicNow {
		panic("membership index corrupted")
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if lookupErr != nil {
		return "", false, lookupErr
	}
	return role, ok, nil
}

func (d *fakeDirectory) RoomsOf(_ context.Context, principalID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var rooms []string
	for roomID, m := range d.members {
		if _, ok := m[principalID]; ok {
			rooms = append(rooms, roomID)
		}
	}
	sort.Strings(rooms)
	return rooms, nil
}

func (d *fakeDirectory) SetOnline(_ context.Context, principalID string, online bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setOnlineN++
	if d.setErr != nil {
		return d.setErr
	}
	d.online[principalID] = online
	return nil
}

func (d *fakeDirectory) GetPrincipal(_ context.Context, principalID string) (*models.Principal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lookupErr != nil {
		return nil, d.lookupErr
	}
	p, ok := d.principals[principalID]
	if !ok {
		return nil, fmt.Errorf("principal %s: %w", principalID, models.ErrNotFound)
	}
	return &p, nil
}

// fakeVerifier treats "token-<id>" as a valid credential for <id>.
type fakeVerifier struct{}

var errBadToken = errors.New("bad token")

func (fakeVerifier) Verify(token string) (string, error) {
	const prefix = "token-"
	if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
		return "", errBadToken
	}
	return token[len(prefix):], nil
}

func quietLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func newTestRouter(t *testing.T, dir *fakeDirectory, typingTimeout time.Duration) *Router {
	t.Helper()
	return NewRouter(dir, fakeVerifier{}, Options{
		TypingTimeout: typingTimeout,
		Breaker:       BreakerConfig{FailureThreshold: 3, Timeout: time.Minute},
		Logger:        quietLogger(),
	})
}

func mustConnect(t *testing.T, r *Router, connID, userID string) (*Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn(connID)
	s, err := r.Connect(context.Background(), conn, "token-"+userID)
	if err != nil {
		t.Fatalf("Connect(%s) error = %v", userID, err)
	}
	return s, conn
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
