// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/parley/internal/models"
)

type fanoutRecorder struct {
	mu     sync.Mutex
	events map[string][]Outbound
}

func (f *fanoutRecorder) fanout(roomID string, ev Outbound) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events == nil {
		f.events = make(map[string][]Outbound)
	}
	f.events[roomID] = append(f.events[roomID], ev)
}

func TestPresence_AnnounceToDurableRooms(t *testing.T) {
	dir := newFakeDirectory()
	dir.addMember("r1", "alice", models.RoleMember)
	dir.addMember("r2", "alice", models.RoleAdmin)
	dir.addMember("r3", "bob", models.RoleMember)
	rec := &fanoutRecorder{}
	p := NewPresence(dir, rec.fanout, BreakerConfig{}, *quietLogger())

	alice := models.Principal{ID: "alice", DisplayName: "Alice"}
	p.Announce(context.Background(), alice, true)

	if !dir.isOnline("alice") {
		t.Error("presence flag not persisted")
	}
	if len(rec.events) != 2 || len(rec.events["r3"]) != 0 {
		t.Fatalf("fanout rooms = %v, want r1 and r2 only", rec.events)
	}
	ev, ok := rec.events["r1"][0].(PresenceEvent)
	if !ok || ev.Name() != EventUserOnline || ev.UserID != "alice" || ev.RoomID != "r1" {
		t.Errorf("r1 event = %#v", rec.events["r1"][0])
	}

	p.Announce(context.Background(), alice, false)
	if dir.isOnline("alice") {
		t.Error("offline flag not persisted")
	}
	if got := rec.events["r2"][1].Name(); got != EventUserOffline {
		t.Errorf("second event = %s, want userOffline", got)
	}
}

func TestPresence_WriteFailureStillBroadcasts(t *testing.T) {
	dir := newFakeDirectory()
	dir.addMember("r1", "alice", models.RoleMember)
	dir.setErr = errors.New("disk full")
	rec := &fanoutRecorder{}
	p := NewPresence(dir, rec.fanout, BreakerConfig{FailureThreshold: 2, Timeout: time.Minute}, *quietLogger())
	alice := models.Principal{ID: "alice"}

	for i := 0; i < 4; i++ {
		p.Announce(context.Background(), alice, true)
	}

	if len(rec.events["r1"]) != 4 {
		t.Errorf("broadcasts = %d, want 4", len(rec.events["r1"]))
	}
	if p.BreakerState() != "open" {
		t.Errorf("BreakerState() = %s, want open", p.BreakerState())
	}
	dir.mu.Lock()
	writes := dir.setOnlineN
	dir.mu.Unlock()
	if writes != 2 {
		t.Errorf("store writes = %d, want 2 (breaker short-circuits the rest)", writes)
	}
}

// gatedStore holds offline writes until released.
type gatedStore struct {
	*fakeDirectory
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) SetOnline(ctx context.Context, id string, online bool) error {
	if !online {
		close(g.entered)
		<-g.release
	}
	return g.fakeDirectory.SetOnline(ctx, id, online)
}

func TestPresence_AnnouncementsApplyInCallOrder(t *testing.T) {
	dir := newFakeDirectory()
	dir.addMember("r1", "alice", models.RoleMember)
	store := &gatedStore{fakeDirectory: dir, entered: make(chan struct{}), release: make(chan struct{})}
	rec := &fanoutRecorder{}
	p := NewPresence(store, rec.fanout, BreakerConfig{}, *quietLogger())
	alice := models.Principal{ID: "alice"}
	ctx := context.Background()

	offlineDone := make(chan struct{})
	go func() {
		defer close(offlineDone)
		p.Announce(ctx, alice, false)
	}()
	<-store.entered

	onlineDone := make(chan struct{})
	go func() {
		defer close(onlineDone)
		p.Announce(ctx, alice, true)
	}()

	select {
	case <-onlineDone:
		t.Fatal("later announcement overtook an earlier one still writing")
	case <-time.After(30 * time.Millisecond):
	}
	close(store.release)
	<-offlineDone
	<-onlineDone

	if !dir.isOnline("alice") {
		t.Error("offline write landed after the later online announcement")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	events := rec.events["r1"]
	if len(events) != 2 || events[0].Name() != EventUserOffline || events[1].Name() != EventUserOnline {
		t.Errorf("notices = %v, want offline then online", events)
	}
}

func TestPresence_SupersededAnnouncementDropped(t *testing.T) {
	dir := newFakeDirectory()
	dir.addMember("r1", "alice", models.RoleMember)
	rec := &fanoutRecorder{}
	p := NewPresence(dir, rec.fanout, BreakerConfig{}, *quietLogger())
	alice := models.Principal{ID: "alice"}
	ctx := context.Background()

	older, seq := p.ticket("alice")
	newer, _ := p.ticket("alice")

	p.apply(ctx, newer, seq, alice, true)
	p.apply(ctx, older, seq, alice, false)

	if !dir.isOnline("alice") {
		t.Error("older offline announcement overwrote the newer online one")
	}
	if n := len(rec.events["r1"]); n != 1 {
		t.Errorf("notices = %d, want 1", n)
	}
	dir.mu.Lock()
	writes := dir.setOnlineN
	dir.mu.Unlock()
	if writes != 1 {
		t.Errorf("store writes = %d, want 1", writes)
	}
}
