// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package realtime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/tomtom215/parley/internal/models"
)

func allow(role models.Role) AuthorizeFunc {
	return func(context.Context) (models.Role, bool, error) { return role, true, nil }
}

func deny(context.Context) (models.Role, bool, error) { return "", false, nil }

func TestTracker_JoinLeave(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()

	role, added, err := tr.Join(ctx, "c1", "alice", "r1", allow(models.RoleAdmin))
	if err != nil || !added || role != models.RoleAdmin {
		t.Fatalf("Join() = (%q, %v, %v), want (admin, true, nil)", role, added, err)
	}
	if _, added, _ = tr.Join(ctx, "c1", "alice", "r1", allow(models.RoleAdmin)); added {
		t.Error("second Join() added = true, want false")
	}
	if _, _, err := tr.Join(ctx, "c2", "bob", "r1", allow(models.RoleMember)); err != nil {
		t.Fatal(err)
	}

	if got := tr.ParticipantsOf("r1"); !reflect.DeepEqual(got, []string{"c1", "c2"}) {
		t.Errorf("ParticipantsOf() = %v", got)
	}
	if got := tr.PrincipalsOf("r1"); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("PrincipalsOf() = %v", got)
	}
	if !tr.IsJoined("c1", "r1") {
		t.Error("IsJoined(c1, r1) = false")
	}

	if !tr.Leave("c1", "r1") {
		t.Error("Leave(c1) = false, want true")
	}
	if tr.Leave("c1", "r1") {
		t.Error("second Leave(c1) = true, want false")
	}
	if tr.ActiveRoomCount() != 1 {
		t.Errorf("ActiveRoomCount() = %d, want 1", tr.ActiveRoomCount())
	}
	tr.Leave("c2", "r1")
	if tr.ActiveRoomCount() != 0 {
		t.Errorf("empty room not evicted, ActiveRoomCount() = %d", tr.ActiveRoomCount())
	}
	if got := tr.ParticipantsOf("r1"); got != nil {
		t.Errorf("ParticipantsOf(evicted) = %v, want nil", got)
	}
}

func TestTracker_JoinDenied(t *testing.T) {
	tr := NewTracker()
	_, _, err := tr.Join(context.Background(), "c1", "mallory", "r1", deny)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("Join() error = %v, want ErrAccessDenied", err)
	}
	if tr.ActiveRoomCount() != 0 || len(tr.RoomsOf("c1")) != 0 {
		t.Error("denied join changed tracker state")
	}

	lookupErr := errors.New("store down")
	_, _, err = tr.Join(context.Background(), "c1", "mallory", "r1", func(context.Context) (models.Role, bool, error) {
		return "", false, lookupErr
	})
	if !errors.Is(err, lookupErr) {
		t.Errorf("Join() error = %v, want %v", err, lookupErr)
	}
}

func TestTracker_CleanupConnection(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()
	for _, room := range []string{"r3", "r1", "r2"} {
		if _, _, err := tr.Join(ctx, "c1", "alice", room, allow(models.RoleMember)); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := tr.Join(ctx, "c2", "bob", "r2", allow(models.RoleMember)); err != nil {
		t.Fatal(err)
	}

	got := tr.CleanupConnection("c1")
	if !reflect.DeepEqual(got, []string{"r1", "r2", "r3"}) {
		t.Errorf("CleanupConnection() = %v", got)
	}
	if tr.ActiveRoomCount() != 1 {
		t.Errorf("ActiveRoomCount() = %d, want 1 (r2 kept by c2)", tr.ActiveRoomCount())
	}
	if got := tr.CleanupConnection("c1"); got != nil {
		t.Errorf("second CleanupConnection() = %v, want nil", got)
	}
}

func TestTracker_ConcurrentJoinLeave(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i)
			room := fmt.Sprintf("r%d", i%4)
			for j := 0; j < 20; j++ {
				_, _, _ = tr.Join(ctx, conn, "u", room, allow(models.RoleMember))
				tr.ParticipantsOf(room)
				tr.Leave(conn, room)
			}
		}(i)
	}
	wg.Wait()
	if tr.ActiveRoomCount() != 0 {
		t.Errorf("ActiveRoomCount() = %d, want 0", tr.ActiveRoomCount())
	}
}
