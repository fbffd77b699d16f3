// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/parley/internal/models"
)

func memberKey(roomID, userID string) string {
	return memberKeyPrefix + roomID + ":" + userID
}

func userRoomKey(userID, roomID string) string {
	return userRoomKeyPrefix + userID + ":" + roomID
}

// CreateRoom stores a room and makes its creator an admin member in the
// same transaction.
func (s *Store) CreateRoom(_ context.Context, room *models.Room) error {
	now := s.now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = room.CreatedAt

	return s.update("create_room", func(txn *badger.Txn) error {
		dup, err := exists(txn, roomKeyPrefix+room.ID)
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("room %s: %w", room.ID, ErrConflict)
		}
		ok, err := exists(txn, userKeyPrefix+room.CreatedBy)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("creator %s: %w", room.CreatedBy, ErrNotFound)
		}
		if err := setJSON(txn, roomKeyPrefix+room.ID, room); err != nil {
			return err
		}
		return putMembership(txn, &models.Membership{
			RoomID:   room.ID,
			UserID:   room.CreatedBy,
			Role:     models.RoleAdmin,
			JoinedAt: now,
		})
	})
}

// GetRoom returns a room or an error wrapping ErrNotFound.
func (s *Store) GetRoom(_ context.Context, id string) (*models.Room, error) {
	var room models.Room
	err := s.view("get_room", func(txn *badger.Txn) error {
		return getJSON(txn, roomKeyPrefix+id, &room)
	})
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", id, err)
	}
	return &room, nil
}

// UpdateRoom applies fn to the stored room and persists the result.
func (s *Store) UpdateRoom(_ context.Context, id string, fn func(*models.Room)) (*models.Room, error) {
	var room models.Room
	err := s.update("update_room", func(txn *badger.Txn) error {
		if err := getJSON(txn, roomKeyPrefix+id, &room); err != nil {
			return err
		}
		fn(&room)
		room.ID = id
		room.UpdatedAt = s.now().UTC()
		return setJSON(txn, roomKeyPrefix+id, &room)
	})
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", id, err)
	}
	return &room, nil
}

func putMembership(txn *badger.Txn, m *models.Membership) error {
	if err := setJSON(txn, memberKey(m.RoomID, m.UserID), m); err != nil {
		return err
	}
	return txn.Set([]byte(userRoomKey(m.UserID, m.RoomID)), []byte(m.Role))
}

// AddMember creates or updates a durable membership. Both the room and the
// user must exist.
func (s *Store) AddMember(_ context.Context, roomID, userID string, role models.Role) (*models.Membership, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	m := &models.Membership{RoomID: roomID, UserID: userID, Role: role, JoinedAt: s.now().UTC()}
	err := s.update("add_member", func(txn *badger.Txn) error {
		for _, key := range []string{roomKeyPrefix + roomID, userKeyPrefix + userID} {
			ok, err := exists(txn, key)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: %w", key, ErrNotFound)
			}
		}
		var prev models.Membership
		err := getJSON(txn, memberKey(roomID, userID), &prev)
		switch {
		case err == nil:
			m.JoinedAt = prev.JoinedAt
		case !errors.Is(err, ErrNotFound):
			return err
		}
		return putMembership(txn, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember deletes a durable membership. Removing a non-member is a no-op.
func (s *Store) RemoveMember(_ context.Context, roomID, userID string) error {
	return s.update("remove_member", func(txn *badger.Txn) error {
		for _, key := range []string{memberKey(roomID, userID), userRoomKey(userID, roomID)} {
			if err := txn.Delete([]byte(key)); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// GetMembership returns the membership of userID in roomID.
func (s *Store) GetMembership(_ context.Context, roomID, userID string) (*models.Membership, error) {
	var m models.Membership
	err := s.view("get_membership", func(txn *badger.Txn) error {
		return getJSON(txn, memberKey(roomID, userID), &m)
	})
	if err != nil {
		return nil, fmt.Errorf("membership %s/%s: %w", roomID, userID, err)
	}
	return &m, nil
}

// IsMember reports whether the principal durably belongs to the room and
// with which role.
func (s *Store) IsMember(ctx context.Context, principalID, roomID string) (models.Role, bool, error) {
	m, err := s.GetMembership(ctx, roomID, principalID)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return m.Role, true, nil
}

// RoomsOf lists the ids of every room the principal durably belongs to.
func (s *Store) RoomsOf(_ context.Context, principalID string) ([]string, error) {
	var rooms []string
	err := s.view("rooms_of", func(txn *badger.Txn) error {
		return scanPrefix(txn, userRoomKeyPrefix+principalID+":", func(roomID string, _ []byte) error {
			rooms = append(rooms, roomID)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("rooms of %s: %w", principalID, err)
	}
	return rooms, nil
}

// ListRooms returns the rooms the principal belongs to, sorted by name.
func (s *Store) ListRooms(ctx context.Context, principalID string) ([]*models.Room, error) {
	ids, err := s.RoomsOf(ctx, principalID)
	if err != nil {
		return nil, err
	}
	rooms := make([]*models.Room, 0, len(ids))
	err = s.view("list_rooms", func(txn *badger.Txn) error {
		for _, id := range ids {
			var room models.Room
			err := getJSON(txn, roomKeyPrefix+id, &room)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			rooms = append(rooms, &room)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms, nil
}

// ListMembers returns every durable membership of a room.
func (s *Store) ListMembers(_ context.Context, roomID string) ([]*models.Membership, error) {
	var members []*models.Membership
	err := s.view("list_members", func(txn *badger.Txn) error {
		return scanPrefix(txn, memberKeyPrefix+roomID+":", func(_ string, val []byte) error {
			var m models.Membership
			if err := json.Unmarshal(val, &m); err != nil {
				return err
			}
			members = append(members, &m)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("members of %s: %w", roomID, err)
	}
	return members, nil
}
