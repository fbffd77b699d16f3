// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/parley/internal/models"
)

// userRecord keeps the password hash, which models.User hides from JSON.
type userRecord struct {
	models.User
	Hash []byte `json:"passwordHash"`
}

func (r *userRecord) toUser() *models.User {
	u := r.User
	u.PasswordHash = r.Hash
	return &u
}

func usernameKey(name string) string {
	return usernameKeyPrefix + strings.ToLower(strings.TrimSpace(name))
}

// CreateUser stores a new user. The username is unique case-insensitively.
func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	return s.update("create_user", func(txn *badger.Txn) error {
		taken, err := exists(txn, usernameKey(u.Username))
		if err != nil {
			return err
		}
		if taken {
			return ErrUsernameTaken
		}
		dup, err := exists(txn, userKeyPrefix+u.ID)
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("user %s: %w", u.ID, ErrConflict)
		}
		if err := setJSON(txn, userKeyPrefix+u.ID, userRecord{User: *u, Hash: u.PasswordHash}); err != nil {
			return err
		}
		return txn.Set([]byte(usernameKey(u.Username)), []byte(u.ID))
	})
}

// GetUser returns the user with id, or an error wrapping ErrNotFound.
func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	var rec userRecord
	err := s.view("get_user", func(txn *badger.Txn) error {
		return getJSON(txn, userKeyPrefix+id, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return rec.toUser(), nil
}

// GetUserByUsername resolves a username (case-insensitive) to its user.
func (s *Store) GetUserByUsername(ctx context.Context, name string) (*models.User, error) {
	var id string
	err := s.view("get_user_by_username", func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(usernameKey(name)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		id = string(val)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("username %q: %w", name, err)
	}
	return s.GetUser(ctx, id)
}

// GetPrincipal returns the public identity of a user.
func (s *Store) GetPrincipal(ctx context.Context, id string) (*models.Principal, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	p := u.Principal()
	return &p, nil
}

// SetOnline persists a user's presence flag. Going offline also stamps LastSeen.
func (s *Store) SetOnline(_ context.Context, id string, online bool) error {
	return s.update("set_online", func(txn *badger.Txn) error {
		var rec userRecord
		if err := getJSON(txn, userKeyPrefix+id, &rec); err != nil {
			return fmt.Errorf("user %s: %w", id, err)
		}
		rec.IsOnline = online
		if !online {
			rec.LastSeen = s.now().UTC()
		}
		return setJSON(txn, userKeyPrefix+id, rec)
	})
}
