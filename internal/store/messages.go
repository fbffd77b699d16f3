// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/parley/internal/models"
)

// MaxListMessages caps ListMessages.
const MaxListMessages = 200

// messageKey sorts lexicographically by creation time within a room.
func messageKey(m *models.Message) string {
	return fmt.Sprintf("%s%s:%020d:%s", msgKeyPrefix, m.RoomID, m.CreatedAt.UnixNano(), m.ID)
}

func lookupMessageKey(txn *badger.Txn, id string) (string, error) {
	item, err := txn.Get([]byte(msgIDKeyPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	return string(val), err
}

// CreateMessage persists a new message.
func (s *Store) CreateMessage(_ context.Context, m *models.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	key := messageKey(m)
	return s.update("create_message", func(txn *badger.Txn) error {
		ok, err := exists(txn, roomKeyPrefix+m.RoomID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("room %s: %w", m.RoomID, ErrNotFound)
		}
		if err := setJSON(txn, key, m); err != nil {
			return err
		}
		return txn.Set([]byte(msgIDKeyPrefix+m.ID), []byte(key))
	})
}

// GetMessage returns a message that belongs to roomID.
func (s *Store) GetMessage(_ context.Context, roomID, id string) (*models.Message, error) {
	var m models.Message
	err := s.view("get_message", func(txn *badger.Txn) error {
		key, err := lookupMessageKey(txn, id)
		if err != nil {
			return err
		}
		return getJSON(txn, key, &m)
	})
	if err == nil && m.RoomID != roomID {
		err = ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}
	return &m, nil
}

// UpdateMessageContent replaces the content of a message and stamps EditedAt.
func (s *Store) UpdateMessageContent(_ context.Context, roomID, id, content string) (*models.Message, error) {
	var m models.Message
	err := s.update("update_message_content", func(txn *badger.Txn) error {
		key, err := lookupMessageKey(txn, id)
		if err != nil {
			return err
		}
		if err := getJSON(txn, key, &m); err != nil {
			return err
		}
		if m.RoomID != roomID {
			return ErrNotFound
		}
		edited := s.now().UTC()
		m.Content = content
		m.EditedAt = &edited
		return setJSON(txn, key, &m)
	})
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}
	return &m, nil
}

// DeleteMessage removes a message from roomID.
func (s *Store) DeleteMessage(_ context.Context, roomID, id string) error {
	err := s.update("delete_message", func(txn *badger.Txn) error {
		key, err := lookupMessageKey(txn, id)
		if err != nil {
			return err
		}
		var m models.Message
		if err := getJSON(txn, key, &m); err != nil {
			return err
		}
		if m.RoomID != roomID {
			return ErrNotFound
		}
		if err := txn.Delete([]byte(key)); err != nil {
			return err
		}
		return txn.Delete([]byte(msgIDKeyPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("message %s: %w", id, err)
	}
	return nil
}

// ListMessages returns up to limit of the newest messages in a room, oldest
// first.
func (s *Store) ListMessages(_ context.Context, roomID string, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > MaxListMessages {
		limit = MaxListMessages
	}
	prefix := []byte(msgKeyPrefix + roomID + ":")

	var newestFirst []*models.Message
	err := s.view("list_messages", func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(newestFirst) < limit; it.Next() {
			var m models.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			newestFirst = append(newestFirst, &m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages %s: %w", roomID, err)
	}

	out := make([]*models.Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out, nil
}
