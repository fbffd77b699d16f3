// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package store is Parley's durable keyed store for users, rooms,
// memberships and messages, backed by BadgerDB.
//
// Key layout:
//
//	user:<id>                          user record (JSON)
//	username:<lowercased name>         user id
//	room:<id>                          room record
//	member:<roomID>:<userID>           membership record
//	user_room:<userID>:<roomID>        role (reverse index for RoomsOf)
//	msg:<roomID>:<unixnano>:<msgID>    message record, ordered by time
//	msg_id:<msgID>                     full msg: key
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/models"
)

const (
	userKeyPrefix     = "user:"
	usernameKeyPrefix = "username:"
	roomKeyPrefix     = "room:"
	memberKeyPrefix   = "member:"
	userRoomKeyPrefix = "user_room:"
	msgKeyPrefix      = "msg:"
	msgIDKeyPrefix    = "msg_id:"
)

var (
	// ErrNotFound is returned (wrapped) when a record does not exist.
	ErrNotFound = models.ErrNotFound

	// ErrUsernameTaken is returned by CreateUser for a duplicate username.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrConflict is returned when creating a record whose id already exists.
	ErrConflict = errors.New("record already exists")
)

// Options configures Open.
type Options struct {
	Path     string
	InMemory bool
}

// Store is safe for concurrent use; Badger provides transactional isolation.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens (or creates) the Badger database described by opts.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithLogger(badgerLogger{})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return New(db), nil
}

// New wraps an already opened database.
func New(db *badger.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunValueLogGC runs one value-log garbage collection cycle. badger.ErrNoRewrite
// means there was nothing to reclaim and is not reported as an error.
func (s *Store) RunValueLogGC(ratio float64) error {
	if s.db.Opts().InMemory {
		return nil
	}
	err := s.db.RunValueLogGC(ratio)
	switch {
	case err == nil:
		metrics.StoreGCRuns.WithLabelValues("rewritten").Inc()
		return nil
	case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
		metrics.StoreGCRuns.WithLabelValues("noop").Inc()
		return nil
	default:
		metrics.StoreGCRuns.WithLabelValues("error").Inc()
		return err
	}
}

// Ping verifies the database answers a read transaction.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("store is closed")
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

func (s *Store) view(op string, fn func(*badger.Txn) error) error {
	start := time.Now()
	err := s.db.View(fn)
	metrics.RecordStoreOp(op, start, unexpected(err))
	return err
}

func (s *Store) update(op string, fn func(*badger.Txn) error) error {
	start := time.Now()
	err := s.db.Update(fn)
	metrics.RecordStoreOp(op, start, unexpected(err))
	return err
}

// unexpected filters out domain outcomes so only real failures are counted.
func unexpected(err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}

func getJSON(txn *badger.Txn, key string, v interface{}) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := txn.Set([]byte(key), data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	return true, nil
}

// scanPrefix calls fn with the key suffix and value of every item under prefix.
func scanPrefix(txn *badger.Txn, prefix string, fn func(suffix string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		suffix := string(item.Key()[len(p):])
		if err := item.Value(func(val []byte) error {
			return fn(suffix, val)
		}); err != nil {
			return err
		}
	}
	return nil
}

// badgerLogger routes Badger's internal logging into zerolog at debug level,
// except warnings and errors.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Trace().Str("component", "badger").Msgf(format, args...)
}
