// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/parley/internal/logging"
)

// ValueLogCollector is satisfied by *store.Store.
type ValueLogCollector interface {
	RunValueLogGC(ratio float64) error
}

// StoreGCService reclaims Badger value-log space on a fixed interval.
// A failed pass ends Serve with an error so the supervisor backs off and
// restarts it.
type StoreGCService struct {
	store    ValueLogCollector
	interval time.Duration
	ratio    float64
	name     string
}

// NewStoreGCService creates a GC loop. A non-positive interval means 10m;
// a ratio outside (0, 1) means 0.5.
func NewStoreGCService(store ValueLogCollector, interval time.Duration, ratio float64) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	return &StoreGCService{
		store:    store,
		interval: interval,
		ratio:    ratio,
		name:     "store-gc",
	}
}

// Serve implements suture.Service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log := logging.WithComponent("store-gc")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.store.RunValueLogGC(s.ratio); err != nil {
				return fmt.Errorf("value log gc: %w", err)
			}
			log.Debug().Dur("duration", time.Since(start)).Msg("value log gc pass")
		}
	}
}

// String names the service in supervisor events.
func (s *StoreGCService) String() string {
	return s.name
}
