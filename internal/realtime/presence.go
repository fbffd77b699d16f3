// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/models"
)

// PresenceStore is the durable side of presence.
type PresenceStore interface {
	RoomsOf(ctx context.Context, principalID string) ([]string, error)
	SetOnline(ctx context.Context, principalID string, online bool) error
}

// BreakerConfig tunes the circuit breaker around presence flag writes.
type BreakerConfig struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

// Presence fans online/offline notices out to every room a principal
// durably belongs to and persists the flag. Nothing it does is reported to
// the caller; failures are logged.
//
// Announcements for one principal take effect in the order Announce was
// called: each call draws a ticket, and a call that reaches the store after
// a later ticket has been applied is dropped.
type Presence struct {
	store   PresenceStore
	fanout  func(roomID string, ev Outbound)
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     zerolog.Logger

	mu     sync.Mutex
	issued uint64
	seqs   map[string]*presenceSeq
}

// presenceSeq serializes one principal's announcements.
type presenceSeq struct {
	mu      sync.Mutex
	applied uint64
}

// NewPresence creates a broadcaster. fanout delivers a room-scoped event to
// the room's live participants.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewPresence(store PresenceStore, fanout func(roomID string, ev Outbound), cfg BreakerConfig, log zerolog.Logger) *Presence {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	p := &Presence{store: store, fanout: fanout, log: log, seqs: make(map[string]*presenceSeq)}
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "presence-store",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerTransition(name, from, to)
			p.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Presence store circuit breaker changed state")
		},
	})
	return p
}

// Announce persists the presence flag and emits userOnline or userOffline to
// each durable room of the principal. Rooms are resolved from the store at
// call time, so rooms the principal has not live-joined are included.
func (p *Presence) Announce(ctx context.Context, principal models.Principal, online bool) {
	ticket, seq := p.ticket(principal.ID)
	p.apply(ctx, ticket, seq, principal, online)
}

func (p *Presence) apply(ctx context.Context, ticket uint64, seq *presenceSeq, principal models.Principal, online bool) {
	seq.mu.Lock()
	defer seq.mu.Unlock()
	if ticket < seq.applied {
		p.log.Debug().Str("user_id", principal.ID).Bool("online", online).Msg("Superseded presence announcement dropped")
		return
	}
	seq.applied = ticket

	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.store.SetOnline(ctx, principal.ID, online)
	})
	if err != nil {
		metrics.RealtimePresenceWriteFailures.Inc()
		p.log.Warn().Err(err).Str("user_id", principal.ID).Bool("online", online).
			Msg("Failed to persist presence flag")
	}

	rooms, err := p.store.RoomsOf(ctx, principal.ID)
	if err != nil {
		p.log.Error().Err(err).Str("user_id", principal.ID).Msg("Failed to resolve rooms for presence broadcast")
		return
	}

	for _, roomID := range rooms {
		p.fanout(roomID, PresenceEvent{
			UserID:    principal.ID,
			Username:  principal.DisplayName,
			AvatarURL: principal.AvatarURL,
			RoomID:    roomID,
			IsOnline:  online,
		})
	}
}

func (p *Presence) ticket(principalID string) (uint64, *presenceSeq) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued++
	seq, ok := p.seqs[principalID]
	if !ok {
		seq = &presenceSeq{}
		p.seqs[principalID] = seq
	}
	return p.issued, seq
}

// BreakerState reports the presence store breaker state for health output.
func (p *Presence) BreakerState() string {
	return p.breaker.State().String()
}
