// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// statsInterval is how often the hub logs its connection count.
const statsInterval = time.Minute

// Hub owns the set of open websocket clients so they can be counted and
// closed together on shutdown. Room routing lives in the realtime router;
// the hub only manages transport lifetimes.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	accept  bool
}

// NewHub creates a new Hub that accepts clients immediately.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		accept:  true,
	}
}

// register adds a client. It returns false while the hub is shutting down.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.accept {
		return false
	}
	h.clients[c.ID()] = c
	metrics.WSConnections.Set(float64(len(h.clients)))
	logging.Debug().Int("total_clients", len(h.clients)).Msg("websocket client connected")
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID()]; !ok {
		return
	}
	delete(h.clients, c.ID())
	metrics.WSConnections.Set(float64(len(h.clients)))
	logging.Debug().Int("total_clients", len(h.clients)).Msg("websocket client disconnected")
}

// RunWithContext runs the hub until ctx is canceled, then closes every
// client and returns ctx.Err(). It is designed for use with suture
// supervision; a restarted hub accepts clients again.
func (h *Hub) RunWithContext(ctx context.Context) error {
	h.mu.Lock()
	h.accept = true
	h.mu.Unlock()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case <-ticker.C:
			logging.Debug().Int("clients", h.GetClientCount()).Msg("websocket hub stats")
		}
	}
}

// logGracefulShutdown closes all clients and logs the shutdown. ctx.Err()
// is not logged as an error because cancellation is the expected path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

// getShutdownReason determines the shutdown reason from the context error.
func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// closeAllClients stops accepting new clients and closes the open ones in
// id order. Each client's read pump unregisters it as it exits.
func (h *Hub) closeAllClients() int {
	h.mu.Lock()
	h.accept = false
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ID() < clients[j].ID()
	})
	for _, c := range clients {
		c.Close()
	}
	return len(clients)
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
