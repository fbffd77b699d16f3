// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package realtime

import (
	"sync"

	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/models"
)

// Conn is one live transport session as seen by the core.
type Conn interface {
	// ID is unique for the lifetime of the process.
	ID() string

	// Send queues ev without blocking. It returns false when the connection
	// is gone or its buffer is full.
	Send(ev Outbound) bool

	// Close terminates the transport after flushing queued events. Safe to
	// call more than once.
	Close()
}

type registryEntry struct {
	conn      Conn
	principal models.Principal
	seq       uint64
}

// Registry maps connection ids to live transports and principals to their
// direct-delivery route. The route is last-connect-wins; other connections
// of the same principal stay registered and keep receiving room broadcasts.
type Registry struct {
	mu          sync.RWMutex
	conns       map[string]*registryEntry
	byPrincipal map[string]map[string]*registryEntry
	routes      map[string]string
	seq         uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:       make(map[string]*registryEntry),
		byPrincipal: make(map[string]map[string]*registryEntry),
		routes:      make(map[string]string),
	}
}

// Register adds conn for principal and makes it the principal's direct route.
func (r *Registry) Register(conn Conn, principal models.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[conn.ID()]; ok {
		r.removeLocked(conn.ID(), prev)
	}

	r.seq++
	e := &registryEntry{conn: conn, principal: principal, seq: r.seq}
	r.conns[conn.ID()] = e
	set, ok := r.byPrincipal[principal.ID]
	if !ok {
		set = make(map[string]*registryEntry)
		r.byPrincipal[principal.ID] = set
	}
	set[conn.ID()] = e
	r.routes[principal.ID] = conn.ID()

	metrics.RealtimeConnectedPrincipals.Set(float64(len(r.byPrincipal)))
}

// Unregister removes a connection. It returns the owning principal and
// whether that principal still has other live connections. Unknown ids are
// a no-op reporting removed=false.
func (r *Registry) Unregister(connID string) (principal models.Principal, stillConnected, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return models.Principal{}, false, false
	}
	r.removeLocked(connID, e)
	metrics.RealtimeConnectedPrincipals.Set(float64(len(r.byPrincipal)))
	return e.principal, len(r.byPrincipal[e.principal.ID]) > 0, true
}

// removeLocked must be called with mu held. When the removed connection was
// the direct route, the route moves to the principal's most recent remaining
// connection.
func (r *Registry) removeLocked(connID string, e *registryEntry) {
	delete(r.conns, connID)
	pid := e.principal.ID
	set := r.byPrincipal[pid]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.byPrincipal, pid)
		delete(r.routes, pid)
		return
	}
	if r.routes[pid] != connID {
		return
	}
	var newest *registryEntry
	for _, cand := range set {
		if newest == nil || cand.seq > newest.seq {
			newest = cand
		}
	}
	r.routes[pid] = newest.conn.ID()
}

// RouteFor returns the connection id used for direct delivery to principalID.
func (r *Registry) RouteFor(principalID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.routes[principalID]
	return id, ok
}

// SendDirect delivers ev to the principal's routed connection. False means
// undeliverable, which callers treat as non-fatal.
func (r *Registry) SendDirect(principalID string, ev Outbound) bool {
	r.mu.RLock()
	var conn Conn
	if id, ok := r.routes[principalID]; ok {
		if e, ok := r.conns[id]; ok {
			conn = e.conn
		}
	}
	r.mu.RUnlock()

	if conn == nil {
		return false
	}
	return deliver(conn, ev)
}

// Send delivers ev to one connection by id.
func (r *Registry) Send(connID string, ev Outbound) bool {
	r.mu.RLock()
	e, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return deliver(e.conn, ev)
}

// Principal returns the principal owning connID.
func (r *Registry) Principal(connID string) (models.Principal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[connID]
	if !ok {
		return models.Principal{}, false
	}
	return e.principal, true
}

// ConnectedPrincipalCount is the number of distinct principals with at least
// one live connection.
func (r *Registry) ConnectedPrincipalCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPrincipal)
}

// ConnectionCount is the number of registered connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func deliver(conn Conn, ev Outbound) bool {
	if conn.Send(ev) {
		metrics.RealtimeEventsSent.WithLabelValues(string(ev.Name())).Inc()
		return true
	}
	metrics.RealtimeUndeliverable.WithLabelValues(string(ev.Name())).Inc()
	return false
}
