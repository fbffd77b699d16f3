// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package realtime

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/models"
)

// Directory is everything the core reads from or writes to durable storage.
type Directory interface {
	PresenceStore

	// IsMember reports the principal's durable role in a room.
	IsMember(ctx context.Context, principalID, roomID string) (models.Role, bool, error)

	// GetPrincipal returns an error wrapping models.ErrNotFound for unknown ids.
	GetPrincipal(ctx context.Context, principalID string) (*models.Principal, error)
}

// Verifier resolves a bearer credential to a principal id.
type Verifier interface {
	Verify(token string) (string, error)
}

// State is a connection's lifecycle state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the router's per-connection state. Joined rooms live in the
// Tracker; everything else is here.
type Session struct {
	conn        Conn
	connectedAt time.Time

	mu           sync.Mutex
	state        State
	principal    models.Principal
	lastActivity time.Time
}

// ID returns the connection id.
func (s *Session) ID() string { return s.conn.ID() }

// Principal returns the authenticated principal (zero before authentication).
func (s *Session) Principal() models.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns when the session last handled an event.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// Options configures a Router.
type Options struct {
	TypingTimeout time.Duration
	Breaker       BreakerConfig
	Logger        *zerolog.Logger
}

// Router owns the connection lifecycle and every in-memory structure of the
// realtime core. It is safe for concurrent use: each connection's events are
// expected to arrive serially on that connection's goroutine, while the
// collaborator methods may be called from anywhere.
type Router struct {
	dir      Directory
	verifier Verifier
	registry *Registry
	tracker  *Tracker
	typing   *TypingManager
	presence *Presence
	log      zerolog.Logger
	now      func() time.Time
}

// NewRouter wires a registry, tracker, typing manager and presence
// broadcaster around the given collaborators.
func NewRouter(dir Directory, verifier Verifier, opts Options) *Router {
	log := logging.WithComponent("realtime")
	if opts.Logger != nil {
		log = *opts.Logger
	}
	r := &Router{
		dir:      dir,
		verifier: verifier,
		registry: NewRegistry(),
		tracker:  NewTracker(),
		log:      log,
		now:      time.Now,
	}
	r.typing = NewTypingManager(r.tracker, opts.TypingTimeout, r.onTypingExpired)
	r.presence = NewPresence(dir, r.BroadcastToRoom, opts.Breaker, log)
	return r
}

// Connect authenticates a new transport connection with token. On failure
// the connection receives one terminal error event, is closed, and a nil
// session is returned with an error wrapping ErrAuthRequired, ErrAuthFailed
// or ErrUserNotFound.
func (r *Router) Connect(ctx context.Context, conn Conn, token string) (*Session, error) {
	s := &Session{conn: conn, connectedAt: r.now(), state: StateUnauthenticated}
	ctx = logging.ContextWithConnectionID(ctx, conn.ID())

	if token == "" {
		r.reject(ctx, s, CodeAuthRequired, "Authentication required")
		return nil, ErrAuthRequired
	}

	principalID, err := r.verifier.Verify(token)
	if err != nil {
		r.reject(ctx, s, CodeAuthFailed, "Invalid or expired token")
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	p, err := r.dir.GetPrincipal(ctx, principalID)
	if errors.Is(err, models.ErrNotFound) {
		r.reject(ctx, s, CodeUserNotFound, "User not found")
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, principalID)
	}
	if err != nil {
		r.reject(ctx, s, CodeAuthFailed, "Authentication failed")
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.principal = *p
	s.lastActivity = s.connectedAt
	s.mu.Unlock()

	r.registry.Register(conn, *p)
	ctx = logging.ContextWithPrincipalID(ctx, p.ID)
	logging.Ctx(logging.ContextWithLogger(ctx, r.log)).Debug().Msg("Connection authenticated")

	r.presence.Announce(ctx, *p, true)
	return s, nil
}

func (r *Router) reject(ctx context.Context, s *Session, code ErrorCode, msg string) {
	metrics.RealtimeAuthFailures.WithLabelValues(string(code)).Inc()
	logging.Ctx(logging.ContextWithLogger(ctx, r.log)).Info().Str("code", string(code)).Msg("Connection rejected")
	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
	s.conn.Send(ErrorEvent{Code: code, Message: msg})
	s.conn.Close()
}

// HandleFrame decodes a raw inbound frame and handles it. Decode failures
// are answered with an INVALID_EVENT error to this connection only.
func (r *Router) HandleFrame(ctx context.Context, s *Session, raw []byte) {
	ev, err := DecodeInbound(raw)
	if err != nil {
		r.replyError(ctx, s, "", err)
		return
	}
	r.Handle(ctx, s, ev)
}

// Handle processes one inbound event. Every error and panic stops here and
// becomes a scoped error event to the originating connection.
func (r *Router) Handle(ctx context.Context, s *Session, ev Inbound) {
	ctx = logging.ContextWithConnectionID(ctx, s.ID())
	metrics.RealtimeEventsReceived.WithLabelValues(string(ev.Name())).Inc()

	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().Str("conn_id", s.ID()).Str("event", string(ev.Name())).
					Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("Recovered panic in event handler")
				err = handlerPanic{value: rec}
			}
		}()
		err = r.dispatch(ctx, s, ev)
	}()

	if err != nil {
		r.replyError(ctx, s, ev.Name(), err)
	}
}

func (r *Router) replyError(ctx context.Context, s *Session, event EventName, err error) {
	out := errorEventFor(event, err)
	metrics.RealtimeHandlerErrors.WithLabelValues(string(out.Code)).Inc()

	level := zerolog.WarnLevel
	if out.Code == CodeInternal {
		level = zerolog.ErrorLevel
	}
	logging.Ctx(logging.ContextWithLogger(ctx, r.log)).WithLevel(level).Err(err).
		Str("event", string(event)).Str("code", string(out.Code)).Msg("Event handler failed")
	deliver(s.conn, out)
}

func (r *Router) dispatch(ctx context.Context, s *Session, ev Inbound) error {
	s.mu.Lock()
	state, p := s.state, s.principal
	s.mu.Unlock()
	if state != StateAuthenticated {
		return ErrNotAuthenticated
	}
	s.touch(r.now())

	switch e := ev.(type) {
	case JoinRoom:
		return r.joinRoom(ctx, s, p, e.RoomID)
	case LeaveRoom:
		r.leaveRoom(s, p, e.RoomID)
		return nil
	case StartTyping:
		if r.typing.Start(s.ID(), e.RoomID, p) {
			r.broadcastExcept(e.RoomID, s.ID(), typingEvent(EventUserTyping, p, e.RoomID))
		}
		return nil
	case StopTyping:
		if _, ok := r.typing.Stop(s.ID(), e.RoomID); ok {
			r.broadcastExcept(e.RoomID, s.ID(), typingEvent(EventUserStoppedTyping, p, e.RoomID))
		}
		return nil
	case UpdatePresence:
		r.presence.Announce(ctx, p, e.Status != StatusOffline)
		return nil
	default:
		return fmt.Errorf("%w: unhandled event %q", ErrInvalidEvent, ev.Name())
	}
}

func (r *Router) joinRoom(ctx context.Context, s *Session, p models.Principal, roomID string) error {
	role, added, err := r.tracker.Join(ctx, s.ID(), p.ID, roomID, func(ctx context.Context) (models.Role, bool, error) {
		return r.dir.IsMember(ctx, p.ID, roomID)
	})
	if err != nil {
		if errors.Is(err, ErrAccessDenied) {
			return err
		}
		return fmt.Errorf("membership lookup for room %s: %w", roomID, err)
	}
	if added {
		r.broadcastExcept(roomID, s.ID(), joinedEvent(p, roomID, role))
	}
	return nil
}

func (r *Router) leaveRoom(s *Session, p models.Principal, roomID string) {
	if r.tracker.Leave(s.ID(), roomID) {
		r.broadcastExcept(roomID, s.ID(), leftEvent(p, roomID))
	}
}

func (r *Router) onTypingExpired(connID, roomID string, p models.Principal) {
	r.broadcastExcept(roomID, connID, typingEvent(EventUserStoppedTyping, p, roomID))
}

// Disconnect tears a session down. For each joined room it first clears a
// live typing flag (userStoppedTyping) and then leaves (userLeftRoom). The
// connection is unregistered, the presence flag is cleared and the
// principal is announced offline to every durable room, whether or not
// other devices remain connected. Repeated calls and calls for sessions
// that never authenticated are no-ops.
func (r *Router) Disconnect(ctx context.Context, s *Session) {
	if s == nil {
		return
	}
	s.mu.Lock()
	prev, p := s.state, s.principal
	s.state = StateDisconnected
	s.mu.Unlock()
	if prev != StateAuthenticated {
		return
	}
	ctx = logging.ContextWithPrincipalID(logging.ContextWithConnectionID(ctx, s.ID()), p.ID)

	for _, roomID := range r.tracker.RoomsOf(s.ID()) {
		if _, ok := r.typing.Stop(s.ID(), roomID); ok {
			r.broadcastExcept(roomID, s.ID(), typingEvent(EventUserStoppedTyping, p, roomID))
		}
	}
	for _, roomID := range r.tracker.CleanupConnection(s.ID()) {
		r.BroadcastToRoom(roomID, leftEvent(p, roomID))
	}

	_, stillConnected, removed := r.registry.Unregister(s.ID())
	logging.Ctx(logging.ContextWithLogger(ctx, r.log)).Debug().Bool("still_connected", stillConnected).
		Dur("session", r.now().Sub(s.connectedAt)).Msg("Connection closed")
	if removed {
		r.presence.Announce(ctx, p, false)
	}
}

// BroadcastToRoom delivers ev to every live participant of roomID. A room
// with no live participants is a silent no-op.
func (r *Router) BroadcastToRoom(roomID string, ev Outbound) {
	r.broadcastExcept(roomID, "", ev)
}

func (r *Router) broadcastExcept(roomID, exceptConnID string, ev Outbound) {
	for _, connID := range r.tracker.ParticipantsOf(roomID) {
		if connID == exceptConnID {
			continue
		}
		r.registry.Send(connID, ev)
	}
}

// SendToPrincipal delivers ev to the principal's most recently connected
// device. False means undeliverable.
func (r *Router) SendToPrincipal(principalID string, ev Outbound) bool {
	return r.registry.SendDirect(principalID, ev)
}

// ActiveParticipants lists the principals live in roomID.
func (r *Router) ActiveParticipants(roomID string) []string {
	return r.tracker.PrincipalsOf(roomID)
}

// TypingUsers lists the principals typing in roomID.
func (r *Router) TypingUsers(roomID string) []TypingUser {
	return r.typing.UsersOf(roomID)
}

// ConnectedPrincipalCount is the number of principals with a live connection.
func (r *Router) ConnectedPrincipalCount() int {
	return r.registry.ConnectedPrincipalCount()
}

// ActiveRoomCount is the number of rooms with live participants.
func (r *Router) ActiveRoomCount() int {
	return r.tracker.ActiveRoomCount()
}

// ConnectionCount is the number of authenticated connections.
func (r *Router) ConnectionCount() int {
	return r.registry.ConnectionCount()
}

// PresenceBreakerState exposes the presence store breaker state.
func (r *Router) PresenceBreakerState() string {
	return r.presence.BreakerState()
}
