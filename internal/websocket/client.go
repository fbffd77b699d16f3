// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/realtime"
)

// Transport defaults, used when the matching Config field is zero.
const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 * 1024
	defaultSendBuffer     = 256
	defaultEventRate      = 20
	defaultEventBurst     = 40
)

// Config tunes the websocket transport.
type Config struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	SendBuffer     int

	// Per-connection inbound event rate limit.
	EventRate  float64
	EventBurst int

	// AllowedOrigins are matched against the Origin header. "*" allows all.
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.EventRate <= 0 {
		c.EventRate = defaultEventRate
	}
	if c.EventBurst <= 0 {
		c.EventBurst = defaultEventBurst
	}
	return c
}

func (c Config) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// Client is a middleman between the websocket connection and the realtime
// router. It implements realtime.Conn.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	cfg  Config
	log  zerolog.Logger

	send      chan realtime.Outbound
	closing   chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client with a fresh connection id. The connection may
// be nil in tests that only exercise Send and Close.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewClient(hub *Hub, conn *websocket.Conn, cfg Config, log zerolog.Logger) *Client {
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	return &Client{
		id:      id,
		hub:     hub,
		conn:    conn,
		cfg:     cfg,
		log:     log.With().Str("conn_id", id).Logger(),
		send:    make(chan realtime.Outbound, cfg.SendBuffer),
		closing: make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Send queues ev for the write pump. It never blocks: a closed client or a
// full buffer drops the event and reports false.
func (c *Client) Send(ev realtime.Outbound) bool {
	select {
	case <-c.closing:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		metrics.WSErrors.WithLabelValues("buffer_full").Inc()
		c.log.Warn().Str("event", string(ev.Name())).Msg("send buffer full, dropping event")
		return false
	}
}

// Close asks the write pump to flush queued events, send a close frame and
// drop the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closing)
	})
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

// readPump pumps frames from the websocket connection into the router until
// the connection fails or is closed. It tears the session down on exit.
func (c *Client) readPump(ctx context.Context, router *realtime.Router, session *realtime.Session) {
	defer func() {
		router.Disconnect(ctx, session)
		c.hub.unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.log.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(c.cfg.EventRate), c.cfg.EventBurst)

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				metrics.WSErrors.WithLabelValues("read").Inc()
				c.log.Debug().Err(err).Msg("unexpected websocket close error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		metrics.WSMessagesReceived.Inc()

		if !limiter.Allow() {
			metrics.WSErrors.WithLabelValues("rate_limited").Inc()
			c.Send(realtime.ErrorEvent{Code: realtime.CodeRateLimited, Message: "Too many events"})
			continue
		}
		router.HandleFrame(ctx, session, data)
	}
}

// writePump pumps events from the send buffer to the websocket connection
// and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close() // Explicitly ignore error - best-effort cleanup
	}()

	for {
		select {
		case ev := <-c.send:
			if !c.write(ev) {
				return
			}

		case <-c.closing:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.log.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is already queued, without waiting for more.
func (c *Client) flush() {
	for {
		select {
		case ev := <-c.send:
			if !c.write(ev) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(ev realtime.Outbound) bool {
	frame, err := realtime.EncodeOutbound(ev)
	if err != nil {
		c.log.Error().Err(err).Str("event", string(ev.Name())).Msg("failed to encode event")
		return true
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		c.log.Error().Err(err).Msg("failed to set write deadline")
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		metrics.WSErrors.WithLabelValues("write").Inc()
		c.log.Debug().Err(err).Msg("failed to write event")
		return false
	}
	metrics.WSMessagesSent.Inc()
	return true
}
