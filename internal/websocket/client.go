// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024 // subscription lists only
)

// clientIDCounter hands out monotonically increasing client IDs.
var clientIDCounter atomic.Uint64

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn

	// state is only touched by readPump.
	state SessionState

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient creates a client in the Connected state.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:    clientIDCounter.Add(1),
		hub:   hub,
		conn:  conn,
		state: StateConnected,
		send:  make(chan []byte, hub.sendBuffer),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// enqueue queues payload without blocking. It returns false if the queue is
// full or the client has been closed.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// close closes the send queue once; writePump then sends a close frame.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) reply(msg Message) {
	payload, err := MarshalMessage(msg)
	if err != nil {
		logging.Error().Err(err).Str("message_type", msg.Type).Msg("failed to encode websocket message")
		return
	}
	c.enqueue(payload)
}

// readPump feeds client frames through Dispatch until the connection ends.
func (c *Client) readPump() {
	defer func() {
		c.state = StateClosed
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close error")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		t := Dispatch(c.state, string(data))
		if t.Topics != nil {
			c.hub.registry.Set(c.id, t.Topics)
			logging.Debug().Uint64("client_id", c.id).Strs("topics", t.Topics).Msg("websocket client subscribed")
		}
		if t.Reply.Type == MessageTypeError {
			metrics.GatewaySubscriptionRejects.Inc()
			logging.Debug().Uint64("client_id", c.id).Str("reason", t.Reply.Message).Msg("websocket subscription rejected")
		}
		c.state = t.Next
		if t.Reply.Type != "" {
			c.reply(t.Reply)
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// The hub closed the queue.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("failed to write websocket message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start sends the vocabulary, registers with the hub and starts both pumps.
// If the hub is not running the connection is closed.
func (c *Client) Start() {
	c.reply(InfoMessage())
	select {
	case c.hub.Register <- c:
	case <-time.After(writeWait):
		logging.Warn().Uint64("client_id", c.id).Msg("websocket hub not running, closing connection")
		_ = c.conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}
