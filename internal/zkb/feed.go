// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package zkb

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// FeedState is the connection state of the killstream client.
type FeedState int

const (
	Disconnected FeedState = iota
	Connected
	Subscribed
)

func (s FeedState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Subscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// SubscribeMessage is sent once after connecting.
var SubscribeMessage = []byte(`{"action":"sub","channel":"killstream"}`)

type feedMessage struct {
	Action string `json:"action"`
	KillID int64  `json:"killID"`
	Hash   string `json:"hash"`
}

// Dispatch handles one inbound frame for the given state. It returns the
// next state and, for a littlekill event, the reference it carried. Frames
// received before the subscription is in place are dropped.
func Dispatch(state FeedState, frame []byte) (FeedState, *models.KillmailRef, error) {
	if state != Subscribed {
		return state, nil, nil
	}

	var msg feedMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return state, nil, fmt.Errorf("decode killstream frame: %w", err)
	}
	if msg.Action != "littlekill" {
		return state, nil, nil
	}
	if msg.KillID <= 0 || msg.Hash == "" {
		return state, nil, fmt.Errorf("littlekill without killID or hash")
	}
	return state, &models.KillmailRef{KillmailID: msg.KillID, Hash: msg.Hash}, nil
}

// RefHandler receives references discovered by the feed.
type RefHandler func(ctx context.Context, ref models.KillmailRef)

// Feed is a reconnecting killstream client.
type Feed struct {
	url            string
	reconnectDelay time.Duration
	dialer         websocket.Dialer
	readTimeout    time.Duration
}

// NewFeed creates a killstream client.
func NewFeed(cfg config.ZKBConfig) *Feed {
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Feed{
		url:            cfg.WebSocketURL,
		reconnectDelay: delay,
		dialer: websocket.Dialer{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: true,
		},
		readTimeout: 2 * time.Minute,
	}
}

// Run connects, subscribes and forwards references to handle until ctx is
// done. Any close or error is followed by a reconnect after the fixed delay.
func (f *Feed) Run(ctx context.Context, handle RefHandler) error {
	for {
		if err := f.session(ctx, handle); err != nil && ctx.Err() == nil {
			logging.Warn().Err(err).Dur("delay", f.reconnectDelay).Msg("[zkb-ws] Connection lost, reconnecting")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.reconnectDelay):
		}
	}
}

func (f *Feed) session(ctx context.Context, handle RefHandler) error {
	state := Disconnected

	conn, resp, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()
	state = Connected

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteMessage(websocket.TextMessage, SubscribeMessage); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	state = Subscribed
	logging.Info().Str("url", f.url).Str("state", state.String()).Msg("[zkb-ws] Subscribed to killstream")

	for {
		if err := conn.SetReadDeadline(time.Now().Add(f.readTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Msg("[zkb-ws] Connection closed by server")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var ref *models.KillmailRef
		state, ref, err = Dispatch(state, frame)
		if err != nil {
			logging.Debug().Err(err).Msg("[zkb-ws] Ignoring frame")
			continue
		}
		if ref != nil {
			handle(ctx, *ref)
		}
	}
}
