// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package websocket

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/EVE-KILL/Thessia-sub001/internal/routing"
)

// Message types for the client protocol.
const (
	MessageTypeInfo       = "info"
	MessageTypeSubscribed = "subscribed"
	MessageTypeError      = "error"
	MessageTypeKillmail   = "killmail"
)

// Message is a server-to-client frame. Only the fields for Type are set.
type Message struct {
	Type        string      `json:"type"`
	ValidTopics []string    `json:"validTopics,omitempty"`
	Topics      []string    `json:"topics,omitempty"`
	Message     string      `json:"message,omitempty"`
	Data        interface{} `json:"data,omitempty"`
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// InfoMessage is the first frame on every connection.
func InfoMessage() Message {
	return Message{Type: MessageTypeInfo, ValidTopics: routing.ValidTopics()}
}

// SessionState is the lifecycle state of one client connection.
type SessionState int

const (
	StateConnected SessionState = iota
	StateSubscribed
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transition is the outcome of one Dispatch call.
type Transition struct {
	Next SessionState

	// Reply is sent to the client when Type is non-empty.
	Reply Message

	// Topics replaces the connection's subscription when non-nil.
	Topics []string
}

// Dispatch handles one client text frame in the given state. It has no side
// effects; the caller applies the returned transition. A rejected list
// keeps the current state and subscription.
func Dispatch(state SessionState, frame string) Transition {
	if state == StateClosed {
		return Transition{Next: StateClosed}
	}

	topics, err := routing.ParseSubscription(strings.TrimSpace(frame))
	if err != nil {
		return Transition{
			Next:  state,
			Reply: Message{Type: MessageTypeError, Message: err.Error()},
		}
	}

	return Transition{
		Next:   StateSubscribed,
		Reply:  Message{Type: MessageTypeSubscribed, Topics: topics},
		Topics: topics,
	}
}
