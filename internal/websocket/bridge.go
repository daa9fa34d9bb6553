// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package websocket

import (
	"context"

	"github.com/EVE-KILL/Thessia-sub001/internal/eventprocessor"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
)

// DeliverySource is implemented by eventprocessor.Bus.
type DeliverySource interface {
	Subscribe(ctx context.Context) <-chan eventprocessor.Delivery
}

// Bridge forwards bus deliveries to the hub.
type Bridge struct {
	source DeliverySource
	hub    *Hub
}

// NewBridge connects source to hub.
func NewBridge(source DeliverySource, hub *Hub) *Bridge {
	return &Bridge{source: source, hub: hub}
}

// Serve subscribes to the source and forwards until ctx is canceled.
func (b *Bridge) Serve(ctx context.Context) error {
	ch := b.source.Subscribe(ctx)
	logging.Info().Msg("websocket bridge subscribed to killmail bus")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-ch:
			if !ok {
				return ctx.Err()
			}
			b.hub.Deliver(d)
		}
	}
}

func (b *Bridge) String() string {
	return "websocket-bridge"
}
