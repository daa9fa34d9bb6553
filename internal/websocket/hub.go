// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/eventprocessor"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful path (SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// deliveryBuffer is the capacity of the hub's inbound delivery queue.
const deliveryBuffer = 256

// Hub maintains the set of active clients and delivers killmails to the
// clients whose subscriptions match.
type Hub struct {
	clients    map[uint64]*Client
	registry   *Registry
	deliveries chan eventprocessor.Delivery
	sendBuffer int
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub around registry. A nil registry gets a fresh one.
// sendBuffer is the per-client outbound queue length.
func NewHub(registry *Registry, sendBuffer int) *Hub {
	if registry == nil {
		registry = NewRegistry()
	}
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		clients:    make(map[uint64]*Client),
		registry:   registry,
		deliveries: make(chan eventprocessor.Delivery, deliveryBuffer),
		sendBuffer: sendBuffer,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Registry returns the hub's subscription registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// RunWithContext runs the hub until ctx is canceled, then closes every
// client and returns ctx.Err().
//
// Selection is prioritized: shutdown first, then client lifecycle events,
// then deliveries, so a client registered before a delivery always sees it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case d := <-h.deliveries:
			h.deliverToClients(d)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	metrics.GatewayConnections.Set(float64(n))
	logging.Debug().Uint64("client_id", c.id).Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		h.dropLocked(c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	// A slow client dropped earlier may have resubscribed before its read
	// pump noticed the close.
	h.registry.Remove(c.id)

	if ok {
		metrics.GatewayConnections.Set(float64(n))
		logging.Debug().Uint64("client_id", c.id).Int("total_clients", n).Msg("websocket client disconnected")
	}
}

// dropLocked removes c from the hub and registry and closes its send
// queue. h.mu must be held.
func (h *Hub) dropLocked(c *Client) {
	delete(h.clients, c.id)
	h.registry.Remove(c.id)
	c.close()
}

// unregister hands c to the run loop, or removes it directly if the loop
// is not running.
func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-time.After(writeWait):
		h.removeClient(c)
	}
}

// Deliver queues a delivery for fan-out. It never blocks; when the queue is
// full the delivery is dropped and counted.
func (h *Hub) Deliver(d eventprocessor.Delivery) {
	select {
	case h.deliveries <- d:
	default:
		metrics.GatewayDropped.Inc()
		logging.Warn().Int64("killmail_id", d.Killmail.KillmailID).Msg("delivery queue full, dropping killmail")
	}
}

// deliverToClients sends d to every matching client in ID order. Clients
// whose send queue is full are disconnected.
func (h *Hub) deliverToClients(d eventprocessor.Delivery) {
	ids := h.registry.Match(d.Topics)
	if len(ids) == 0 {
		return
	}

	payload, err := MarshalMessage(Message{Type: MessageTypeKillmail, Data: d.Killmail})
	if err != nil {
		logging.Error().Err(err).Int64("killmail_id", d.Killmail.KillmailID).Msg("failed to encode killmail for delivery")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var toRemove []*Client
	for _, id := range ids {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		if client.enqueue(payload) {
			metrics.GatewayDeliveries.Inc()
			continue
		}
		toRemove = append(toRemove, client)
	}

	for _, client := range toRemove {
		metrics.GatewayDropped.Inc()
		logging.Warn().Uint64("client_id", client.id).Msg("websocket client too slow, disconnecting")
		h.dropLocked(client)
	}
	if len(toRemove) > 0 {
		metrics.GatewayConnections.Set(float64(len(h.clients)))
	}
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// closeAllClients closes clients in ID order.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		h.dropLocked(client)
	}
	metrics.GatewayConnections.Set(0)
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
