// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/queue"
	ws "github.com/EVE-KILL/Thessia-sub001/internal/websocket"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KillmailCounter is implemented by stores that can report how many
// killmails they hold. *database.DB implements it.
type KillmailCounter interface {
	CountKillmails(ctx context.Context) (int64, error)
}

// QueueStats reports the depth of one job queue.
type QueueStats interface {
	Name() string
	Stats(ctx context.Context) (queue.Counts, error)
}

// Handler serves the gateway upgrade and health endpoints.
type Handler struct {
	hub       *ws.Hub
	db        Pinger
	queues    []QueueStats
	origins   []string
	startTime time.Time
}

// NewHandler creates a handler. hub is nil when the gateway is disabled.
func NewHandler(hub *ws.Hub, db Pinger, queues []QueueStats, allowedOrigins []string) *Handler {
	return &Handler{
		hub:       hub,
		db:        db,
		queues:    queues,
		origins:   allowedOrigins,
		startTime: time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin admits non-browser clients (no Origin header) and
// browsers from an allowed origin. An empty allow list admits everyone.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue quotes and truncates client-supplied values before they
// reach the log.
func sanitizeLogValue(v string) string {
	if len(v) > 256 {
		v = v[:256]
	}
	return strconv.Quote(v)
}

// WebSocket upgrades the connection and hands it to the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		WriteError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Gateway is disabled")
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn)
	logging.Debug().Uint64("client_id", client.ID()).Str("remote_addr", r.RemoteAddr).Msg("WebSocket client connected")
	client.Start()
}

// QueueDepth is the job count of one queue by state.
type QueueDepth struct {
	Ready   int `json:"ready"`
	Delayed int `json:"delayed"`
	Active  int `json:"active"`
	Total   int `json:"total"`
}

// HealthStatus is the /healthz payload.
type HealthStatus struct {
	Status            string                `json:"status"`
	DatabaseConnected bool                  `json:"database_connected"`
	Queues            map[string]QueueDepth `json:"queues"`
	GatewayEnabled    bool                  `json:"gateway_enabled"`
	GatewayClients    int                   `json:"gateway_clients"`
	StoredKillmails   *int64                `json:"stored_killmails,omitempty"`
	Uptime            float64               `json:"uptime_seconds"`
}

// Health reports database reachability, queue depth and connected gateway
// clients. A degraded service answers 503 so load balancers stop routing to it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:         "healthy",
		Queues:         make(map[string]QueueDepth, len(h.queues)),
		GatewayEnabled: h.hub != nil,
		Uptime:         time.Since(h.startTime).Seconds(),
	}

	status.DatabaseConnected = h.db != nil && h.db.Ping(ctx) == nil
	if !status.DatabaseConnected {
		status.Status = "degraded"
	} else if counter, ok := h.db.(KillmailCounter); ok {
		if n, err := counter.CountKillmails(ctx); err == nil {
			status.StoredKillmails = &n
		}
	}

	for _, q := range h.queues {
		counts, err := q.Stats(ctx)
		if err != nil {
			logging.Warn().Err(err).Str("queue", q.Name()).Msg("Failed to read queue stats")
			status.Status = "degraded"
			continue
		}
		status.Queues[q.Name()] = QueueDepth{
			Ready:   counts.Ready,
			Delayed: counts.Delayed,
			Active:  counts.Active,
			Total:   counts.Total(),
		}
	}

	if h.hub != nil {
		status.GatewayClients = h.hub.GetClientCount()
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, r, code, &APIResponse{Success: code == http.StatusOK, Data: status})
}

// HealthLive answers 200 while the process is up, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}
