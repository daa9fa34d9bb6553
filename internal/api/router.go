// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/middleware"
)

// NewRouter builds the HTTP surface:
//
//	GET /ws           gateway upgrade, rate limited per IP
//	GET /healthz      queue depth, gateway clients, database status
//	GET /healthz/live liveness
//	GET /metrics      prometheus
//
// /ws is only mounted when the gateway is enabled.
func NewRouter(cfg config.GatewayConfig, handler *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(corsHandler(cfg.AllowedOrigins))

	r.Get("/healthz", handler.Health)
	r.Get("/healthz/live", handler.HealthLive)
	r.Handle("/metrics", promhttp.Handler())

	if cfg.Enabled {
		r.Group(func(r chi.Router) {
			if cfg.ConnectRateLimit > 0 {
				r.Use(httprate.LimitByIP(cfg.ConnectRateLimit, time.Minute))
			}
			r.Get("/ws", handler.WebSocket)
		})
	}

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
