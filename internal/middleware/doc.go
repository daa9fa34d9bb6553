// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

// Package middleware provides the HTTP middleware shared by every route:
// request IDs carried into the logging context and Prometheus request
// metrics labelled by chi route pattern. Both wrap the response writer
// in a way that keeps WebSocket upgrades working.
package middleware
