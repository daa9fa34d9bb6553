// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

/*
Package api is the HTTP surface of the server: the gateway WebSocket upgrade,
the health endpoints and the Prometheus scrape endpoint, mounted on a chi
router.

Middleware order:

	RequestID → RealIP → Recoverer → PrometheusMetrics → CORS

/ws additionally carries an httprate per-IP limit on new connections
(gateway.connect_rate_limit per minute). After a successful upgrade the
connection belongs to the websocket package; see websocket.Client.

JSON responses use a common envelope:

	{"success":true,"data":{...},"meta":{"request_id":"...","timestamp":"..."}}
*/
package api
