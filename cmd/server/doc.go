// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

// Package main is the entry point for the Thessia server.
//
// Thessia ingests killmail references from zKillboard, registered users and
// war feeds, fetches and enriches each killmail through the game API, stores
// it in DuckDB and broadcasts it over NATS to every gateway instance, which
// fans it out to WebSocket clients by topic.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: koanf v2, defaults then config file then environment
//  2. Database: DuckDB schema, token encryption when a secret is configured
//  3. Job queue: badger store with the killmails and characters queues
//  4. Clients: ESI, SSO, zKillboard RedisQ, WebSocket feed and history
//  5. Enrichment: cached reference data and the enrichment engine
//  6. Bus: embedded or external NATS, watermill publisher and subscriber
//  7. Gateway: WebSocket hub and bus bridge
//  8. Supervisor tree: sources, workers, bus, gateway and the HTTP server
//
// # Configuration
//
// Configuration is loaded via koanf v2 with layered sources (highest priority wins):
//   - Environment variables (THESSIA_ prefix, e.g. THESSIA_NATS_URL)
//   - Config file (CONFIG_PATH, or config.yaml in the working directory)
//   - Built-in defaults
//
// # Backfill Mode
//
// With -backfill-from and -backfill-to the server replays zKillboard's daily
// history for the inclusive range into the killmails queue at bulk priority,
// then exits. A running server drains the queue:
//
//	./thessia -backfill-from 2026-01-01 -backfill-to 2026-01-31
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops the source adapters so nothing new is enqueued
//   - Lets in-flight jobs finish within their job timeout
//   - Closes gateway connections with a going-away frame
//   - Flushes the publisher and shuts down the embedded NATS server
//   - Closes the queue store and the database
package main
