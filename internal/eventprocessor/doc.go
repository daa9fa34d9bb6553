// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

// Package eventprocessor is the distribution bus between the workers that
// enrich killmails and the gateways that stream them to clients.
//
// # Architecture
//
// Workers publish one message per enriched killmail on a single NATS
// subject. Every gateway process subscribes to that subject without a
// queue group, so each gateway receives every record:
//
//	┌──────────┐  ┌──────────┐
//	│ worker 1 │  │ worker 2 │
//	└────┬─────┘  └────┬─────┘
//	     └──────┬──────┘
//	            ▼
//	   ┌─────────────────┐
//	   │  NATS subject   │  ← core NATS, broadcast
//	   └───────┬─────────┘
//	     ┌─────┴──────┐
//	     ▼            ▼
//	┌──────────┐ ┌──────────┐
//	│ gateway  │ │ gateway  │
//	└──────────┘ └──────────┘
//
// The payload is {record, topics}: the topics are computed once by the
// publisher, and gateways only intersect them with client subscriptions.
//
// # Components
//
//   - EmbeddedServer: in-process NATS server for single-node deployments
//   - Publisher: Watermill NATS publisher behind a circuit breaker
//   - NewSubscriber: Watermill NATS subscriber with no queue group
//   - Bus: Watermill router (Recoverer, Deduplicator) fanning decoded
//     deliveries out to in-process Subscribe channels
//
// Tests run the Bus over Watermill's gochannel pub/sub.
//
// # Deduplication
//
// Two sources can race to process the same killmail. Persistence absorbs
// that, but both would publish. The router drops a second delivery of the
// same killmail_id and hash seen within the dedupe TTL.
package eventprocessor
