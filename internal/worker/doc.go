// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

/*
Package worker drains the durable job queues.

A Pool runs a fixed number of goroutines (1 to 5) against one queue. Each
worker claims a job under a lease, runs the Handler and then acknowledges
or fails it:

	Claim ──► Handle ──┬─ nil ─────────► Ack
	                   ├─ error ───────► Fail ─► retry after backoff
	                   └─ Permanent ───► Fail ─► dropped

A panic inside a handler is recovered and treated as a permanent failure
of that job only. Workers wake on the queue's Notify channel and fall back
to polling. On shutdown no new jobs are claimed and in-flight jobs run to
completion.

Two handlers are provided:

  - KillmailProcessor: fetch from ESI, enrich, upsert, classify, publish
  - CharacterProcessor: refresh a character profile flagged by enrichment
*/
package worker
