// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

/*
Package sources discovers killmail references and schedules fetch jobs.

Every adapter checks persistence through the same Checker before enqueuing,
and every job carries a dedupe key, so overlapping sources cost at most a
wasted lookup.

Adapters:

  - Realtime: zKillboard RedisQ long-poll, priority 1
  - Feed: zKillboard killstream WebSocket, priority 1
  - History: daily census replay, priority 4 for the scheduled sweep and
    priority 5 for a one-time backfill
  - UserPoll: per-user ESI kill lists with visibility delays
  - Delayed: promotes placeholders whose visibility time has passed
  - Wars: ESI war kill lists, priority 100

Each adapter is a suture.Service: Serve blocks until the context ends and
never returns on a failed iteration.
*/
package sources
