// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

/*
Package models defines the data structures shared across the ingestion pipeline.

Key Components:

  - RawKillmail: the killmail exactly as the game API returns it
  - EnrichedKillmail: the persisted, denormalized record with names, values and flags
  - PendingJob: the unit of work carried by the job queue
  - UserCredential: per-user SSO tokens and polling state
  - FetchResult: the validated Ok/Err result produced at the adapter boundary

Raw payloads never enter the pipeline untyped: every fetch is decoded into
a FetchResult, and only results holding a RawKillmail that passed
validation reach the enrichment engine.
*/
package models
