// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package models

import (
	"fmt"
	"time"
)

// Job priorities. Higher values are served first.
const (
	PriorityDefault  = 1
	PriorityCatchUp  = 4
	PriorityBulk     = 5
	PriorityWar      = 100
	DefaultAttempts  = 10
	DefaultBackoff   = 5 * time.Second
	QueueKillmails   = "killmails"
	QueueCharacters  = "characters"
	JobKindKillmail  = "killmail"
	JobKindCharacter = "character"
)

// PendingJob is a killmail reference waiting to be fetched and processed.
type PendingJob struct {
	KillmailID int64  `json:"killmail_id" validate:"gt=0"`
	Hash       string `json:"hash" validate:"required"`
	WarID      int64  `json:"war_id,omitempty"`
	Priority   int    `json:"priority"`
}

// DedupeKey identifies a job for enqueue-time deduplication.
func (j PendingJob) DedupeKey() string {
	return fmt.Sprintf("km:%d:%s", j.KillmailID, j.Hash)
}

// CharacterJob asks the downstream statistics processor to recompute a character.
type CharacterJob struct {
	CharacterID int64 `json:"character_id" validate:"gt=0"`
}

// KillmailRef is an (ID, hash) pair discovered by a source adapter.
type KillmailRef struct {
	KillmailID int64
	Hash       string
}
