// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package models

import "time"

// MaxDelayHours is the longest visibility delay a user may configure.
const MaxDelayHours = 72

// PlayerCorporationThreshold separates NPC corporations (at or below) from
// player corporations (above).
const PlayerCorporationThreshold = 1_999_999

// UserCredential holds a user's SSO tokens and polling state.
type UserCredential struct {
	CharacterID                  int64
	CharacterName                string
	CorporationID                int64
	AccessToken                  string
	RefreshToken                 string
	ExpiresAt                    time.Time
	CanFetchCorporationKillmails bool
	PollingActive                bool
	LastChecked                  time.Time
	DelayHours                   int
}

// IsPlayerCorporation reports whether the user's corporation is player-run.
func (u *UserCredential) IsPlayerCorporation() bool {
	return u.CorporationID > PlayerCorporationThreshold
}

// ExpiresWithin reports whether the access token expires within d of now.
func (u *UserCredential) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !u.ExpiresAt.After(now.Add(d))
}

// Delay returns the configured visibility delay, clamped to [0, 72h].
func (u *UserCredential) Delay() time.Duration {
	h := u.DelayHours
	if h < 0 {
		h = 0
	}
	if h > MaxDelayHours {
		h = MaxDelayHours
	}
	return time.Duration(h) * time.Hour
}

// Placeholder is a discovered killmail that has not been processed yet.
// A nil VisibleAt means the record may be processed immediately.
type Placeholder struct {
	KillmailID int64
	Hash       string
	VisibleAt  *time.Time
	Queued     bool
}
