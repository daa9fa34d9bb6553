// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package models

import (
	"testing"
	"time"
)

func TestFetchResult(t *testing.T) {
	t.Parallel()

	ok := Ok(&RawKillmail{KillmailID: 1})
	if !ok.IsOk() || ok.Detail() != nil {
		t.Fatal("Ok result should carry a killmail and no detail")
	}
	if km, present := ok.Killmail(); !present || km.KillmailID != 1 {
		t.Errorf("Killmail() = %v, %v", km, present)
	}

	bad := Err(&ErrorDetail{Source: "esi", Status: 422, Message: "Invalid killmail_id and/or killmail_hash"})
	if bad.IsOk() {
		t.Fatal("Err result should not be Ok")
	}
	if _, present := bad.Killmail(); present {
		t.Error("Err result should not expose a killmail")
	}
	if got := bad.Detail().Error(); got != "esi: status 422: Invalid killmail_id and/or killmail_hash" {
		t.Errorf("unexpected detail message %q", got)
	}

	var zero FetchResult
	if zero.Detail() == nil {
		t.Error("zero result should report a detail")
	}
}

func TestUserCredentialDelayClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hours int
		want  time.Duration
	}{
		{-3, 0},
		{0, 0},
		{12, 12 * time.Hour},
		{72, 72 * time.Hour},
		{500, 72 * time.Hour},
	}

	for _, tt := range tests {
		u := UserCredential{DelayHours: tt.hours}
		if got := u.Delay(); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.hours, got, tt.want)
		}
	}
}

func TestUserCredentialCorporation(t *testing.T) {
	t.Parallel()

	npc := UserCredential{CorporationID: 1000125}
	player := UserCredential{CorporationID: 98000001}

	if npc.IsPlayerCorporation() {
		t.Error("NPC corporation reported as player corporation")
	}
	if !player.IsPlayerCorporation() {
		t.Error("player corporation reported as NPC corporation")
	}
}

func TestExpiresWithin(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	u := UserCredential{ExpiresAt: now.Add(4 * time.Minute)}
	if !u.ExpiresWithin(now, 5*time.Minute) {
		t.Error("token expiring in 4m should be inside a 5m window")
	}
	u.ExpiresAt = now.Add(20 * time.Minute)
	if u.ExpiresWithin(now, 5*time.Minute) {
		t.Error("token expiring in 20m should be outside a 5m window")
	}
}

func TestCharacterIDs(t *testing.T) {
	t.Parallel()

	km := EnrichedKillmail{
		Victim: EnrichedVictim{CharacterID: 10},
		Attackers: []EnrichedAttacker{
			{CharacterID: 20},
			{CharacterID: 0},
			{CharacterID: 10},
			{CharacterID: 30},
		},
	}

	got := km.CharacterIDs()
	want := []int64{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("CharacterIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CharacterIDs()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFinalBlow(t *testing.T) {
	t.Parallel()

	km := RawKillmail{Attackers: []RawAttacker{{CharacterID: 1}, {CharacterID: 2, FinalBlow: true}}}
	if fb := km.FinalBlow(); fb == nil || fb.CharacterID != 2 {
		t.Errorf("FinalBlow() = %+v", fb)
	}
	if (&RawKillmail{}).FinalBlow() != nil {
		t.Error("FinalBlow() on empty attackers should be nil")
	}
}

func TestMergeVisibility(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	early := now.Add(time.Hour)
	late := now.Add(2 * time.Hour)

	tests := []struct {
		name     string
		existing *time.Time
		incoming *time.Time
		want     *time.Time
	}{
		{"both immediate", nil, nil, nil},
		{"existing immediate", nil, &late, nil},
		{"incoming immediate", &late, nil, nil},
		{"earlier incoming", &late, &early, &early},
		{"later incoming", &early, &late, &early},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeVisibility(tt.existing, tt.incoming)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("got %v, want immediate", *got)
			case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
				t.Errorf("got %v, want %v", got, *tt.want)
			}
		})
	}
}
