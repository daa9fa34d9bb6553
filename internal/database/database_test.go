// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// testDBSemaphore limits concurrent DuckDB instances across parallel tests.
var testDBSemaphore = make(chan struct{}, 2)

func setupTestDB(t *testing.T, tokens *config.TokenEncryptor) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "256MB", Threads: 2}, tokens)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return db
}

func testKillmail(id int64, value float64) *models.EnrichedKillmail {
	return &models.EnrichedKillmail{
		KillmailID:   id,
		KillmailHash: "hash",
		KillTime:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		SystemID:     30000142,
		RegionID:     10000002,
		TotalValue:   value,
		Victim:       models.EnrichedVictim{CharacterID: 90000001, ShipID: 587},
		Attackers:    []models.EnrichedAttacker{{CharacterID: 90000002, FinalBlow: true}},
	}
}

func TestUpsertKillmail_Idempotent(t *testing.T) {
	db := setupTestDB(t, nil)
	ctx := context.Background()

	if err := db.UpsertKillmail(ctx, testKillmail(1, 100)); err != nil {
		t.Fatalf("UpsertKillmail: %v", err)
	}
	if err := db.UpsertKillmail(ctx, testKillmail(1, 250)); err != nil {
		t.Fatalf("UpsertKillmail again: %v", err)
	}

	n, err := db.CountKillmails(ctx)
	if err != nil {
		t.Fatalf("CountKillmails: %v", err)
	}
	if n != 1 {
		t.Errorf("CountKillmails = %d, want 1", n)
	}

	got, err := db.Killmail(ctx, 1)
	if err != nil {
		t.Fatalf("Killmail: %v", err)
	}
	if got.TotalValue != 250 {
		t.Errorf("TotalValue = %v, want 250", got.TotalValue)
	}
	if len(got.Attackers) != 1 || !got.Attackers[0].FinalBlow {
		t.Errorf("attackers not round-tripped: %+v", got.Attackers)
	}
}

func TestUpsertKillmail_Concurrent(t *testing.T) {
	db := setupTestDB(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			errs <- db.UpsertKillmail(ctx, testKillmail(7, v))
		}(float64(i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent upsert: %v", err)
		}
	}
	n, err := db.CountKillmails(ctx)
	if err != nil {
		t.Fatalf("CountKillmails: %v", err)
	}
	if n != 1 {
		t.Errorf("CountKillmails = %d, want 1", n)
	}
}

func TestUpsertKillmail_ClearsPlaceholder(t *testing.T) {
	db := setupTestDB(t, nil)
	ctx := context.Background()

	at := time.Now().Add(time.Hour)
	if _, err := db.UpsertPlaceholder(ctx, 3, "hash", &at); err != nil {
		t.Fatalf("UpsertPlaceholder: %v", err)
	}
	if err := db.UpsertKillmail(ctx, testKillmail(3, 1)); err != nil {
		t.Fatalf("UpsertKillmail: %v", err)
	}
	if _, err := db.Placeholder(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Placeholder after upsert: err = %v, want ErrNotFound", err)
	}
}

func TestKillmail_NotFound(t *testing.T) {
	db := setupTestDB(t, nil)
	if _, err := db.Killmail(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExistingKillmailIDs(t *testing.T) {
	db := setupTestDB(t, nil)
	ctx := context.Background()

	for _, id := range []int64{10, 20, 30} {
		if err := db.UpsertKillmail(ctx, testKillmail(id, 1)); err != nil {
			t.Fatalf("UpsertKillmail(%d): %v", id, err)
		}
	}

	ids := make([]int64, 0, 1200)
	for i := int64(1); i <= 1200; i++ {
		ids = append(ids, i)
	}
	found, err := db.ExistingKillmailIDs(ctx, ids)
	if err != nil {
		t.Fatalf("ExistingKillmailIDs: %v", err)
	}
	if len(found) != 3 {
		t.Errorf("found %d ids, want 3", len(found))
	}
	for _, id := range []int64{10, 20, 30} {
		if _, ok := found[id]; !ok {
			t.Errorf("missing id %d", id)
		}
	}

	ok, err := db.KillmailExists(ctx, 20)
	if err != nil || !ok {
		t.Errorf("KillmailExists(20) = %v, %v", ok, err)
	}
}

func TestUpsertPlaceholder_Visibility(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	early := base.Add(time.Hour)
	late := base.Add(3 * time.Hour)

	tests := []struct {
		name   string
		first  *time.Time
		second *time.Time
		want   *time.Time
	}{
		{"earlier delay wins", &late, &early, &early},
		{"later delay ignored", &early, &late, &early},
		{"immediate overrides delay", &late, nil, nil},
		{"delay never postpones immediate", nil, &late, nil},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t, nil)
			ctx := context.Background()
			id := int64(100 + i)

			if _, err := db.UpsertPlaceholder(ctx, id, "h", tt.first); err != nil {
				t.Fatalf("first upsert: %v", err)
			}
			p, err := db.UpsertPlaceholder(ctx, id, "h", tt.second)
			if err != nil {
				t.Fatalf("second upsert: %v", err)
			}
			stored, err := db.Placeholder(ctx, id)
			if err != nil {
				t.Fatalf("Placeholder: %v", err)
			}
			for _, got := range []*time.Time{p.VisibleAt, stored.VisibleAt} {
				if !sameTime(got, tt.want) {
					t.Errorf("VisibleAt = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestDuePlaceholders(t *testing.T) {
	db := setupTestDB(t, nil)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	for id, at := range map[int64]*time.Time{1: &past, 2: &future, 3: nil} {
		if _, err := db.UpsertPlaceholder(ctx, id, "h", at); err != nil {
			t.Fatalf("UpsertPlaceholder(%d): %v", id, err)
		}
	}

	due, err := db.DuePlaceholders(ctx, now, 10)
	if err != nil {
		t.Fatalf("DuePlaceholders: %v", err)
	}
	if len(due) != 2 || due[0].KillmailID != 3 || due[1].KillmailID != 1 {
		t.Fatalf("due = %+v, want killmails 3 then 1", due)
	}

	if err := db.MarkPlaceholdersQueued(ctx, []int64{1, 3}); err != nil {
		t.Fatalf("MarkPlaceholdersQueued: %v", err)
	}
	due, err = db.DuePlaceholders(ctx, now, 10)
	if err != nil {
		t.Fatalf("DuePlaceholders: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("due after queued = %+v, want none", due)
	}
}

func TestRequeueAndDeletePlaceholder(t *testing.T) {
	db := setupTestDB(t, nil)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []int64{1, 2} {
		if _, err := db.UpsertPlaceholder(ctx, id, "h", nil); err != nil {
			t.Fatalf("UpsertPlaceholder(%d): %v", id, err)
		}
	}
	if err := db.MarkPlaceholdersQueued(ctx, []int64{1, 2}); err != nil {
		t.Fatalf("MarkPlaceholdersQueued: %v", err)
	}

	retryAt := now.Add(time.Hour)
	if err := db.RequeuePlaceholder(ctx, 1, retryAt); err != nil {
		t.Fatalf("RequeuePlaceholder: %v", err)
	}
	if err := db.DeletePlaceholder(ctx, 2); err != nil {
		t.Fatalf("DeletePlaceholder: %v", err)
	}
	if err := db.RequeuePlaceholder(ctx, 999, retryAt); err != nil {
		t.Errorf("RequeuePlaceholder(unknown) = %v, want nil", err)
	}

	if due, err := db.DuePlaceholders(ctx, now, 10); err != nil || len(due) != 0 {
		t.Fatalf("due before retry time = %+v, %v, want none", due, err)
	}
	due, err := db.DuePlaceholders(ctx, retryAt, 10)
	if err != nil {
		t.Fatalf("DuePlaceholders: %v", err)
	}
	if len(due) != 1 || due[0].KillmailID != 1 {
		t.Fatalf("due at retry time = %+v, want killmail 1", due)
	}
	if _, err := db.Placeholder(ctx, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("Placeholder(2) err = %v, want ErrNotFound", err)
	}
}

func testUser(id int64) *models.UserCredential {
	return &models.UserCredential{
		CharacterID:                  id,
		CharacterName:                "Pilot",
		CorporationID:                98000001,
		AccessToken:                  "access-" + time.Now().Format("150405"),
		RefreshToken:                 "refresh",
		ExpiresAt:                    time.Now().Add(20 * time.Minute),
		CanFetchCorporationKillmails: true,
		PollingActive:                true,
	}
}

func TestUsers_Lifecycle(t *testing.T) {
	db := setupTestDB(t, nil)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []int64{1, 2, 3} {
		if err := db.UpsertUser(ctx, testUser(id)); err != nil {
			t.Fatalf("UpsertUser(%d): %v", id, err)
		}
	}
	if err := db.TouchLastChecked(ctx, 2, now); err != nil {
		t.Fatalf("TouchLastChecked: %v", err)
	}
	if err := db.DeactivatePolling(ctx, 3); err != nil {
		t.Fatalf("DeactivatePolling: %v", err)
	}

	stale, err := db.StaleUsers(ctx, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("StaleUsers: %v", err)
	}
	if len(stale) != 1 || stale[0].CharacterID != 1 {
		t.Fatalf("stale = %+v, want only user 1", stale)
	}

	u3, err := db.User(ctx, 3)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if u3.PollingActive {
		t.Error("user 3 should stay deactivated")
	}

	if err := db.ClearCorporationCapability(ctx, 1); err != nil {
		t.Fatalf("ClearCorporationCapability: %v", err)
	}
	u1, err := db.User(ctx, 1)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if u1.CanFetchCorporationKillmails {
		t.Error("corporation capability should be cleared")
	}
	if !u1.PollingActive {
		t.Error("clearing the capability must not stop polling")
	}

	if err := db.DeactivatePolling(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeactivatePolling(unknown) err = %v, want ErrNotFound", err)
	}
}

func TestUsers_TokensEncrypted(t *testing.T) {
	enc, err := config.NewTokenEncryptor("test-secret")
	if err != nil {
		t.Fatalf("NewTokenEncryptor: %v", err)
	}
	db := setupTestDB(t, enc)
	ctx := context.Background()

	u := testUser(42)
	u.AccessToken = "plain-access"
	if err := db.UpsertUser(ctx, u); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	var stored string
	if err := db.Conn().QueryRowContext(ctx, `SELECT access_token FROM users WHERE character_id = 42`).Scan(&stored); err != nil {
		t.Fatalf("raw select: %v", err)
	}
	if stored == "plain-access" {
		t.Error("access token stored in plaintext")
	}

	expires := time.Now().Add(20 * time.Minute).Truncate(time.Second)
	if err := db.SaveTokens(ctx, 42, "new-access", "new-refresh", expires); err != nil {
		t.Fatalf("SaveTokens: %v", err)
	}
	got, err := db.User(ctx, 42)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if got.AccessToken != "new-access" || got.RefreshToken != "new-refresh" {
		t.Errorf("tokens = %q/%q", got.AccessToken, got.RefreshToken)
	}
	if !got.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expires)
	}
}

func TestCharacters(t *testing.T) {
	db := setupTestDB(t, nil)
	ctx := context.Background()

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := db.UpsertCharacter(ctx, &models.Character{ID: 1, Name: "Known", LastActive: &old}); err != nil {
		t.Fatalf("UpsertCharacter: %v", err)
	}

	missing, err := db.FlagForProcessing(ctx, []int64{1, 2, 2})
	if err != nil {
		t.Fatalf("FlagForProcessing: %v", err)
	}
	if len(missing) != 1 || missing[0] != 2 {
		t.Errorf("missing = %v, want [2]", missing)
	}

	newer := old.Add(24 * time.Hour)
	if err := db.TouchLastActive(ctx, []int64{1}, newer); err != nil {
		t.Fatalf("TouchLastActive: %v", err)
	}
	if err := db.TouchLastActive(ctx, []int64{1}, old.Add(-time.Hour)); err != nil {
		t.Fatalf("TouchLastActive older: %v", err)
	}

	c, err := db.Character(ctx, 1)
	if err != nil {
		t.Fatalf("Character: %v", err)
	}
	if !c.NeedsProcessing {
		t.Error("character should be flagged for processing")
	}
	if c.LastActive == nil || !c.LastActive.Equal(newer) {
		t.Errorf("LastActive = %v, want %v", c.LastActive, newer)
	}

	if err := db.UpsertCharacter(ctx, &models.Character{ID: 1, Name: "Known", CorporationID: 98000001}); err != nil {
		t.Fatalf("UpsertCharacter: %v", err)
	}
	c, err = db.Character(ctx, 1)
	if err != nil {
		t.Fatalf("Character: %v", err)
	}
	if c.NeedsProcessing {
		t.Error("recompute should clear needs_processing")
	}
	if c.LastActive == nil || !c.LastActive.Equal(newer) {
		t.Errorf("LastActive lost on recompute: %v", c.LastActive)
	}
}

func TestReferenceLookups(t *testing.T) {
	db := setupTestDB(t, nil)
	ctx := context.Background()

	seed := &ReferenceSeed{
		Regions:        map[int64]string{10000002: "The Forge"},
		Constellations: []models.SolarSystem{{ConstellationID: 20000020, ConstellationName: "Kimotoro", RegionID: 10000002}},
		Systems:        []models.SolarSystem{{ID: 30000142, Name: "Jita", Security: 0.95, ConstellationID: 20000020, RegionID: 10000002}},
		Groups:         []models.ItemType{{GroupID: 30, GroupName: "Titan", CategoryID: 6}},
		Types: []models.ItemType{
			{ID: 671, Name: "Erebus", GroupID: 30},
			{ID: 999671, Name: "Erebus Blueprint", GroupID: 30},
		},
		Celestials: []models.Celestial{{ID: 40009077, Name: "Jita IV", SystemID: 30000142, X: 1, Y: 2, Z: 3}},
		Names: map[models.EntityKind]map[int64]string{
			models.EntityCorporation: {1000125: "CONCORD"},
			models.EntityCharacter:   {90000001: "Pilot"},
		},
	}
	if err := db.SeedReference(ctx, seed); err != nil {
		t.Fatalf("SeedReference: %v", err)
	}

	sys, err := db.SolarSystem(ctx, 30000142)
	if err != nil {
		t.Fatalf("SolarSystem: %v", err)
	}
	if sys.RegionName != "The Forge" || sys.ConstellationName != "Kimotoro" || sys.Security != 0.95 {
		t.Errorf("SolarSystem = %+v", sys)
	}

	typ, err := db.ItemType(ctx, 671)
	if err != nil {
		t.Fatalf("ItemType: %v", err)
	}
	if typ.GroupName != "Titan" || typ.CategoryID != 6 {
		t.Errorf("ItemType = %+v", typ)
	}
	bp, err := db.ItemTypeByName(ctx, "Erebus Blueprint")
	if err != nil || bp.ID != 999671 {
		t.Errorf("ItemTypeByName = %+v, %v", bp, err)
	}

	cel, err := db.Celestials(ctx, 30000142)
	if err != nil || len(cel) != 1 {
		t.Errorf("Celestials = %+v, %v", cel, err)
	}

	name, err := db.EntityName(ctx, models.EntityCorporation, 1000125)
	if err != nil || name != "CONCORD" {
		t.Errorf("EntityName(corporation) = %q, %v", name, err)
	}
	name, err = db.EntityName(ctx, models.EntityCharacter, 90000001)
	if err != nil || name != "Pilot" {
		t.Errorf("EntityName(character) = %q, %v", name, err)
	}
	if _, err := db.EntityName(ctx, models.EntityAlliance, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("EntityName(unknown) err = %v, want ErrNotFound", err)
	}
}

func TestPrices(t *testing.T) {
	db := setupTestDB(t, nil)
	ctx := context.Background()

	day := func(d int) time.Time { return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC) }
	for d, v := range map[int]float64{5: 100, 10: 200, 20: 300} {
		if err := db.UpsertPrice(ctx, 34, day(d), v); err != nil {
			t.Fatalf("UpsertPrice: %v", err)
		}
	}

	tests := []struct {
		name string
		at   time.Time
		want float64
	}{
		{"exact day", day(10), 200},
		{"latest before", day(15).Add(13 * time.Hour), 200},
		{"earliest after when none before", day(1), 100},
		{"after all", day(28), 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := db.Price(ctx, 34, tt.at)
			if err != nil || !ok {
				t.Fatalf("Price = %v, %v, %v", got, ok, err)
			}
			if got != tt.want {
				t.Errorf("Price = %v, want %v", got, tt.want)
			}
		})
	}

	if _, ok, err := db.Price(ctx, 35, day(1)); err != nil || ok {
		t.Errorf("Price(unknown) ok = %v, err = %v", ok, err)
	}
}

func TestCustomPrice(t *testing.T) {
	db := setupTestDB(t, nil)
	ctx := context.Background()

	dated := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if err := db.AddCustomPrice(ctx, 671, nil, 50e9); err != nil {
		t.Fatalf("AddCustomPrice undated: %v", err)
	}
	if err := db.AddCustomPrice(ctx, 671, &dated, 70e9); err != nil {
		t.Fatalf("AddCustomPrice dated: %v", err)
	}

	got, ok, err := db.CustomPrice(ctx, 671, dated.Add(48*time.Hour))
	if err != nil || !ok || got != 70e9 {
		t.Errorf("CustomPrice after date = %v, %v, %v; want 70e9", got, ok, err)
	}
	got, ok, err = db.CustomPrice(ctx, 671, dated.Add(-48*time.Hour))
	if err != nil || !ok || got != 50e9 {
		t.Errorf("CustomPrice before date = %v, %v, %v; want undated 50e9", got, ok, err)
	}
	if _, ok, _ := db.CustomPrice(ctx, 672, dated); ok {
		t.Error("CustomPrice for unknown type should miss")
	}
}
