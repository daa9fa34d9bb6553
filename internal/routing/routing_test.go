// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package routing

import (
	"errors"
	"reflect"
	"testing"

	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

func sampleKillmail() *models.EnrichedKillmail {
	return &models.EnrichedKillmail{
		KillmailID:     123,
		SystemID:       30000142,
		SystemSecurity: 0.5,
		RegionID:       10000002,
		TotalValue:     1_100_000_000,
		Victim: models.EnrichedVictim{
			ShipGroupID:   GroupTitan,
			CharacterID:   90000001,
			CorporationID: 98000001,
			AllianceID:    99000001,
		},
		Attackers: []models.EnrichedAttacker{
			{CharacterID: 90000002, CorporationID: 1000125, FactionID: 500001},
		},
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	s := Classify(sampleKillmail())

	for _, want := range []string{
		TopicAll, Topic10b, Topic5b, TopicHighsec, TopicTitan, TopicBig,
		"victim.90000001", "victim.98000001", "victim.99000001",
		"attacker.90000002", "attacker.1000125", "attacker.500001",
		"system.30000142", "region.10000002",
	} {
		if !s.Has(want) {
			t.Errorf("missing topic %q in %v", want, s.Sorted())
		}
	}
	for _, unwanted := range []string{TopicLowsec, TopicNullsec, TopicSolo, TopicNPC, "victim.0"} {
		if s.Has(unwanted) {
			t.Errorf("unexpected topic %q", unwanted)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	t.Parallel()

	km := sampleKillmail()
	if a, b := Classify(km).Sorted(), Classify(km).Sorted(); !reflect.DeepEqual(a, b) {
		t.Errorf("Classify not deterministic: %v vs %v", a, b)
	}
}

func TestClassifySpace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		regionID int64
		security float64
		want     string
	}{
		{"highsec boundary", 10000002, 0.45, TopicHighsec},
		{"lowsec", 10000002, 0.3, TopicLowsec},
		{"lowsec zero", 10000002, 0.0, TopicLowsec},
		{"nullsec", 10000060, -0.4, TopicNullsec},
		{"wormhole", 11000031, -1.0, TopicWormhole},
		{"abyssal", 12000004, -1.0, TopicAbyssal},
	}

	space := []string{TopicHighsec, TopicLowsec, TopicNullsec, TopicWormhole, TopicAbyssal}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			km := &models.EnrichedKillmail{RegionID: tt.regionID, SystemSecurity: tt.security}
			s := Classify(km)
			for _, topic := range space {
				if got := s.Has(topic); got != (topic == tt.want) {
					t.Errorf("Has(%q) = %v", topic, got)
				}
			}
		})
	}
}

func TestClassifyValueTiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value   float64
		want10b bool
		want5b  bool
	}{
		{499_999_999, false, false},
		{500_000_000, false, true},
		{999_999_999, false, true},
		{1_000_000_000, true, true},
	}
	for _, tt := range tests {
		s := Classify(&models.EnrichedKillmail{TotalValue: tt.value})
		if s.Has(Topic10b) != tt.want10b || s.Has(Topic5b) != tt.want5b {
			t.Errorf("value %.0f: 10b=%v 5b=%v", tt.value, s.Has(Topic10b), s.Has(Topic5b))
		}
	}
}

func TestClassifyFlags(t *testing.T) {
	t.Parallel()

	s := Classify(&models.EnrichedKillmail{IsSolo: true, IsNPC: true, Victim: models.EnrichedVictim{ShipGroupID: 25}})
	for _, want := range []string{TopicSolo, TopicNPC, TopicFrigate, TopicT1} {
		if !s.Has(want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestIsValidTopic(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"all":             true,
		"highsec":         true,
		"victim.90000001": true,
		"attacker.1":      true,
		"system.30000142": true,
		"region.10000002": true,
		"victim.":         false,
		"victim.abc":      false,
		"region.-5":       false,
		"corporation.1":   false,
		"everything":      false,
		"":                false,
	}
	for topic, want := range tests {
		if got := IsValidTopic(topic); got != want {
			t.Errorf("IsValidTopic(%q) = %v, want %v", topic, got, want)
		}
	}
}

func TestParseSubscription(t *testing.T) {
	t.Parallel()

	topics, err := ParseSubscription(" all, victim.123 ,all,")
	if err != nil {
		t.Fatalf("ParseSubscription() error = %v", err)
	}
	if !reflect.DeepEqual(topics, []string{"all", "victim.123"}) {
		t.Errorf("topics = %v", topics)
	}

	topics, err = ParseSubscription("all,bogus,highsec,nope.1")
	if topics != nil {
		t.Errorf("partial topics applied: %v", topics)
	}
	var invalid *InvalidTopicsError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want InvalidTopicsError", err)
	}
	if !reflect.DeepEqual(invalid.Topics, []string{"bogus", "nope.1"}) {
		t.Errorf("invalid topics = %v", invalid.Topics)
	}

	if _, err := ParseSubscription(" , "); err == nil {
		t.Error("empty subscription should be rejected")
	}
}

func TestValidTopicsListsPrefixes(t *testing.T) {
	t.Parallel()

	topics := ValidTopics()
	last := topics[len(topics)-4:]
	want := []string{"victim.<id>", "attacker.<id>", "system.<id>", "region.<id>"}
	if !reflect.DeepEqual(last, want) {
		t.Errorf("prefix entries = %v", last)
	}
	for _, t2 := range topics[:len(topics)-4] {
		if !IsValidTopic(t2) {
			t.Errorf("ValidTopics lists invalid topic %q", t2)
		}
	}
}

func TestNamedTopicVocabulary(t *testing.T) {
	t.Parallel()

	want := []string{
		"10b", "5b", "abyssal", "all", "battlecruiser", "battleship", "big",
		"capital", "citadel", "cruiser", "destroyer", "freighter", "frigate",
		"highsec", "lowsec", "npc", "nullsec", "solo", "supercarrier",
		"t1", "t2", "t3", "titan", "wormhole",
		"victim.<id>", "attacker.<id>", "system.<id>", "region.<id>",
	}
	if got := ValidTopics(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ValidTopics() = %v\nwant %v", got, want)
	}

	for _, topic := range want[:24] {
		t.Run(topic, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSubscription(topic)
			if err != nil {
				t.Fatalf("ParseSubscription(%q) error = %v", topic, err)
			}
			if len(got) != 1 || got[0] != topic {
				t.Errorf("ParseSubscription(%q) = %v", topic, got)
			}
		})
	}

	for _, old := range []string{"wspace", "bigkills", "frigates", "titans"} {
		if IsValidTopic(old) {
			t.Errorf("IsValidTopic(%q) = true, want false", old)
		}
	}
}
