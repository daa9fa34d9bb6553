// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

// Package routing derives subscription topics from enriched killmails.
//
// The vocabulary is closed: a fixed set of named topics plus four
// entity-scoped prefixes (victim., attacker., system., region.) followed by
// a numeric ID.
package routing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// Named topics.
const (
	TopicAll           = "all"
	Topic10b           = "10b"
	Topic5b            = "5b"
	TopicAbyssal       = "abyssal"
	TopicWormhole      = "wormhole"
	TopicHighsec       = "highsec"
	TopicLowsec        = "lowsec"
	TopicNullsec       = "nullsec"
	TopicBig           = "big"
	TopicSolo          = "solo"
	TopicNPC           = "npc"
	TopicCitadel       = "citadel"
	TopicT1            = "t1"
	TopicT2            = "t2"
	TopicT3            = "t3"
	TopicFrigate       = "frigate"
	TopicDestroyer     = "destroyer"
	TopicCruiser       = "cruiser"
	TopicBattlecruiser = "battlecruiser"
	TopicBattleship    = "battleship"
	TopicCapital       = "capital"
	TopicFreighter     = "freighter"
	TopicSupercarrier  = "supercarrier"
	TopicTitan         = "titan"
)

// Entity-scoped topic prefixes.
const (
	PrefixVictim   = "victim."
	PrefixAttacker = "attacker."
	PrefixSystem   = "system."
	PrefixRegion   = "region."
)

// Thresholds.
const (
	Value10b = 1_000_000_000
	Value5b  = 500_000_000

	HighsecMin = 0.45
	LowsecMin  = 0.0

	WormholeRegionMin = 11000000
	WormholeRegionMax = 11999999
	AbyssalRegionMin  = 12000000
	AbyssalRegionMax  = 12999999
)

var shipTopics = []string{
	TopicFrigate, TopicDestroyer, TopicCruiser, TopicBattlecruiser, TopicBattleship,
	TopicCapital, TopicFreighter, TopicSupercarrier, TopicTitan, TopicCitadel,
	TopicBig, TopicT1, TopicT2, TopicT3,
}

var prefixes = []string{PrefixVictim, PrefixAttacker, PrefixSystem, PrefixRegion}

var namedTopics = func() map[string]struct{} {
	m := map[string]struct{}{
		TopicAll: {}, Topic10b: {}, Topic5b: {}, TopicAbyssal: {}, TopicWormhole: {},
		TopicHighsec: {}, TopicLowsec: {}, TopicNullsec: {}, TopicSolo: {}, TopicNPC: {},
	}
	for _, t := range shipTopics {
		m[t] = struct{}{}
	}
	return m
}()

// ValidTopics returns the named vocabulary followed by the entity prefixes
// written as "victim.<id>" etc. The order is stable.
func ValidTopics() []string {
	out := make([]string, 0, len(namedTopics)+len(prefixes))
	for t := range namedTopics {
		out = append(out, t)
	}
	sort.Strings(out)
	for _, p := range prefixes {
		out = append(out, p+"<id>")
	}
	return out
}

// IsValidTopic reports whether topic is in the vocabulary.
func IsValidTopic(topic string) bool {
	if _, ok := namedTopics[topic]; ok {
		return true
	}
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(topic, p); ok {
			id, err := strconv.ParseInt(rest, 10, 64)
			return err == nil && id > 0
		}
	}
	return false
}

// InvalidTopicsError lists rejected topics.
type InvalidTopicsError struct {
	Topics []string
}

func (e *InvalidTopicsError) Error() string {
	return fmt.Sprintf("invalid topics: %s", strings.Join(e.Topics, ", "))
}

// ParseSubscription splits a comma-separated subscription request and
// validates every topic. Either all topics are accepted or none are.
func ParseSubscription(raw string) ([]string, error) {
	var topics []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		t := strings.TrimSpace(part)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics given")
	}
	if err := ValidateTopics(topics); err != nil {
		return nil, err
	}
	return topics, nil
}

// ValidateTopics returns an *InvalidTopicsError naming every unknown topic.
func ValidateTopics(topics []string) error {
	var bad []string
	for _, t := range topics {
		if !IsValidTopic(t) {
			bad = append(bad, t)
		}
	}
	if len(bad) > 0 {
		return &InvalidTopicsError{Topics: bad}
	}
	return nil
}

// Set is a set of topics.
type Set map[string]struct{}

func (s Set) add(topic string) {
	s[topic] = struct{}{}
}

func (s Set) addID(prefix string, id int64) {
	if id > 0 {
		s[prefix+strconv.FormatInt(id, 10)] = struct{}{}
	}
}

// Has reports whether topic is in the set.
func (s Set) Has(topic string) bool {
	_, ok := s[topic]
	return ok
}

// Intersects reports whether any of topics is in the set.
func (s Set) Intersects(topics []string) bool {
	for _, t := range topics {
		if s.Has(t) {
			return true
		}
	}
	return false
}

// Sorted returns the topics in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Classify computes the topic set for a killmail.
func Classify(km *models.EnrichedKillmail) Set {
	s := Set{TopicAll: {}}

	if km.TotalValue >= Value10b {
		s.add(Topic10b)
	}
	if km.TotalValue >= Value5b {
		s.add(Topic5b)
	}

	switch {
	case km.RegionID >= AbyssalRegionMin && km.RegionID <= AbyssalRegionMax:
		s.add(TopicAbyssal)
	case km.RegionID >= WormholeRegionMin && km.RegionID <= WormholeRegionMax:
		s.add(TopicWormhole)
	case km.SystemSecurity >= HighsecMin:
		s.add(TopicHighsec)
	case km.SystemSecurity >= LowsecMin:
		s.add(TopicLowsec)
	default:
		s.add(TopicNullsec)
	}

	for _, t := range TopicsForGroup(km.Victim.ShipGroupID) {
		s.add(t)
	}

	if km.IsSolo {
		s.add(TopicSolo)
	}
	if km.IsNPC {
		s.add(TopicNPC)
	}

	v := km.Victim
	s.addID(PrefixVictim, v.CharacterID)
	s.addID(PrefixVictim, v.CorporationID)
	s.addID(PrefixVictim, v.AllianceID)
	s.addID(PrefixVictim, v.FactionID)
	for i := range km.Attackers {
		a := &km.Attackers[i]
		s.addID(PrefixAttacker, a.CharacterID)
		s.addID(PrefixAttacker, a.CorporationID)
		s.addID(PrefixAttacker, a.AllianceID)
		s.addID(PrefixAttacker, a.FactionID)
	}
	s.addID(PrefixSystem, km.SystemID)
	s.addID(PrefixRegion, km.RegionID)

	return s
}
