// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package models

import "time"

// Position is a point in a solar system, in meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IsOrigin reports whether the position carries no location data.
func (p Position) IsOrigin() bool {
	return p.X == 0 && p.Y == 0 && p.Z == 0
}

// RawItem is an inventory entry on the victim's ship. Containers carry
// their contents in Items.
type RawItem struct {
	ItemTypeID        int64     `json:"item_type_id" validate:"gt=0"`
	Flag              int       `json:"flag"`
	QuantityDropped   int64     `json:"quantity_dropped,omitempty" validate:"gte=0"`
	QuantityDestroyed int64     `json:"quantity_destroyed,omitempty" validate:"gte=0"`
	Singleton         int       `json:"singleton"`
	Items             []RawItem `json:"items,omitempty" validate:"dive"`
}

// RawVictim is the destroyed party of a killmail.
type RawVictim struct {
	CharacterID   int64     `json:"character_id,omitempty"`
	CorporationID int64     `json:"corporation_id,omitempty"`
	AllianceID    int64     `json:"alliance_id,omitempty"`
	FactionID     int64     `json:"faction_id,omitempty"`
	ShipTypeID    int64     `json:"ship_type_id" validate:"gt=0"`
	DamageTaken   int64     `json:"damage_taken"`
	Items         []RawItem `json:"items,omitempty" validate:"dive"`
	Position      *Position `json:"position,omitempty"`
}

// RawAttacker is one participant credited on a killmail.
type RawAttacker struct {
	CharacterID    int64   `json:"character_id,omitempty"`
	CorporationID  int64   `json:"corporation_id,omitempty"`
	AllianceID     int64   `json:"alliance_id,omitempty"`
	FactionID      int64   `json:"faction_id,omitempty"`
	ShipTypeID     int64   `json:"ship_type_id,omitempty"`
	WeaponTypeID   int64   `json:"weapon_type_id,omitempty"`
	DamageDone     int64   `json:"damage_done"`
	SecurityStatus float64 `json:"security_status"`
	FinalBlow      bool    `json:"final_blow"`
}

// RawKillmail is the killmail as returned by GET /killmails/{id}/{hash}/.
// The hash is not part of the API body and is filled in by the fetcher.
type RawKillmail struct {
	KillmailID    int64         `json:"killmail_id" validate:"gt=0"`
	Hash          string        `json:"-"`
	KillmailTime  time.Time     `json:"killmail_time" validate:"required"`
	SolarSystemID int64         `json:"solar_system_id" validate:"gt=0"`
	MoonID        int64         `json:"moon_id,omitempty"`
	WarID         int64         `json:"war_id,omitempty"`
	Victim        RawVictim     `json:"victim"`
	Attackers     []RawAttacker `json:"attackers" validate:"min=1,dive"`
}

// FinalBlow returns the attacker credited with the final blow, or nil.
func (k *RawKillmail) FinalBlow() *RawAttacker {
	for i := range k.Attackers {
		if k.Attackers[i].FinalBlow {
			return &k.Attackers[i]
		}
	}
	return nil
}

// EnrichedItem is a victim item with its resolved name and valuation.
type EnrichedItem struct {
	TypeID            int64          `json:"type_id"`
	TypeName          string         `json:"type_name"`
	GroupID           int64          `json:"group_id"`
	GroupName         string         `json:"group_name"`
	CategoryID        int64          `json:"category_id"`
	Flag              int            `json:"flag"`
	QuantityDropped   int64          `json:"qty_dropped"`
	QuantityDestroyed int64          `json:"qty_destroyed"`
	Singleton         int            `json:"singleton"`
	Value             float64        `json:"value"`
	Items             []EnrichedItem `json:"items,omitempty"`
}

// EnrichedVictim is the victim with every foreign ID resolved to a name.
type EnrichedVictim struct {
	ShipID          int64   `json:"ship_id"`
	ShipName        string  `json:"ship_name"`
	ShipGroupID     int64   `json:"ship_group_id"`
	ShipGroupName   string  `json:"ship_group_name"`
	ShipValue       float64 `json:"ship_value"`
	DamageTaken     int64   `json:"damage_taken"`
	CharacterID     int64   `json:"character_id"`
	CharacterName   string  `json:"character_name"`
	CorporationID   int64   `json:"corporation_id"`
	CorporationName string  `json:"corporation_name"`
	AllianceID      int64   `json:"alliance_id"`
	AllianceName    string  `json:"alliance_name"`
	FactionID       int64   `json:"faction_id"`
	FactionName     string  `json:"faction_name"`
}

// EnrichedAttacker is an attacker with every foreign ID resolved to a name.
type EnrichedAttacker struct {
	ShipID          int64   `json:"ship_id"`
	ShipName        string  `json:"ship_name"`
	ShipGroupID     int64   `json:"ship_group_id"`
	ShipGroupName   string  `json:"ship_group_name"`
	CharacterID     int64   `json:"character_id"`
	CharacterName   string  `json:"character_name"`
	CorporationID   int64   `json:"corporation_id"`
	CorporationName string  `json:"corporation_name"`
	AllianceID      int64   `json:"alliance_id"`
	AllianceName    string  `json:"alliance_name"`
	FactionID       int64   `json:"faction_id"`
	FactionName     string  `json:"faction_name"`
	WeaponTypeID    int64   `json:"weapon_type_id"`
	WeaponTypeName  string  `json:"weapon_type_name"`
	DamageDone      int64   `json:"damage_done"`
	SecurityStatus  float64 `json:"security_status"`
	FinalBlow       bool    `json:"final_blow"`
}

// EnrichedKillmail is the canonical persisted record.
// (KillmailID, Hash) never changes once stored.
type EnrichedKillmail struct {
	KillmailID        int64              `json:"killmail_id"`
	KillmailHash      string             `json:"killmail_hash"`
	KillTime          time.Time          `json:"kill_time"`
	SystemID          int64              `json:"system_id"`
	SystemName        string             `json:"system_name"`
	SystemSecurity    float64            `json:"system_security"`
	ConstellationID   int64              `json:"constellation_id"`
	ConstellationName string             `json:"constellation_name"`
	RegionID          int64              `json:"region_id"`
	RegionName        string             `json:"region_name"`
	Near              string             `json:"near"`
	X                 float64            `json:"x"`
	Y                 float64            `json:"y"`
	Z                 float64            `json:"z"`
	ShipValue         float64            `json:"ship_value"`
	FittingValue      float64            `json:"fitting_value"`
	TotalValue        float64            `json:"total_value"`
	IsNPC             bool               `json:"is_npc"`
	IsSolo            bool               `json:"is_solo"`
	WarID             int64              `json:"war_id,omitempty"`
	Victim            EnrichedVictim     `json:"victim"`
	Attackers         []EnrichedAttacker `json:"attackers"`
	Items             []EnrichedItem     `json:"items"`
}

// CharacterIDs returns every distinct non-zero character ID on the record,
// victim first.
func (k *EnrichedKillmail) CharacterIDs() []int64 {
	seen := make(map[int64]struct{}, len(k.Attackers)+1)
	ids := make([]int64, 0, len(k.Attackers)+1)
	add := func(id int64) {
		if id == 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	add(k.Victim.CharacterID)
	for i := range k.Attackers {
		add(k.Attackers[i].CharacterID)
	}
	return ids
}
