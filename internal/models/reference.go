// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package models

import "time"

// NPCCategoryID is the inventory category of NPC ships.
const NPCCategoryID = 11

// SolarSystem is a solar system with its location hierarchy.
type SolarSystem struct {
	ID                int64
	Name              string
	Security          float64
	ConstellationID   int64
	ConstellationName string
	RegionID          int64
	RegionName        string
}

// ItemType is an inventory type with its group and category.
type ItemType struct {
	ID         int64
	Name       string
	GroupID    int64
	GroupName  string
	CategoryID int64
}

// Celestial is a body inside a solar system.
type Celestial struct {
	ID       int64
	Name     string
	SystemID int64
	X, Y, Z  float64
}

// EntityKind names the tables that hold display names.
type EntityKind string

const (
	EntityCharacter   EntityKind = "character"
	EntityCorporation EntityKind = "corporation"
	EntityAlliance    EntityKind = "alliance"
	EntityFaction     EntityKind = "faction"
)

// Character is the stored profile of a pilot.
type Character struct {
	ID              int64
	Name            string
	CorporationID   int64
	AllianceID      int64
	LastActive      *time.Time
	NeedsProcessing bool
}

// MergeVisibility reconciles a placeholder's stored visibility with a new
// request. nil means visible immediately. The earlier time always wins, so
// a later, longer delay never postpones a record.
func MergeVisibility(existing, incoming *time.Time) *time.Time {
	if existing == nil || incoming == nil {
		return nil
	}
	if incoming.Before(*existing) {
		t := *incoming
		return &t
	}
	t := *existing
	return &t
}
