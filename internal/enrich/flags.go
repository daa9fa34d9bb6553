// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package enrich

import (
	"math"

	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// CelestialSearchRadius bounds the nearest-celestial search.
const CelestialSearchRadius = 3.086e19

// IsNPC reports whether every attacker flew an NPC-category ship. A kill
// with no attackers is not an NPC kill.
func IsNPC(attackers []models.EnrichedAttacker, categories map[int64]int64) bool {
	if len(attackers) == 0 {
		return false
	}
	for i := range attackers {
		if categories[attackers[i].ShipID] != models.NPCCategoryID {
			return false
		}
	}
	return true
}

// npcLike reports whether an attacker has no pilot and belongs to an NPC
// corporation.
func npcLike(a *models.RawAttacker) bool {
	return a.CharacterID == 0 && a.CorporationID <= models.PlayerCorporationThreshold
}

// IsSolo reports a one-on-one kill. With two attackers the kill is solo
// only when exactly one of them is NPC-like.
func IsSolo(attackers []models.RawAttacker) bool {
	switch len(attackers) {
	case 1:
		return true
	case 2:
		return npcLike(&attackers[0]) != npcLike(&attackers[1])
	default:
		return false
	}
}

// NearestCelestial returns the celestial closest to pos within
// CelestialSearchRadius, or nil.
func NearestCelestial(pos models.Position, celestials []models.Celestial) *models.Celestial {
	var (
		best     *models.Celestial
		bestDist = math.Inf(1)
	)
	for i := range celestials {
		c := &celestials[i]
		dx, dy, dz := c.X-pos.X, c.Y-pos.Y, c.Z-pos.Z
		d := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if d <= CelestialSearchRadius && d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
