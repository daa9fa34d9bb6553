// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

// Package enrich turns a validated raw killmail into an EnrichedKillmail:
// names, location, nearest celestial, valuation and the npc/solo flags.
//
// Reference misses never fail a killmail. A missing system, type, name or
// price becomes an empty string or zero and is counted in
// thessia_enrichment_lookup_misses_total.
package enrich

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
	"github.com/EVE-KILL/Thessia-sub001/internal/queue"
)

// Activity records character bookkeeping, as implemented by database.DB.
type Activity interface {
	TouchLastActive(ctx context.Context, ids []int64, at time.Time) error
	FlagForProcessing(ctx context.Context, ids []int64) ([]int64, error)
}

// Enqueuer schedules character recomputation.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.Request) (string, error)
}

// Engine enriches killmails. It is safe for concurrent use.
type Engine struct {
	ref        Reference
	activity   Activity
	characters Enqueuer
}

// NewEngine creates an engine. activity and characters may be nil, in
// which case character bookkeeping is skipped.
func NewEngine(ref Reference, activity Activity, characters Enqueuer) *Engine {
	return &Engine{ref: ref, activity: activity, characters: characters}
}

// Enrich resolves raw into an EnrichedKillmail. Independent lookups run
// concurrently. Only context cancellation is returned as an error.
func (e *Engine) Enrich(ctx context.Context, raw *models.RawKillmail) (*models.EnrichedKillmail, error) {
	start := time.Now()
	defer func() { metrics.EnrichmentDuration.Observe(time.Since(start).Seconds()) }()

	km := &models.EnrichedKillmail{
		KillmailID:   raw.KillmailID,
		KillmailHash: raw.Hash,
		KillTime:     raw.KillmailTime.UTC(),
		SystemID:     raw.SolarSystemID,
		WarID:        raw.WarID,
		IsSolo:       IsSolo(raw.Attackers),
	}

	var (
		ship        *models.ItemType
		attackerCat map[int64]int64
		items       []models.EnrichedItem
		fitting     float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.locate(gctx, km, raw.Victim.Position)
		return nil
	})
	g.Go(func() error {
		ship = e.itemType(gctx, raw.Victim.ShipTypeID)
		km.Victim = e.victim(gctx, &raw.Victim, ship)
		km.ShipValue = e.hullPrice(gctx, ship, km.KillTime)
		return nil
	})
	g.Go(func() error {
		km.Attackers, attackerCat = e.attackers(gctx, raw.Attackers)
		return nil
	})
	g.Go(func() error {
		items, fitting = e.enrichItems(gctx, raw.Victim.Items, 0, km.KillTime)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("enrich killmail %d: %w", raw.KillmailID, err)
	}

	km.Items = items
	if km.Items == nil {
		km.Items = []models.EnrichedItem{}
	}
	km.FittingValue = fitting
	km.Victim.ShipValue = km.ShipValue
	km.TotalValue = km.ShipValue + km.FittingValue
	km.IsNPC = IsNPC(km.Attackers, attackerCat)

	e.track(ctx, km)
	return km, nil
}

func (e *Engine) locate(ctx context.Context, km *models.EnrichedKillmail, pos *models.Position) {
	sys, ok, err := e.ref.SolarSystem(ctx, km.SystemID)
	if err != nil && ctx.Err() == nil {
		logging.Warn().Err(err).Int64("system_id", km.SystemID).Msg("System lookup failed")
	}
	if !ok || err != nil {
		metrics.EnrichmentLookupMisses.WithLabelValues("solar_system").Inc()
	} else {
		km.SystemName = sys.Name
		km.SystemSecurity = sys.Security
		km.ConstellationID = sys.ConstellationID
		km.ConstellationName = sys.ConstellationName
		km.RegionID = sys.RegionID
		km.RegionName = sys.RegionName
	}

	if pos == nil || pos.IsOrigin() {
		return
	}
	km.X, km.Y, km.Z = pos.X, pos.Y, pos.Z

	celestials, err := e.ref.Celestials(ctx, km.SystemID)
	if err != nil {
		if ctx.Err() == nil {
			logging.Warn().Err(err).Int64("system_id", km.SystemID).Msg("Celestial lookup failed")
		}
		return
	}
	if c := NearestCelestial(*pos, celestials); c != nil {
		km.Near = c.Name
	}
}

func (e *Engine) victim(ctx context.Context, v *models.RawVictim, ship *models.ItemType) models.EnrichedVictim {
	out := models.EnrichedVictim{
		ShipID:        v.ShipTypeID,
		DamageTaken:   v.DamageTaken,
		CharacterID:   v.CharacterID,
		CorporationID: v.CorporationID,
		AllianceID:    v.AllianceID,
		FactionID:     v.FactionID,
	}
	if ship != nil {
		out.ShipName = ship.Name
		out.ShipGroupID = ship.GroupID
		out.ShipGroupName = ship.GroupName
	}
	out.CharacterName = e.name(ctx, models.EntityCharacter, v.CharacterID)
	out.CorporationName = e.name(ctx, models.EntityCorporation, v.CorporationID)
	out.AllianceName = e.name(ctx, models.EntityAlliance, v.AllianceID)
	out.FactionName = e.name(ctx, models.EntityFaction, v.FactionID)
	return out
}

// attackers resolves every attacker and returns the category of each ship
// type seen, keyed by type ID.
func (e *Engine) attackers(ctx context.Context, raw []models.RawAttacker) ([]models.EnrichedAttacker, map[int64]int64) {
	out := make([]models.EnrichedAttacker, len(raw))
	categories := make(map[int64]int64)
	for i := range raw {
		a := &raw[i]
		ea := models.EnrichedAttacker{
			ShipID:         a.ShipTypeID,
			CharacterID:    a.CharacterID,
			CorporationID:  a.CorporationID,
			AllianceID:     a.AllianceID,
			FactionID:      a.FactionID,
			WeaponTypeID:   a.WeaponTypeID,
			DamageDone:     a.DamageDone,
			SecurityStatus: a.SecurityStatus,
			FinalBlow:      a.FinalBlow,
		}
		if ship := e.itemType(ctx, a.ShipTypeID); ship != nil {
			ea.ShipName = ship.Name
			ea.ShipGroupID = ship.GroupID
			ea.ShipGroupName = ship.GroupName
			categories[ship.ID] = ship.CategoryID
		}
		if weapon := e.itemType(ctx, a.WeaponTypeID); weapon != nil {
			ea.WeaponTypeName = weapon.Name
		}
		ea.CharacterName = e.name(ctx, models.EntityCharacter, a.CharacterID)
		ea.CorporationName = e.name(ctx, models.EntityCorporation, a.CorporationID)
		ea.AllianceName = e.name(ctx, models.EntityAlliance, a.AllianceID)
		ea.FactionName = e.name(ctx, models.EntityFaction, a.FactionID)
		out[i] = ea
	}
	return out, categories
}

func (e *Engine) itemType(ctx context.Context, id int64) *models.ItemType {
	if id == 0 {
		return nil
	}
	t, ok, err := e.ref.ItemType(ctx, id)
	if err != nil && ctx.Err() == nil {
		logging.Warn().Err(err).Int64("type_id", id).Msg("Type lookup failed")
	}
	if err != nil || !ok {
		metrics.EnrichmentLookupMisses.WithLabelValues("item_type").Inc()
		return nil
	}
	return t
}

func (e *Engine) name(ctx context.Context, kind models.EntityKind, id int64) string {
	if id == 0 {
		return ""
	}
	n, ok, err := e.ref.EntityName(ctx, kind, id)
	if err != nil && ctx.Err() == nil {
		logging.Warn().Err(err).Str("kind", string(kind)).Int64("id", id).Msg("Name lookup failed")
	}
	if err != nil || !ok {
		metrics.EnrichmentLookupMisses.WithLabelValues(string(kind)).Inc()
		return ""
	}
	return n
}

// track updates last-active times and schedules recomputation of every
// involved character. Failures are logged; they never fail the killmail.
func (e *Engine) track(ctx context.Context, km *models.EnrichedKillmail) {
	if e.activity == nil {
		return
	}
	ids := km.CharacterIDs()
	if len(ids) == 0 {
		return
	}

	if err := e.activity.TouchLastActive(ctx, ids, km.KillTime); err != nil {
		logging.Warn().Err(err).Int64("killmail_id", km.KillmailID).Msg("Failed to update last active")
	}

	missing, err := e.activity.FlagForProcessing(ctx, ids)
	if err != nil {
		logging.Warn().Err(err).Int64("killmail_id", km.KillmailID).Msg("Failed to flag characters")
		return
	}
	if e.characters == nil {
		return
	}
	for _, id := range missing {
		_, err := e.characters.Enqueue(ctx, queue.Request{
			Kind:    models.JobKindCharacter,
			Payload: models.CharacterJob{CharacterID: id},
			Options: queue.Options{
				Priority:    models.PriorityDefault,
				MaxAttempts: models.DefaultAttempts,
				Backoff:     models.DefaultBackoff,
				DedupeKey:   fmt.Sprintf("char:%d", id),
			},
		})
		if err != nil {
			logging.Warn().Err(err).Int64("character_id", id).Msg("Failed to queue character")
		}
	}
}
