// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package enrich

import (
	"context"
	"strings"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
	"github.com/EVE-KILL/Thessia-sub001/internal/routing"
)

const (
	// fixedPriceType in fixedPriceFlag is always valued at fixedPrice.
	fixedPriceType int64 = 33329
	fixedPriceFlag       = 89
	fixedPrice           = 0.01

	blueprintCopyDivisor = 100

	// maxItemDepth bounds container nesting. Only the top level and the
	// first nested level contribute to the fitting value.
	maxItemDepth   = 4
	maxValuedDepth = 1
)

// hullPrice values the victim's ship. Titans and supercarriers are rarely
// traded, so they use the manual override, then the blueprint price, then
// the market.
func (e *Engine) hullPrice(ctx context.Context, ship *models.ItemType, at time.Time) float64 {
	if ship == nil {
		return 0
	}
	if ship.GroupID == routing.GroupTitan || ship.GroupID == routing.GroupSupercarrier {
		if p, ok := e.lookupFloat(ctx, "custom_price", func() (float64, bool, error) {
			return e.ref.CustomPrice(ctx, ship.ID, at)
		}); ok {
			return p
		}
		if p, ok := e.blueprintPrice(ctx, ship, at); ok {
			return p
		}
	}
	p, _ := e.lookupFloat(ctx, "price", func() (float64, bool, error) {
		return e.ref.Price(ctx, ship.ID, at)
	})
	return p
}

func (e *Engine) blueprintPrice(ctx context.Context, ship *models.ItemType, at time.Time) (float64, bool) {
	bp, ok, err := e.ref.ItemTypeByName(ctx, ship.Name+" Blueprint")
	if err != nil {
		logging.Warn().Err(err).Int64("type_id", ship.ID).Msg("Blueprint lookup failed")
		return 0, false
	}
	if !ok {
		return 0, false
	}
	return e.lookupFloat(ctx, "blueprint_price", func() (float64, bool, error) {
		return e.ref.Price(ctx, bp.ID, at)
	})
}

// itemPrice returns the unit price of an item at the given nesting depth.
func (e *Engine) itemPrice(ctx context.Context, item *models.EnrichedItem, depth int, at time.Time) float64 {
	if item.TypeID == fixedPriceType && item.Flag == fixedPriceFlag {
		return fixedPrice
	}
	p, _ := e.lookupFloat(ctx, "price", func() (float64, bool, error) {
		return e.ref.Price(ctx, item.TypeID, at)
	})
	if depth == 1 && strings.Contains(item.TypeName, "Blueprint") {
		p /= blueprintCopyDivisor
	}
	return p
}

// enrichItems resolves and values items down to maxItemDepth. The returned
// sum covers levels 0 through maxValuedDepth.
func (e *Engine) enrichItems(ctx context.Context, raw []models.RawItem, depth int, at time.Time) ([]models.EnrichedItem, float64) {
	if len(raw) == 0 || depth > maxItemDepth {
		return nil, 0
	}

	out := make([]models.EnrichedItem, 0, len(raw))
	var sum float64
	for i := range raw {
		r := &raw[i]
		item := models.EnrichedItem{
			TypeID:            r.ItemTypeID,
			Flag:              r.Flag,
			QuantityDropped:   r.QuantityDropped,
			QuantityDestroyed: r.QuantityDestroyed,
			Singleton:         r.Singleton,
		}
		if t := e.itemType(ctx, r.ItemTypeID); t != nil {
			item.TypeName = t.Name
			item.GroupID = t.GroupID
			item.GroupName = t.GroupName
			item.CategoryID = t.CategoryID
		}

		if depth <= maxValuedDepth {
			item.Value = e.itemPrice(ctx, &item, depth, at) * float64(r.QuantityDropped+r.QuantityDestroyed)
			sum += item.Value
		}

		nested, nestedSum := e.enrichItems(ctx, r.Items, depth+1, at)
		item.Items = nested
		sum += nestedSum

		out = append(out, item)
	}
	return out, sum
}

func (e *Engine) lookupFloat(ctx context.Context, kind string, fn func() (float64, bool, error)) (float64, bool) {
	v, ok, err := fn()
	if err != nil {
		if ctx.Err() == nil {
			logging.Warn().Err(err).Str("kind", kind).Msg("Reference lookup failed")
		}
		metrics.EnrichmentLookupMisses.WithLabelValues(kind).Inc()
		return 0, false
	}
	if !ok {
		metrics.EnrichmentLookupMisses.WithLabelValues(kind).Inc()
	}
	return v, ok
}
