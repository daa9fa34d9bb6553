// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package enrich

import (
	"context"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/cache"
	"github.com/EVE-KILL/Thessia-sub001/internal/database"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// Reference is the read side the engine resolves IDs against. found=false
// is a miss, which the engine degrades to an empty value.
type Reference interface {
	SolarSystem(ctx context.Context, id int64) (*models.SolarSystem, bool, error)
	ItemType(ctx context.Context, id int64) (*models.ItemType, bool, error)
	ItemTypeByName(ctx context.Context, name string) (*models.ItemType, bool, error)
	Celestials(ctx context.Context, systemID int64) ([]models.Celestial, error)
	EntityName(ctx context.Context, kind models.EntityKind, id int64) (string, bool, error)
	Price(ctx context.Context, typeID int64, at time.Time) (float64, bool, error)
	CustomPrice(ctx context.Context, typeID int64, at time.Time) (float64, bool, error)
}

// Source is the persistent reference store, as implemented by
// database.DB. Missing rows return database.ErrNotFound.
type Source interface {
	SolarSystem(ctx context.Context, id int64) (*models.SolarSystem, error)
	ItemType(ctx context.Context, id int64) (*models.ItemType, error)
	ItemTypeByName(ctx context.Context, name string) (*models.ItemType, error)
	Celestials(ctx context.Context, systemID int64) ([]models.Celestial, error)
	EntityName(ctx context.Context, kind models.EntityKind, id int64) (string, error)
	Price(ctx context.Context, typeID int64, at time.Time) (float64, bool, error)
	CustomPrice(ctx context.Context, typeID int64, at time.Time) (float64, bool, error)
}

type entityKey struct {
	kind models.EntityKind
	id   int64
}

// priceKey buckets lookups by UTC day; prices are daily averages.
type priceKey struct {
	typeID int64
	day    string
}

func dayKey(typeID int64, at time.Time) priceKey {
	return priceKey{typeID: typeID, day: at.UTC().Format("2006-01-02")}
}

// CachedReference puts a read-through cache in front of a Source. It is
// safe for concurrent use.
type CachedReference struct {
	systems     *cache.ReadThrough[int64, *models.SolarSystem]
	types       *cache.ReadThrough[int64, *models.ItemType]
	typeNames   *cache.ReadThrough[string, *models.ItemType]
	celestials  *cache.ReadThrough[int64, []models.Celestial]
	names       *cache.ReadThrough[entityKey, string]
	prices      *cache.ReadThrough[priceKey, float64]
	customPrice *cache.ReadThrough[priceKey, float64]
}

// NewCachedReference wraps src. Static data lives for ttl; names and
// prices, which change, live for a quarter of that.
func NewCachedReference(src Source, ttl time.Duration) *CachedReference {
	short := ttl / 4
	neg := time.Minute

	return &CachedReference{
		systems: cache.NewReadThrough("solar_system", ttl, neg,
			func(ctx context.Context, id int64) (*models.SolarSystem, bool, error) {
				return found(src.SolarSystem(ctx, id))
			}),
		types: cache.NewReadThrough("item_type", ttl, neg,
			func(ctx context.Context, id int64) (*models.ItemType, bool, error) {
				return found(src.ItemType(ctx, id))
			}),
		typeNames: cache.NewReadThrough("item_type_name", ttl, neg,
			func(ctx context.Context, name string) (*models.ItemType, bool, error) {
				return found(src.ItemTypeByName(ctx, name))
			}),
		celestials: cache.NewReadThrough("celestials", ttl, neg,
			func(ctx context.Context, systemID int64) ([]models.Celestial, bool, error) {
				c, err := src.Celestials(ctx, systemID)
				return c, err == nil, err
			}),
		names: cache.NewReadThrough("entity_name", short, neg,
			func(ctx context.Context, k entityKey) (string, bool, error) {
				return found(src.EntityName(ctx, k.kind, k.id))
			}),
		prices: cache.NewReadThrough("price", short, neg,
			func(ctx context.Context, k priceKey) (float64, bool, error) {
				at, _ := time.Parse("2006-01-02", k.day)
				return src.Price(ctx, k.typeID, at)
			}),
		customPrice: cache.NewReadThrough("custom_price", short, neg,
			func(ctx context.Context, k priceKey) (float64, bool, error) {
				at, _ := time.Parse("2006-01-02", k.day)
				return src.CustomPrice(ctx, k.typeID, at)
			}),
	}
}

func found[V any](v V, err error) (V, bool, error) {
	if database.IsNotFound(err) {
		var zero V
		return zero, false, nil
	}
	if err != nil {
		var zero V
		return zero, false, err
	}
	return v, true, nil
}

func (c *CachedReference) SolarSystem(ctx context.Context, id int64) (*models.SolarSystem, bool, error) {
	return c.systems.Get(ctx, id)
}

func (c *CachedReference) ItemType(ctx context.Context, id int64) (*models.ItemType, bool, error) {
	return c.types.Get(ctx, id)
}

func (c *CachedReference) ItemTypeByName(ctx context.Context, name string) (*models.ItemType, bool, error) {
	return c.typeNames.Get(ctx, name)
}

func (c *CachedReference) Celestials(ctx context.Context, systemID int64) ([]models.Celestial, error) {
	v, _, err := c.celestials.Get(ctx, systemID)
	return v, err
}

func (c *CachedReference) EntityName(ctx context.Context, kind models.EntityKind, id int64) (string, bool, error) {
	return c.names.Get(ctx, entityKey{kind: kind, id: id})
}

func (c *CachedReference) Price(ctx context.Context, typeID int64, at time.Time) (float64, bool, error) {
	return c.prices.Get(ctx, dayKey(typeID, at))
}

func (c *CachedReference) CustomPrice(ctx context.Context, typeID int64, at time.Time) (float64, bool, error) {
	return c.customPrice.Get(ctx, dayKey(typeID, at))
}

// InvalidateName drops a cached entity name, used after a character is
// recomputed.
func (c *CachedReference) InvalidateName(kind models.EntityKind, id int64) {
	c.names.Invalidate(entityKey{kind: kind, id: id})
}

// Run expires cached entries until ctx is done.
func (c *CachedReference) Run(ctx context.Context, interval time.Duration) {
	go c.systems.Run(ctx, interval)
	go c.types.Run(ctx, interval)
	go c.typeNames.Run(ctx, interval)
	go c.celestials.Run(ctx, interval)
	go c.names.Run(ctx, interval)
	go c.prices.Run(ctx, interval)
	c.customPrice.Run(ctx, interval)
}
