// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// SolarSystem resolves a system with its constellation and region names.
func (db *DB) SolarSystem(ctx context.Context, systemID int64) (*models.SolarSystem, error) {
	var (
		s                 models.SolarSystem
		constName, rgName sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT s.system_id, s.name, s.security, s.constellation_id, c.name, s.region_id, r.name
		FROM solar_systems s
		LEFT JOIN constellations c ON c.constellation_id = s.constellation_id
		LEFT JOIN regions r ON r.region_id = s.region_id
		WHERE s.system_id = ?`, systemID,
	).Scan(&s.ID, &s.Name, &s.Security, &s.ConstellationID, &constName, &s.RegionID, &rgName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load solar system %d: %w", systemID, err)
	}
	s.ConstellationName = constName.String
	s.RegionName = rgName.String
	return &s, nil
}

// ItemType resolves a type with its group name and category.
func (db *DB) ItemType(ctx context.Context, typeID int64) (*models.ItemType, error) {
	return db.scanItemType(ctx, `WHERE t.type_id = ?`, typeID)
}

// ItemTypeByName resolves a type by its exact name.
func (db *DB) ItemTypeByName(ctx context.Context, name string) (*models.ItemType, error) {
	return db.scanItemType(ctx, `WHERE t.name = ? ORDER BY t.type_id LIMIT 1`, name)
}

func (db *DB) scanItemType(ctx context.Context, where string, arg interface{}) (*models.ItemType, error) {
	var (
		t         models.ItemType
		groupName sql.NullString
		category  sql.NullInt64
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT t.type_id, t.name, t.group_id, g.name, g.category_id
		FROM item_types t
		LEFT JOIN item_groups g ON g.group_id = t.group_id
		`+where, arg,
	).Scan(&t.ID, &t.Name, &t.GroupID, &groupName, &category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load item type %v: %w", arg, err)
	}
	t.GroupName = groupName.String
	t.CategoryID = category.Int64
	return &t, nil
}

// Celestials lists the celestials of a system.
func (db *DB) Celestials(ctx context.Context, systemID int64) ([]models.Celestial, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT item_id, name, system_id, x, y, z FROM celestials WHERE system_id = ? ORDER BY item_id`, systemID)
	if err != nil {
		return nil, fmt.Errorf("query celestials for %d: %w", systemID, err)
	}
	defer rows.Close()

	var out []models.Celestial
	for rows.Next() {
		var c models.Celestial
		if err := rows.Scan(&c.ID, &c.Name, &c.SystemID, &c.X, &c.Y, &c.Z); err != nil {
			return nil, fmt.Errorf("scan celestial: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate celestials: %w", err)
	}
	return out, nil
}

var entityTables = map[models.EntityKind]string{
	models.EntityCorporation: "corporations",
	models.EntityAlliance:    "alliances",
	models.EntityFaction:     "factions",
}

// EntityName resolves the display name of a character, corporation,
// alliance or faction. Unknown IDs return ErrNotFound.
func (db *DB) EntityName(ctx context.Context, kind models.EntityKind, id int64) (string, error) {
	var query string
	if kind == models.EntityCharacter {
		query = `SELECT name FROM characters WHERE character_id = ?`
	} else {
		table, ok := entityTables[kind]
		if !ok {
			return "", fmt.Errorf("unknown entity kind %q", kind)
		}
		query = `SELECT name FROM ` + table + ` WHERE id = ?`
	}

	var name sql.NullString
	err := db.conn.QueryRowContext(ctx, query, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !name.Valid) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load %s %d: %w", kind, id, err)
	}
	return name.String, nil
}

// Price returns the market average for a type on the given day: the latest
// price on or before it, otherwise the earliest price after it. ok is false
// when the type has no price history.
func (db *DB) Price(ctx context.Context, typeID int64, at time.Time) (price float64, ok bool, err error) {
	day := at.UTC().Format("2006-01-02")
	err = db.conn.QueryRowContext(ctx, `
		SELECT average FROM (
			SELECT average, 0 AS pref, date FROM prices WHERE type_id = ? AND date <= CAST(? AS DATE)
			UNION ALL
			SELECT average, 1 AS pref, date FROM prices WHERE type_id = ? AND date > CAST(? AS DATE)
		)
		ORDER BY pref ASC,
			CASE WHEN pref = 0 THEN date END DESC,
			CASE WHEN pref = 1 THEN date END ASC
		LIMIT 1`, typeID, day, typeID, day,
	).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load price for %d: %w", typeID, err)
	}
	return price, true, nil
}

// CustomPrice returns the manual price override for a type: the latest
// dated entry not after the kill day, else the undated entry.
func (db *DB) CustomPrice(ctx context.Context, typeID int64, at time.Time) (price float64, ok bool, err error) {
	day := at.UTC().Format("2006-01-02")
	err = db.conn.QueryRowContext(ctx, `
		SELECT price FROM custom_prices
		WHERE type_id = ? AND (date IS NULL OR date <= CAST(? AS DATE))
		ORDER BY date DESC NULLS LAST
		LIMIT 1`, typeID, day,
	).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load custom price for %d: %w", typeID, err)
	}
	return price, true, nil
}

// ReferenceSeed holds reference rows to load. It is used by the static data
// importer and by tests.
type ReferenceSeed struct {
	Regions        map[int64]string
	Constellations []models.SolarSystem // ConstellationID, ConstellationName, RegionID
	Systems        []models.SolarSystem
	Groups         []models.ItemType // GroupID, GroupName, CategoryID
	Types          []models.ItemType
	Celestials     []models.Celestial
	Names          map[models.EntityKind]map[int64]string
}

// SeedReference upserts reference rows in one transaction.
func (db *DB) SeedReference(ctx context.Context, seed *ReferenceSeed) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exec := func(query string, args ...interface{}) {
		if err != nil {
			return
		}
		_, err = tx.ExecContext(ctx, query, args...)
	}

	for id, name := range seed.Regions {
		exec(`INSERT OR REPLACE INTO regions (region_id, name) VALUES (?, ?)`, id, name)
	}
	for _, c := range seed.Constellations {
		exec(`INSERT OR REPLACE INTO constellations (constellation_id, name, region_id) VALUES (?, ?, ?)`,
			c.ConstellationID, c.ConstellationName, c.RegionID)
	}
	for _, s := range seed.Systems {
		exec(`INSERT OR REPLACE INTO solar_systems (system_id, name, security, constellation_id, region_id) VALUES (?, ?, ?, ?, ?)`,
			s.ID, s.Name, s.Security, s.ConstellationID, s.RegionID)
	}
	for _, g := range seed.Groups {
		exec(`INSERT OR REPLACE INTO item_groups (group_id, name, category_id) VALUES (?, ?, ?)`,
			g.GroupID, g.GroupName, g.CategoryID)
	}
	for _, t := range seed.Types {
		exec(`INSERT OR REPLACE INTO item_types (type_id, name, group_id) VALUES (?, ?, ?)`, t.ID, t.Name, t.GroupID)
	}
	for _, c := range seed.Celestials {
		exec(`INSERT OR REPLACE INTO celestials (item_id, name, system_id, x, y, z) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.SystemID, c.X, c.Y, c.Z)
	}
	for kind, names := range seed.Names {
		for id, name := range names {
			if kind == models.EntityCharacter {
				exec(`INSERT INTO characters (character_id, name) VALUES (?, ?)
					ON CONFLICT (character_id) DO UPDATE SET name = excluded.name`, id, name)
				continue
			}
			table, ok := entityTables[kind]
			if !ok {
				return fmt.Errorf("unknown entity kind %q", kind)
			}
			exec(`INSERT OR REPLACE INTO `+table+` (id, name) VALUES (?, ?)`, id, name)
		}
	}
	if err != nil {
		return fmt.Errorf("seed reference data: %w", err)
	}
	return tx.Commit()
}

// UpsertPrice stores a daily market average.
func (db *DB) UpsertPrice(ctx context.Context, typeID int64, day time.Time, average float64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO prices (type_id, date, average) VALUES (?, CAST(? AS DATE), ?)`,
		typeID, day.UTC().Format("2006-01-02"), average)
	if err != nil {
		return fmt.Errorf("upsert price for %d: %w", typeID, err)
	}
	return nil
}

// AddCustomPrice stores a manual price override. A nil day is undated.
func (db *DB) AddCustomPrice(ctx context.Context, typeID int64, day *time.Time, price float64) error {
	var date interface{}
	if day != nil {
		date = day.UTC().Format("2006-01-02")
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO custom_prices (type_id, date, price) VALUES (?, CAST(? AS DATE), ?)`, typeID, date, price)
	if err != nil {
		return fmt.Errorf("add custom price for %d: %w", typeID, err)
	}
	return nil
}
