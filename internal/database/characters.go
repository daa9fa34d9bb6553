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

// TouchLastActive advances last_active for existing characters. A row is
// only updated when at is newer than what is stored.
func (db *DB) TouchLastActive(ctx context.Context, ids []int64, at time.Time) error {
	for _, part := range chunk(ids, 500) {
		marks, args := inClause(part)
		args = append([]interface{}{at.UTC(), at.UTC()}, args...)
		err := withConflictRetry(ctx, func() error {
			_, err := db.conn.ExecContext(ctx, `
				UPDATE characters SET last_active = ?
				WHERE (last_active IS NULL OR last_active < ?) AND character_id IN (`+marks+`)`, args...)
			return err
		})
		if err != nil {
			return fmt.Errorf("touch last active: %w", err)
		}
	}
	return nil
}

// FlagForProcessing marks known characters as needing recomputation and
// returns the IDs that have no record yet.
func (db *DB) FlagForProcessing(ctx context.Context, ids []int64) ([]int64, error) {
	known := make(map[int64]struct{}, len(ids))
	for _, part := range chunk(ids, 500) {
		marks, args := inClause(part)
		rows, err := db.conn.QueryContext(ctx, `SELECT character_id FROM characters WHERE character_id IN (`+marks+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("query characters: %w", err)
		}
		var found []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan character id: %w", err)
			}
			known[id] = struct{}{}
			found = append(found, id)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate characters: %w", err)
		}

		if len(found) == 0 {
			continue
		}
		marks, args = inClause(found)
		err = withConflictRetry(ctx, func() error {
			_, err := db.conn.ExecContext(ctx,
				`UPDATE characters SET needs_processing = true WHERE character_id IN (`+marks+`)`, args...)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("flag characters: %w", err)
		}
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
			known[id] = struct{}{}
		}
	}
	return missing, nil
}

// UpsertCharacter stores a recomputed character and clears its
// needs_processing flag. An existing last_active is kept when newer.
func (db *DB) UpsertCharacter(ctx context.Context, c *models.Character) error {
	unlock := db.lockRow(c.ID)
	defer unlock()

	return withConflictRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO characters (character_id, name, corporation_id, alliance_id, last_active, needs_processing)
			VALUES (?, ?, ?, ?, ?, false)
			ON CONFLICT (character_id) DO UPDATE SET
				name = excluded.name,
				corporation_id = excluded.corporation_id,
				alliance_id = excluded.alliance_id,
				last_active = CASE
					WHEN characters.last_active IS NULL THEN excluded.last_active
					WHEN excluded.last_active IS NULL THEN characters.last_active
					ELSE greatest(characters.last_active, excluded.last_active)
				END,
				needs_processing = false`,
			c.ID, c.Name, c.CorporationID, c.AllianceID, nullTime(utcPtr(c.LastActive)))
		if err != nil {
			return fmt.Errorf("upsert character %d: %w", c.ID, err)
		}
		return nil
	})
}

// Character loads one character row.
func (db *DB) Character(ctx context.Context, characterID int64) (*models.Character, error) {
	var (
		c          models.Character
		name       sql.NullString
		corp, ally sql.NullInt64
		lastActive sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT character_id, name, corporation_id, alliance_id, last_active, needs_processing
		FROM characters WHERE character_id = ?`, characterID,
	).Scan(&c.ID, &name, &corp, &ally, &lastActive, &c.NeedsProcessing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load character %d: %w", characterID, err)
	}
	c.Name = name.String
	c.CorporationID = corp.Int64
	c.AllianceID = ally.Int64
	if lastActive.Valid {
		t := lastActive.Time
		c.LastActive = &t
	}
	return &c, nil
}
