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

	"github.com/goccy/go-json"

	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// UpsertKillmail stores an enriched killmail keyed by killmail_id and
// removes its visibility placeholder. Writing the same killmail again
// replaces the row; it never creates a second one.
func (db *DB) UpsertKillmail(ctx context.Context, km *models.EnrichedKillmail) error {
	unlock := db.lockRow(km.KillmailID)
	defer unlock()

	err := withConflictRetry(ctx, func() error { return db.upsertKillmail(ctx, km) })
	if err != nil {
		return err
	}
	metrics.KillmailsPersisted.Inc()
	return nil
}

func (db *DB) upsertKillmail(ctx context.Context, km *models.EnrichedKillmail) error {
	data, err := json.Marshal(km)
	if err != nil {
		return fmt.Errorf("marshal killmail %d: %w", km.KillmailID, err)
	}

	var warID interface{}
	if km.WarID > 0 {
		warID = km.WarID
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO killmails (
			killmail_id, killmail_hash, kill_time, system_id, region_id,
			victim_character_id, victim_corporation_id, victim_ship_id,
			total_value, is_npc, is_solo, war_id, data, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (killmail_id) DO UPDATE SET
			total_value = excluded.total_value,
			is_npc = excluded.is_npc,
			is_solo = excluded.is_solo,
			war_id = COALESCE(excluded.war_id, killmails.war_id),
			data = excluded.data,
			updated_at = excluded.updated_at`,
		km.KillmailID, km.KillmailHash, km.KillTime.UTC(), km.SystemID, km.RegionID,
		km.Victim.CharacterID, km.Victim.CorporationID, km.Victim.ShipID,
		km.TotalValue, km.IsNPC, km.IsSolo, warID, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert killmail %d: %w", km.KillmailID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM killmail_placeholders WHERE killmail_id = ?`, km.KillmailID); err != nil {
		return fmt.Errorf("clear placeholder %d: %w", km.KillmailID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit killmail %d: %w", km.KillmailID, err)
	}
	return nil
}

// Killmail loads a stored killmail.
func (db *DB) Killmail(ctx context.Context, killmailID int64) (*models.EnrichedKillmail, error) {
	var data string
	err := db.conn.QueryRowContext(ctx, `SELECT data FROM killmails WHERE killmail_id = ?`, killmailID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load killmail %d: %w", killmailID, err)
	}
	var km models.EnrichedKillmail
	if err := json.Unmarshal([]byte(data), &km); err != nil {
		return nil, fmt.Errorf("decode killmail %d: %w", killmailID, err)
	}
	return &km, nil
}

// KillmailExists reports whether a killmail is stored.
func (db *DB) KillmailExists(ctx context.Context, killmailID int64) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM killmails WHERE killmail_id = ?`, killmailID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check killmail %d: %w", killmailID, err)
	}
	return n > 0, nil
}

// ExistingKillmailIDs returns the subset of ids already stored.
func (db *DB) ExistingKillmailIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	found := make(map[int64]struct{}, len(ids))
	for _, part := range chunk(ids, 500) {
		marks, args := inClause(part)
		rows, err := db.conn.QueryContext(ctx, `SELECT killmail_id FROM killmails WHERE killmail_id IN (`+marks+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("query existing killmails: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan killmail id: %w", err)
			}
			found[id] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate killmail ids: %w", err)
		}
	}
	return found, nil
}

// CountKillmails returns the number of stored killmails.
func (db *DB) CountKillmails(ctx context.Context) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM killmails`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count killmails: %w", err)
	}
	return n, nil
}
