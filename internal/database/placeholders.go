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

// UpsertPlaceholder records a discovered killmail that is not yet processed.
// visibleAt nil means visible now. When a placeholder exists, the earlier
// visibility wins. The returned placeholder is the stored state.
func (db *DB) UpsertPlaceholder(ctx context.Context, killmailID int64, hash string, visibleAt *time.Time) (*models.Placeholder, error) {
	unlock := db.lockRow(killmailID)
	defer unlock()

	var out *models.Placeholder
	err := withConflictRetry(ctx, func() error {
		p, err := db.upsertPlaceholder(ctx, killmailID, hash, visibleAt)
		out = p
		return err
	})
	return out, err
}

func (db *DB) upsertPlaceholder(ctx context.Context, killmailID int64, hash string, visibleAt *time.Time) (*models.Placeholder, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		existing sql.NullTime
		queued   bool
	)
	err = tx.QueryRowContext(ctx,
		`SELECT visible_at, queued FROM killmail_placeholders WHERE killmail_id = ?`, killmailID,
	).Scan(&existing, &queued)

	p := &models.Placeholder{KillmailID: killmailID, Hash: hash}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		p.VisibleAt = utcPtr(visibleAt)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO killmail_placeholders (killmail_id, killmail_hash, visible_at, queued, created_at)
			VALUES (?, ?, ?, false, ?)`,
			killmailID, hash, nullTime(p.VisibleAt), time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("insert placeholder %d: %w", killmailID, err)
		}

	case err != nil:
		return nil, fmt.Errorf("load placeholder %d: %w", killmailID, err)

	default:
		var current *time.Time
		if existing.Valid {
			t := existing.Time
			current = &t
		}
		p.Queued = queued
		p.VisibleAt = models.MergeVisibility(current, utcPtr(visibleAt))
		if !sameTime(current, p.VisibleAt) {
			_, err = tx.ExecContext(ctx,
				`UPDATE killmail_placeholders SET visible_at = ? WHERE killmail_id = ?`,
				nullTime(p.VisibleAt), killmailID)
			if err != nil {
				return nil, fmt.Errorf("update placeholder %d: %w", killmailID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit placeholder %d: %w", killmailID, err)
	}
	return p, nil
}

// Placeholder loads one placeholder.
func (db *DB) Placeholder(ctx context.Context, killmailID int64) (*models.Placeholder, error) {
	var (
		p         models.Placeholder
		visibleAt sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT killmail_id, killmail_hash, visible_at, queued FROM killmail_placeholders WHERE killmail_id = ?`,
		killmailID,
	).Scan(&p.KillmailID, &p.Hash, &visibleAt, &p.Queued)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load placeholder %d: %w", killmailID, err)
	}
	if visibleAt.Valid {
		t := visibleAt.Time
		p.VisibleAt = &t
	}
	return &p, nil
}

// DuePlaceholders returns unqueued placeholders whose visibility time has
// passed, immediate ones first.
func (db *DB) DuePlaceholders(ctx context.Context, now time.Time, limit int) ([]models.Placeholder, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT killmail_id, killmail_hash, visible_at FROM killmail_placeholders
		WHERE NOT queued AND (visible_at IS NULL OR visible_at <= ?)
		ORDER BY visible_at ASC NULLS FIRST, killmail_id ASC
		LIMIT ?`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due placeholders: %w", err)
	}
	defer rows.Close()

	var out []models.Placeholder
	for rows.Next() {
		var (
			p  models.Placeholder
			at sql.NullTime
		)
		if err := rows.Scan(&p.KillmailID, &p.Hash, &at); err != nil {
			return nil, fmt.Errorf("scan placeholder: %w", err)
		}
		if at.Valid {
			t := at.Time
			p.VisibleAt = &t
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate placeholders: %w", err)
	}
	return out, nil
}

// MarkPlaceholdersQueued flags placeholders as handed to the job queue.
func (db *DB) MarkPlaceholdersQueued(ctx context.Context, ids []int64) error {
	for _, part := range chunk(ids, 500) {
		marks, args := inClause(part)
		if _, err := db.conn.ExecContext(ctx,
			`UPDATE killmail_placeholders SET queued = true WHERE killmail_id IN (`+marks+`)`, args...); err != nil {
			return fmt.Errorf("mark placeholders queued: %w", err)
		}
	}
	return nil
}

// RequeuePlaceholder clears the queued flag so the placeholder is promoted
// again once at passes. Unknown IDs are ignored.
func (db *DB) RequeuePlaceholder(ctx context.Context, killmailID int64, at time.Time) error {
	unlock := db.lockRow(killmailID)
	defer unlock()

	return withConflictRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx,
			`UPDATE killmail_placeholders SET queued = false, visible_at = ? WHERE killmail_id = ?`,
			at.UTC(), killmailID)
		if err != nil {
			return fmt.Errorf("requeue placeholder %d: %w", killmailID, err)
		}
		return nil
	})
}

// DeletePlaceholder removes a placeholder that can never be processed.
func (db *DB) DeletePlaceholder(ctx context.Context, killmailID int64) error {
	unlock := db.lockRow(killmailID)
	defer unlock()

	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM killmail_placeholders WHERE killmail_id = ?`, killmailID); err != nil {
		return fmt.Errorf("delete placeholder %d: %w", killmailID, err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
