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

const userColumns = `character_id, character_name, corporation_id, access_token, refresh_token,
	expires_at, can_fetch_corporation_killmails, polling_active, last_checked, delay_hours`

func (db *DB) encrypt(s string) (string, error) {
	if db.tokens == nil {
		return s, nil
	}
	return db.tokens.Encrypt(s)
}

func (db *DB) decrypt(s string) (string, error) {
	if db.tokens == nil || s == "" {
		return s, nil
	}
	return db.tokens.Decrypt(s)
}

// UpsertUser creates or replaces a user's credential record.
func (db *DB) UpsertUser(ctx context.Context, u *models.UserCredential) error {
	access, err := db.encrypt(u.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := db.encrypt(u.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	var lastChecked interface{}
	if !u.LastChecked.IsZero() {
		lastChecked = u.LastChecked.UTC()
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (character_id) DO UPDATE SET
			character_name = excluded.character_name,
			corporation_id = excluded.corporation_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			can_fetch_corporation_killmails = excluded.can_fetch_corporation_killmails,
			polling_active = excluded.polling_active,
			last_checked = excluded.last_checked,
			delay_hours = excluded.delay_hours`,
		u.CharacterID, u.CharacterName, u.CorporationID, access, refresh,
		u.ExpiresAt.UTC(), u.CanFetchCorporationKillmails, u.PollingActive, lastChecked, u.DelayHours,
	)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", u.CharacterID, err)
	}
	return nil
}

// User loads one user.
func (db *DB) User(ctx context.Context, characterID int64) (*models.UserCredential, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE character_id = ?`, characterID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", characterID, err)
	}
	users, err := db.scanUsers(rows)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return &users[0], nil
}

// StaleUsers returns users with polling enabled whose last check is older
// than before (or who were never checked), oldest first.
func (db *DB) StaleUsers(ctx context.Context, before time.Time) ([]models.UserCredential, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE polling_active AND (last_checked IS NULL OR last_checked < ?)
		ORDER BY last_checked ASC NULLS FIRST`, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("query stale users: %w", err)
	}
	return db.scanUsers(rows)
}

func (db *DB) scanUsers(rows *sql.Rows) ([]models.UserCredential, error) {
	defer rows.Close()

	var users []models.UserCredential
	for rows.Next() {
		var (
			u           models.UserCredential
			name        sql.NullString
			lastChecked sql.NullTime
		)
		if err := rows.Scan(&u.CharacterID, &name, &u.CorporationID, &u.AccessToken, &u.RefreshToken,
			&u.ExpiresAt, &u.CanFetchCorporationKillmails, &u.PollingActive, &lastChecked, &u.DelayHours); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CharacterName = name.String
		if lastChecked.Valid {
			u.LastChecked = lastChecked.Time
		}

		var err error
		if u.AccessToken, err = db.decrypt(u.AccessToken); err != nil {
			return nil, fmt.Errorf("decrypt access token for %d: %w", u.CharacterID, err)
		}
		if u.RefreshToken, err = db.decrypt(u.RefreshToken); err != nil {
			return nil, fmt.Errorf("decrypt refresh token for %d: %w", u.CharacterID, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// SaveTokens persists a refreshed token pair.
func (db *DB) SaveTokens(ctx context.Context, characterID int64, accessToken, refreshToken string, expiresAt time.Time) error {
	access, err := db.encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := db.encrypt(refreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}
	return db.updateUser(ctx, characterID, `access_token = ?, refresh_token = ?, expires_at = ?`,
		access, refresh, expiresAt.UTC())
}

// TouchLastChecked records that a user was polled.
func (db *DB) TouchLastChecked(ctx context.Context, characterID int64, at time.Time) error {
	return db.updateUser(ctx, characterID, `last_checked = ?`, at.UTC())
}

// DeactivatePolling permanently stops polling for a user.
func (db *DB) DeactivatePolling(ctx context.Context, characterID int64) error {
	return db.updateUser(ctx, characterID, `polling_active = false`)
}

// ClearCorporationCapability stops corporation killmail fetches for a user.
func (db *DB) ClearCorporationCapability(ctx context.Context, characterID int64) error {
	return db.updateUser(ctx, characterID, `can_fetch_corporation_killmails = false`)
}

func (db *DB) updateUser(ctx context.Context, characterID int64, set string, args ...interface{}) error {
	args = append(args, characterID)
	res, err := db.conn.ExecContext(ctx, `UPDATE users SET `+set+` WHERE character_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update user %d: %w", characterID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("update user %d: %w", characterID, ErrNotFound)
	}
	return nil
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
