// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS killmails (
		killmail_id BIGINT PRIMARY KEY,
		killmail_hash VARCHAR NOT NULL,
		kill_time TIMESTAMP NOT NULL,
		system_id BIGINT NOT NULL,
		region_id BIGINT,
		victim_character_id BIGINT,
		victim_corporation_id BIGINT,
		victim_ship_id BIGINT,
		total_value DOUBLE NOT NULL DEFAULT 0,
		is_npc BOOLEAN NOT NULL DEFAULT false,
		is_solo BOOLEAN NOT NULL DEFAULT false,
		war_id BIGINT,
		data VARCHAR NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_killmails_kill_time ON killmails(kill_time)`,

	`CREATE TABLE IF NOT EXISTS users (
		character_id BIGINT PRIMARY KEY,
		character_name VARCHAR,
		corporation_id BIGINT NOT NULL DEFAULT 0,
		access_token VARCHAR NOT NULL,
		refresh_token VARCHAR NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		can_fetch_corporation_killmails BOOLEAN NOT NULL DEFAULT true,
		polling_active BOOLEAN NOT NULL DEFAULT true,
		last_checked TIMESTAMP,
		delay_hours INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS killmail_placeholders (
		killmail_id BIGINT PRIMARY KEY,
		killmail_hash VARCHAR NOT NULL,
		visible_at TIMESTAMP,
		queued BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS characters (
		character_id BIGINT PRIMARY KEY,
		name VARCHAR,
		corporation_id BIGINT,
		alliance_id BIGINT,
		last_active TIMESTAMP,
		needs_processing BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS corporations (id BIGINT PRIMARY KEY, name VARCHAR NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS alliances (id BIGINT PRIMARY KEY, name VARCHAR NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS factions (id BIGINT PRIMARY KEY, name VARCHAR NOT NULL)`,

	`CREATE TABLE IF NOT EXISTS regions (region_id BIGINT PRIMARY KEY, name VARCHAR NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS constellations (
		constellation_id BIGINT PRIMARY KEY,
		name VARCHAR NOT NULL,
		region_id BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS solar_systems (
		system_id BIGINT PRIMARY KEY,
		name VARCHAR NOT NULL,
		security DOUBLE NOT NULL,
		constellation_id BIGINT NOT NULL,
		region_id BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS celestials (
		item_id BIGINT PRIMARY KEY,
		name VARCHAR NOT NULL,
		system_id BIGINT NOT NULL,
		x DOUBLE NOT NULL,
		y DOUBLE NOT NULL,
		z DOUBLE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS item_groups (
		group_id BIGINT PRIMARY KEY,
		name VARCHAR NOT NULL,
		category_id BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS item_types (
		type_id BIGINT PRIMARY KEY,
		name VARCHAR NOT NULL,
		group_id BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS prices (
		type_id BIGINT NOT NULL,
		date DATE NOT NULL,
		average DOUBLE NOT NULL,
		PRIMARY KEY (type_id, date)
	)`,
	// A NULL date is the undated fallback for that type.
	`CREATE TABLE IF NOT EXISTS custom_prices (
		type_id BIGINT NOT NULL,
		date DATE,
		price DOUBLE NOT NULL
	)`,
}

func (db *DB) createTables(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
