// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/sources"
	"github.com/EVE-KILL/Thessia-sub001/internal/zkb"
)

// backfillDateLayout is the -backfill-from / -backfill-to format.
const backfillDateLayout = "2006-01-02"

// parseBackfillRange parses the flag values. An empty to means the single
// day from.
func parseBackfillRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(backfillDateLayout, from, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -backfill-from %q: want YYYY-MM-DD", from)
	}
	if to == "" {
		return start, start, nil
	}
	end, err := time.ParseInLocation(backfillDateLayout, to, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -backfill-to %q: want YYYY-MM-DD", to)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("-backfill-to %s is before -backfill-from %s", to, from)
	}
	return start, end, nil
}

// runBackfill enqueues every unknown killmail in the range at bulk priority
// and returns. Workers of a running server drain the queue.
func runBackfill(ctx context.Context, cfg *config.Config, from, to string) error {
	start, end, err := parseBackfillRange(from, to)
	if err != nil {
		return err
	}

	infra, err := openInfrastructure(cfg)
	if err != nil {
		return err
	}
	defer infra.Close()

	history := sources.NewHistory(zkb.NewHistoryClient(cfg.ZKB), infra.db, infra.killmails, cfg.Sources.HistoryDays, cfg.Sources.HistoryInterval)

	logging.Info().Str("from", from).Str("to", end.Format(backfillDateLayout)).Msg("Starting history backfill")
	enqueued, err := history.Backfill(ctx, start, end)
	logging.Info().Int("enqueued", enqueued).Msg("History backfill finished")
	if err != nil {
		return fmt.Errorf("backfill interrupted after %d jobs: %w", enqueued, err)
	}
	return nil
}
