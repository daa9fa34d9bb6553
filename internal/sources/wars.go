// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package sources

import (
	"context"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// DefaultWarsInterval is how often configured wars are re-read.
const DefaultWarsInterval = 6 * time.Hour

// WarLister lists a war's killmails. *esi.Client implements it.
type WarLister interface {
	WarKillmails(ctx context.Context, warID int64) ([]models.KillmailRef, error)
}

// Wars enqueues killmails from the configured wars at war priority.
type Wars struct {
	lister   WarLister
	checker  Checker
	queue    Enqueuer
	warIDs   []int64
	interval time.Duration
}

// NewWars creates the war adapter.
func NewWars(lister WarLister, checker Checker, q Enqueuer, warIDs []int64, interval time.Duration) *Wars {
	if interval <= 0 {
		interval = DefaultWarsInterval
	}
	return &Wars{lister: lister, checker: checker, queue: q, warIDs: warIDs, interval: interval}
}

// SyncWar enqueues the unseen killmails of one war.
func (w *Wars) SyncWar(ctx context.Context, warID int64) (int, error) {
	refs, err := w.lister.WarKillmails(ctx, warID)
	if err != nil {
		return 0, err
	}
	return enqueueNew(ctx, w.checker, w.queue, SourceWar, refs, models.PriorityWar, warID)
}

// Sweep syncs every configured war. A failed war is logged and skipped.
func (w *Wars) Sweep(ctx context.Context) int {
	total := 0
	for _, id := range w.warIDs {
		if ctx.Err() != nil {
			break
		}
		n, err := w.SyncWar(ctx, id)
		total += n
		if err != nil {
			metrics.SourceErrors.WithLabelValues(SourceWar).Inc()
			logging.Warn().Err(err).Int64("war_id", id).Msg("War sync failed")
		}
	}
	return total
}

// Serve sweeps on start and then every interval.
func (w *Wars) Serve(ctx context.Context) error {
	return runEvery(ctx, SourceWar, w.interval, func(ctx context.Context) {
		if n := w.Sweep(ctx); n > 0 {
			logging.Info().Int("queued", n).Int("wars", len(w.warIDs)).Msg("War killmails queued")
		}
	})
}

func (w *Wars) String() string {
	return "source:" + SourceWar
}
