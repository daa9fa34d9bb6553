// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
	"github.com/EVE-KILL/Thessia-sub001/internal/queue"
)

// Defaults for the delayed-placeholder sweep.
const (
	DefaultDelayedInterval = time.Minute
	delayedBatch           = 1000
)

// PlaceholderStore lists and marks due placeholders. *database.DB
// implements it.
type PlaceholderStore interface {
	DuePlaceholders(ctx context.Context, now time.Time, limit int) ([]models.Placeholder, error)
	MarkPlaceholdersQueued(ctx context.Context, ids []int64) error
}

// Delayed enqueues placeholders once their visibility time has passed.
type Delayed struct {
	store    PlaceholderStore
	queue    Enqueuer
	interval time.Duration
	now      func() time.Time
}

// NewDelayed creates the sweep.
func NewDelayed(store PlaceholderStore, q Enqueuer, interval time.Duration) *Delayed {
	if interval <= 0 {
		interval = DefaultDelayedInterval
	}
	return &Delayed{store: store, queue: q, interval: interval, now: time.Now}
}

// Sweep enqueues every due placeholder in batches and returns how many
// were handed to the queue.
func (d *Delayed) Sweep(ctx context.Context) (int, error) {
	now := d.now()
	total := 0
	for {
		due, err := d.store.DuePlaceholders(ctx, now, delayedBatch)
		if err != nil {
			return total, fmt.Errorf("load due placeholders: %w", err)
		}
		if len(due) == 0 {
			return total, nil
		}

		reqs := make([]queue.Request, len(due))
		ids := make([]int64, len(due))
		for i, ph := range due {
			reqs[i] = KillmailRequest(models.KillmailRef{KillmailID: ph.KillmailID, Hash: ph.Hash}, models.PriorityDefault, 0)
			ids[i] = ph.KillmailID
		}
		if _, err := d.queue.EnqueueBulk(ctx, reqs); err != nil {
			return total, fmt.Errorf("enqueue due placeholders: %w", err)
		}
		if err := d.store.MarkPlaceholdersQueued(ctx, ids); err != nil {
			return total, fmt.Errorf("mark placeholders queued: %w", err)
		}
		total += len(due)
		metrics.SourceDiscovered.WithLabelValues(SourceDelayed, "new").Add(float64(len(due)))

		if len(due) < delayedBatch {
			return total, nil
		}
	}
}

// Serve sweeps on start and then every interval.
func (d *Delayed) Serve(ctx context.Context) error {
	return runEvery(ctx, SourceDelayed, d.interval, func(ctx context.Context) {
		n, err := d.Sweep(ctx)
		if err != nil {
			metrics.SourceErrors.WithLabelValues(SourceDelayed).Inc()
			logging.Warn().Err(err).Int("queued", n).Msg("Delayed sweep failed")
			return
		}
		if n > 0 {
			logging.Info().Int("queued", n).Msg("Delayed killmails released")
		}
	})
}

func (d *Delayed) String() string {
	return "source:" + SourceDelayed
}
