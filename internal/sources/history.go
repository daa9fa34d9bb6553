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
	"github.com/EVE-KILL/Thessia-sub001/internal/zkb"
)

// Defaults for the scheduled history sweep.
const (
	DefaultHistoryDays     = 7
	DefaultHistoryInterval = time.Hour
)

// DayFetcher returns one day's census. *zkb.HistoryClient implements it.
type DayFetcher interface {
	FetchDay(ctx context.Context, day time.Time) ([]models.KillmailRef, error)
}

// History replays zKillboard's daily census to catch killmails the
// realtime adapters missed.
type History struct {
	fetcher  DayFetcher
	checker  Checker
	queue    Enqueuer
	days     int
	interval time.Duration
	now      func() time.Time
}

// NewHistory creates the history adapter. Non-positive days or interval
// use the defaults.
func NewHistory(fetcher DayFetcher, checker Checker, q Enqueuer, days int, interval time.Duration) *History {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	if interval <= 0 {
		interval = DefaultHistoryInterval
	}
	return &History{
		fetcher:  fetcher,
		checker:  checker,
		queue:    q,
		days:     days,
		interval: interval,
		now:      time.Now,
	}
}

// ReplayDay enqueues every killmail in day's census that is not stored.
func (h *History) ReplayDay(ctx context.Context, day time.Time, priority int, source string) (int, error) {
	refs, err := h.fetcher.FetchDay(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("fetch history for %s: %w", day.Format(zkb.DayFormat), err)
	}
	return enqueueNew(ctx, h.checker, h.queue, source, refs, priority, 0)
}

// Sweep replays the lookback window at catch-up priority. A failed day is
// logged and skipped.
func (h *History) Sweep(ctx context.Context) int {
	now := h.now()
	return h.replay(ctx, now.AddDate(0, 0, -(h.days-1)), now, models.PriorityCatchUp, SourceHistory)
}

// Backfill replays an explicit range, inclusive, at bulk priority.
func (h *History) Backfill(ctx context.Context, from, to time.Time) (int, error) {
	if to.Before(from) {
		return 0, fmt.Errorf("backfill range ends before it starts: %s > %s",
			from.Format(zkb.DayFormat), to.Format(zkb.DayFormat))
	}
	n := h.replay(ctx, from, to, models.PriorityBulk, SourceBackfill)
	return n, ctx.Err()
}

func (h *History) replay(ctx context.Context, from, to time.Time, priority int, source string) int {
	start := time.Now()
	total := 0
	for _, day := range zkb.Days(from, to) {
		if ctx.Err() != nil {
			break
		}
		n, err := h.ReplayDay(ctx, day, priority, source)
		total += n
		if err != nil {
			metrics.SourceErrors.WithLabelValues(source).Inc()
			logging.Warn().Err(err).Str("source", source).Str("day", day.Format(zkb.DayFormat)).Msg("History day failed")
			continue
		}
		if n > 0 {
			logging.Debug().Str("source", source).Str("day", day.Format(zkb.DayFormat)).Int("queued", n).Msg("History day replayed")
		}
	}

	logging.Info().
		Str("source", source).
		Str("from", from.UTC().Format(zkb.DayFormat)).
		Str("to", to.UTC().Format(zkb.DayFormat)).
		Int("queued", total).
		Dur("duration", time.Since(start)).
		Msg("History replay finished")
	return total
}

// Serve sweeps on start and then every interval.
func (h *History) Serve(ctx context.Context) error {
	return runEvery(ctx, SourceHistory, h.interval, func(ctx context.Context) {
		h.Sweep(ctx)
	})
}

func (h *History) String() string {
	return "source:" + SourceHistory
}
