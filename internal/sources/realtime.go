// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package sources

import (
	"context"
	"strconv"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/cache"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
	"github.com/EVE-KILL/Thessia-sub001/internal/zkb"
)

// DefaultRealtimeInterval is the RedisQ poll and retry delay.
const DefaultRealtimeInterval = 500 * time.Millisecond

// Poller returns the next killmail reference, or nil when none is waiting.
// *zkb.RedisQClient implements it.
type Poller interface {
	Poll(ctx context.Context) (*models.KillmailRef, error)
}

// FeedRunner streams references until ctx ends. *zkb.Feed implements it.
type FeedRunner interface {
	Run(ctx context.Context, handle zkb.RefHandler) error
}

// realtime holds what the long-poll and WebSocket adapters share. Both see
// the same kills, so recently handled references are skipped in memory.
type realtime struct {
	checker Checker
	queue   Enqueuer
	seen    *cache.LRUCache
}

func newRealtime(checker Checker, q Enqueuer, seen *cache.LRUCache) realtime {
	if seen == nil {
		seen = NewSeenCache()
	}
	return realtime{checker: checker, queue: q, seen: seen}
}

// NewSeenCache returns a cache suitable for sharing between the realtime
// adapters.
func NewSeenCache() *cache.LRUCache {
	return cache.NewLRUCache(10000, 10*time.Minute)
}

// handle enqueues ref at priority 1 unless it is already stored.
func (r realtime) handle(ctx context.Context, source string, ref models.KillmailRef) {
	key := strconv.FormatInt(ref.KillmailID, 10) + ":" + ref.Hash
	if r.seen.IsDuplicate(key) {
		return
	}

	log := logging.With().Str("source", source).Int64("killmail_id", ref.KillmailID).Logger()

	exists, err := r.checker.KillmailExists(ctx, ref.KillmailID)
	if err != nil {
		r.seen.Remove(key)
		metrics.SourceErrors.WithLabelValues(source).Inc()
		log.Warn().Err(err).Msg("Failed to check killmail")
		return
	}
	metrics.RecordDiscovery(source, !exists)
	if exists {
		return
	}

	if _, err := r.queue.Enqueue(ctx, KillmailRequest(ref, models.PriorityDefault, 0)); err != nil {
		r.seen.Remove(key)
		metrics.SourceErrors.WithLabelValues(source).Inc()
		log.Warn().Err(err).Msg("Failed to enqueue killmail")
		return
	}
	log.Debug().Msg("Queued killmail")
}

// Realtime long-polls RedisQ.
type Realtime struct {
	realtime
	poller Poller
	delay  time.Duration
}

// NewRealtime creates the long-poll adapter. seen may be shared with the
// Feed adapter; nil gets a private cache.
func NewRealtime(poller Poller, checker Checker, q Enqueuer, seen *cache.LRUCache, delay time.Duration) *Realtime {
	if delay <= 0 {
		delay = DefaultRealtimeInterval
	}
	return &Realtime{realtime: newRealtime(checker, q, seen), poller: poller, delay: delay}
}

// Serve polls until ctx ends. Transport errors are logged and retried
// after the poll delay.
func (a *Realtime) Serve(ctx context.Context) error {
	logging.Info().Str("source", SourceRedisQ).Msg("Starting source adapter")
	for {
		ref, err := a.poller.Poll(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			metrics.SourceErrors.WithLabelValues(SourceRedisQ).Inc()
			logging.Warn().Err(err).Str("source", SourceRedisQ).Msg("Poll failed")
			if !sleep(ctx, a.delay) {
				return ctx.Err()
			}
			continue
		}
		if ref != nil {
			a.handle(ctx, SourceRedisQ, *ref)
		}
	}
}

func (a *Realtime) String() string {
	return "source:" + SourceRedisQ
}

// Feed consumes the zKillboard killstream.
type Feed struct {
	realtime
	runner FeedRunner
}

// NewFeed creates the WebSocket feed adapter.
func NewFeed(runner FeedRunner, checker Checker, q Enqueuer, seen *cache.LRUCache) *Feed {
	return &Feed{realtime: newRealtime(checker, q, seen), runner: runner}
}

// Serve runs the feed client until ctx ends.
func (a *Feed) Serve(ctx context.Context) error {
	logging.Info().Str("source", SourceFeed).Msg("Starting source adapter")
	if err := a.runner.Run(ctx, func(ctx context.Context, ref models.KillmailRef) {
		a.handle(ctx, SourceFeed, ref)
	}); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

func (a *Feed) String() string {
	return "source:" + SourceFeed
}
