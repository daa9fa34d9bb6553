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

// Checker reports which killmails are already persisted.
// *database.DB implements it.
type Checker interface {
	KillmailExists(ctx context.Context, killmailID int64) (bool, error)
	ExistingKillmailIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error)
}

// Enqueuer schedules fetch jobs. *queue.Queue implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.Request) (string, error)
	EnqueueBulk(ctx context.Context, reqs []queue.Request) (int, error)
}

// Source names used in logs and metrics.
const (
	SourceRedisQ   = "redisq"
	SourceFeed     = "feed"
	SourceHistory  = "history"
	SourceBackfill = "backfill"
	SourceUser     = "user"
	SourceDelayed  = "delayed"
	SourceWar      = "war"
)

// KillmailRequest builds the fetch job for ref.
func KillmailRequest(ref models.KillmailRef, priority int, warID int64) queue.Request {
	job := models.PendingJob{
		KillmailID: ref.KillmailID,
		Hash:       ref.Hash,
		WarID:      warID,
		Priority:   priority,
	}
	return queue.Request{
		Kind:    models.JobKindKillmail,
		Payload: job,
		Options: queue.Options{
			Priority:    priority,
			MaxAttempts: models.DefaultAttempts,
			Backoff:     models.DefaultBackoff,
			DedupeKey:   job.DedupeKey(),
		},
	}
}

// uniqueRefs drops repeated IDs, keeping the first hash seen.
func uniqueRefs(refs []models.KillmailRef) []models.KillmailRef {
	seen := make(map[int64]struct{}, len(refs))
	out := make([]models.KillmailRef, 0, len(refs))
	for _, r := range refs {
		if r.KillmailID <= 0 || r.Hash == "" {
			continue
		}
		if _, dup := seen[r.KillmailID]; dup {
			continue
		}
		seen[r.KillmailID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// filterNew returns the refs whose killmail is not yet persisted.
func filterNew(ctx context.Context, checker Checker, source string, refs []models.KillmailRef) ([]models.KillmailRef, error) {
	refs = uniqueRefs(refs)
	if len(refs) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(refs))
	for i, r := range refs {
		ids[i] = r.KillmailID
	}
	existing, err := checker.ExistingKillmailIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("check existing killmails: %w", err)
	}

	fresh := make([]models.KillmailRef, 0, len(refs))
	for _, r := range refs {
		_, known := existing[r.KillmailID]
		metrics.RecordDiscovery(source, !known)
		if !known {
			fresh = append(fresh, r)
		}
	}
	return fresh, nil
}

// enqueueNew filters refs against persistence and bulk-enqueues the rest.
// It returns the number of jobs written.
func enqueueNew(ctx context.Context, checker Checker, q Enqueuer, source string, refs []models.KillmailRef, priority int, warID int64) (int, error) {
	fresh, err := filterNew(ctx, checker, source, refs)
	if err != nil || len(fresh) == 0 {
		return 0, err
	}

	reqs := make([]queue.Request, len(fresh))
	for i, r := range fresh {
		reqs[i] = KillmailRequest(r, priority, warID)
	}
	n, err := q.EnqueueBulk(ctx, reqs)
	if err != nil {
		return n, fmt.Errorf("enqueue %d killmails: %w", len(reqs), err)
	}
	return n, nil
}

// sleep waits for d or until ctx ends. It reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// runEvery calls fn immediately and then on every tick until ctx ends.
func runEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) error {
	logging.Info().Str("source", name).Dur("interval", interval).Msg("Starting source adapter")
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("source", name).Msg("Source adapter stopped")
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}
