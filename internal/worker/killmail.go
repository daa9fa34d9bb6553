// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
	"github.com/EVE-KILL/Thessia-sub001/internal/queue"
	"github.com/EVE-KILL/Thessia-sub001/internal/routing"
	"github.com/EVE-KILL/Thessia-sub001/internal/validation"
)

// Fetcher retrieves a raw killmail. *esi.Client implements it.
type Fetcher interface {
	FetchKillmail(ctx context.Context, killmailID int64, hash string) models.FetchResult
}

// Enricher resolves a raw killmail. *enrich.Engine implements it.
type Enricher interface {
	Enrich(ctx context.Context, raw *models.RawKillmail) (*models.EnrichedKillmail, error)
}

// KillmailStore persists enriched killmails. *database.DB implements it.
type KillmailStore interface {
	UpsertKillmail(ctx context.Context, km *models.EnrichedKillmail) error
}

// Publisher broadcasts a killmail with its routing keys.
// *eventprocessor.Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, km *models.EnrichedKillmail, topics []string) error
}

// KillmailProcessor fetches, enriches, persists, classifies and publishes
// one killmail per job.
type KillmailProcessor struct {
	fetcher   Fetcher
	enricher  Enricher
	store     KillmailStore
	publisher Publisher
}

// NewKillmailProcessor creates the processor. publisher may be nil when
// distribution is disabled.
func NewKillmailProcessor(f Fetcher, e Enricher, s KillmailStore, p Publisher) *KillmailProcessor {
	return &KillmailProcessor{fetcher: f, enricher: e, store: s, publisher: p}
}

// Handle implements Handler.
func (p *KillmailProcessor) Handle(ctx context.Context, job *queue.Job) error {
	var pending models.PendingJob
	if err := job.Decode(&pending); err != nil {
		return queue.Permanent(fmt.Errorf("decode killmail job: %w", err))
	}
	if verr := validation.ValidateStruct(&pending); verr != nil {
		return queue.Permanent(fmt.Errorf("invalid killmail job: %w", verr))
	}

	log := logging.Ctx(ctx).With().Int64("killmail_id", pending.KillmailID).Logger()

	result := p.fetcher.FetchKillmail(ctx, pending.KillmailID, pending.Hash)
	raw, ok := result.Killmail()
	if !ok {
		detail := result.Detail()
		if !detail.Retryable {
			return queue.Permanent(detail)
		}
		return detail
	}
	if pending.WarID != 0 {
		raw.WarID = pending.WarID
	}

	km, err := p.enricher.Enrich(ctx, raw)
	if err != nil {
		return fmt.Errorf("enrich killmail %d: %w", pending.KillmailID, err)
	}
	if err := p.store.UpsertKillmail(ctx, km); err != nil {
		return fmt.Errorf("persist killmail %d: %w", pending.KillmailID, err)
	}

	topics := routing.Classify(km).Sorted()
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, km, topics); err != nil {
			return fmt.Errorf("publish killmail %d: %w", pending.KillmailID, err)
		}
	}

	log.Debug().
		Float64("total_value", km.TotalValue).
		Strs("topics", topics).
		Msg("Killmail processed")
	return nil
}

// PlaceholderStore releases placeholders whose job left the queue without
// success. *database.DB implements it.
type PlaceholderStore interface {
	RequeuePlaceholder(ctx context.Context, killmailID int64, at time.Time) error
	DeletePlaceholder(ctx context.Context, killmailID int64) error
}

// ReleasePlaceholders returns a queue drop hook for killmail jobs. A
// permanently failed killmail loses its placeholder; an exhausted one is
// made visible again after retryAfter so the delayed sweep picks it up.
func ReleasePlaceholders(store PlaceholderStore, retryAfter time.Duration) queue.DropFunc {
	return func(ctx context.Context, job *queue.Job, cause error) {
		var pending models.PendingJob
		if err := job.Decode(&pending); err != nil || pending.KillmailID == 0 {
			return
		}
		log := logging.Ctx(ctx).With().
			Int64("killmail_id", pending.KillmailID).
			AnErr("cause", cause).
			Logger()

		if queue.IsPermanent(cause) {
			if err := store.DeletePlaceholder(ctx, pending.KillmailID); err != nil {
				log.Error().Err(err).Msg("Failed to delete placeholder for dropped killmail")
			}
			return
		}
		at := time.Now().Add(retryAfter)
		if err := store.RequeuePlaceholder(ctx, pending.KillmailID, at); err != nil {
			log.Error().Err(err).Msg("Failed to requeue placeholder for dropped killmail")
			return
		}
		log.Info().Time("visible_at", at).Msg("Killmail job exhausted, placeholder released for a later sweep")
	}
}
