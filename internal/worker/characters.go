// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package worker

import (
	"context"
	"fmt"

	"github.com/EVE-KILL/Thessia-sub001/internal/esi"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
	"github.com/EVE-KILL/Thessia-sub001/internal/queue"
	"github.com/EVE-KILL/Thessia-sub001/internal/validation"
)

// CharacterFetcher loads a public character profile. *esi.Client
// implements it.
type CharacterFetcher interface {
	Character(ctx context.Context, characterID int64) (*models.Character, error)
}

// CharacterStore persists character profiles. *database.DB implements it.
type CharacterStore interface {
	UpsertCharacter(ctx context.Context, c *models.Character) error
}

// NameInvalidator drops a cached entity name.
// *enrich.CachedReference implements it.
type NameInvalidator interface {
	InvalidateName(kind models.EntityKind, id int64)
}

// CharacterProcessor refreshes the character records that enrichment
// flagged.
type CharacterProcessor struct {
	fetcher CharacterFetcher
	store   CharacterStore
	names   NameInvalidator
}

// NewCharacterProcessor creates the processor. names may be nil.
func NewCharacterProcessor(f CharacterFetcher, s CharacterStore, names NameInvalidator) *CharacterProcessor {
	return &CharacterProcessor{fetcher: f, store: s, names: names}
}

// Handle implements Handler.
func (p *CharacterProcessor) Handle(ctx context.Context, job *queue.Job) error {
	var cj models.CharacterJob
	if err := job.Decode(&cj); err != nil {
		return queue.Permanent(fmt.Errorf("decode character job: %w", err))
	}
	if verr := validation.ValidateStruct(&cj); verr != nil {
		return queue.Permanent(fmt.Errorf("invalid character job: %w", verr))
	}

	c, err := p.fetcher.Character(ctx, cj.CharacterID)
	if err != nil {
		if esi.IsNotFound(err) {
			return queue.Permanent(err)
		}
		return fmt.Errorf("fetch character %d: %w", cj.CharacterID, err)
	}
	if err := p.store.UpsertCharacter(ctx, c); err != nil {
		return fmt.Errorf("persist character %d: %w", cj.CharacterID, err)
	}
	if p.names != nil {
		p.names.InvalidateName(models.EntityCharacter, cj.CharacterID)
	}
	logging.Ctx(ctx).Debug().
		Int64("character_id", cj.CharacterID).
		Str("name", c.Name).
		Msg("Character refreshed")
	return nil
}
