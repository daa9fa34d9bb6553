// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/EVE-KILL/Thessia-sub001/internal/esi"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
	"github.com/EVE-KILL/Thessia-sub001/internal/tokens"
)

// Defaults for per-user polling.
const (
	DefaultUserPollInterval = time.Minute
	DefaultUserStaleAfter   = 5 * time.Minute
)

// UserStore is the persistence the user poller needs. *database.DB
// implements it.
type UserStore interface {
	StaleUsers(ctx context.Context, before time.Time) ([]models.UserCredential, error)
	TouchLastChecked(ctx context.Context, characterID int64, at time.Time) error
	ClearCorporationCapability(ctx context.Context, characterID int64) error
	UpsertPlaceholder(ctx context.Context, killmailID int64, hash string, visibleAt *time.Time) (*models.Placeholder, error)
	MarkPlaceholdersQueued(ctx context.Context, ids []int64) error
}

// KillmailLister fetches authenticated kill lists. *esi.Client implements it.
type KillmailLister interface {
	CharacterKillmails(ctx context.Context, characterID int64, token string) ([]models.KillmailRef, error)
	CorporationKillmails(ctx context.Context, corporationID int64, token string) ([]models.KillmailRef, error)
}

// TokenKeeper keeps credentials usable. *tokens.Manager implements it.
type TokenKeeper interface {
	EnsureFresh(ctx context.Context, u *models.UserCredential) error
	Refresh(ctx context.Context, u *models.UserCredential) error
}

// UserPoll fetches each registered user's recent kills.
type UserPoll struct {
	store      UserStore
	lister     KillmailLister
	tokens     TokenKeeper
	checker    Checker
	queue      Enqueuer
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

// NewUserPoll creates the per-user adapter.
func NewUserPoll(store UserStore, lister KillmailLister, tk TokenKeeper, checker Checker, q Enqueuer, interval, staleAfter time.Duration) *UserPoll {
	if interval <= 0 {
		interval = DefaultUserPollInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultUserStaleAfter
	}
	return &UserPoll{
		store:      store,
		lister:     lister,
		tokens:     tk,
		checker:    checker,
		queue:      q,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// PollResult summarizes one user's poll.
type PollResult struct {
	Discovered  int
	Placeholder int
	Queued      int
}

// Cycle polls every stale user once, one after another.
func (p *UserPoll) Cycle(ctx context.Context) {
	users, err := p.store.StaleUsers(ctx, p.now().Add(-p.staleAfter))
	if err != nil {
		metrics.SourceErrors.WithLabelValues(SourceUser).Inc()
		logging.Error().Err(err).Msg("Failed to load users due for polling")
		return
	}

	for i := range users {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.PollUser(ctx, &users[i]); err != nil && !tokens.IsDeactivated(err) {
			metrics.SourceErrors.WithLabelValues(SourceUser).Inc()
		}
	}
}

// PollUser runs one poll for u. last_checked is updated whatever happens.
func (p *UserPoll) PollUser(ctx context.Context, u *models.UserCredential) (res PollResult, err error) {
	log := logging.With().
		Int64("character_id", u.CharacterID).
		Int64("corporation_id", u.CorporationID).
		Logger()

	defer func() {
		// A canceled cycle still records the attempt.
		touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if terr := p.store.TouchLastChecked(touchCtx, u.CharacterID, p.now()); terr != nil {
			log.Warn().Err(terr).Msg("Failed to update last_checked")
		}
		if err != nil && !tokens.IsDeactivated(err) {
			log.Warn().Err(err).Msg("User poll failed")
		}
	}()

	if err := p.tokens.EnsureFresh(ctx, u); err != nil {
		return res, err
	}

	refs, err := p.lister.CharacterKillmails(ctx, u.CharacterID, u.AccessToken)
	if err != nil {
		if esi.IsInvalidToken(err) {
			return res, p.tokenRejected(ctx, u, log)
		}
		return res, fmt.Errorf("list character killmails: %w", err)
	}

	if u.IsPlayerCorporation() && u.CanFetchCorporationKillmails {
		corpRefs, cerr := p.lister.CorporationKillmails(ctx, u.CorporationID, u.AccessToken)
		// Pages fetched before a failure are still used.
		refs = append(refs, corpRefs...)
		if cerr != nil {
			if esi.IsInvalidToken(cerr) {
				return res, p.tokenRejected(ctx, u, log)
			}
			if lerr := p.corporationError(ctx, u, cerr, log); lerr != nil {
				return res, lerr
			}
		}
	}

	fresh, err := filterNew(ctx, p.checker, SourceUser, refs)
	if err != nil {
		return res, err
	}
	res.Discovered = len(fresh)

	var visibleAt *time.Time
	if d := u.Delay(); d > 0 {
		t := p.now().Add(d).UTC()
		visibleAt = &t
	}

	for _, ref := range fresh {
		queued, err := p.place(ctx, ref, visibleAt)
		if err != nil {
			return res, err
		}
		res.Placeholder++
		if queued {
			res.Queued++
		}
	}

	if res.Discovered > 0 {
		log.Debug().Int("new", res.Discovered).Int("queued", res.Queued).Msg("User poll found killmails")
	}
	return res, nil
}

// place records the placeholder and enqueues the killmail now if the merged
// visibility is immediate.
func (p *UserPoll) place(ctx context.Context, ref models.KillmailRef, visibleAt *time.Time) (bool, error) {
	ph, err := p.store.UpsertPlaceholder(ctx, ref.KillmailID, ref.Hash, visibleAt)
	if err != nil {
		return false, fmt.Errorf("upsert placeholder %d: %w", ref.KillmailID, err)
	}
	if ph.Queued || ph.VisibleAt != nil {
		return false, nil
	}

	if _, err := p.queue.Enqueue(ctx, KillmailRequest(ref, models.PriorityDefault, 0)); err != nil {
		return false, fmt.Errorf("enqueue killmail %d: %w", ref.KillmailID, err)
	}
	if err := p.store.MarkPlaceholdersQueued(ctx, []int64{ref.KillmailID}); err != nil {
		return true, fmt.Errorf("mark placeholder %d queued: %w", ref.KillmailID, err)
	}
	return true, nil
}

// tokenRejected handles ESI refusing the access token on a list call. The
// token is refreshed and the user skipped for this cycle; only a terminal
// refresh answer deactivates polling.
func (p *UserPoll) tokenRejected(ctx context.Context, u *models.UserCredential, log zerolog.Logger) error {
	if err := p.tokens.Refresh(ctx, u); err != nil {
		return err
	}
	log.Info().Msg("ESI rejected the access token, refreshed it and skipping this cycle")
	return nil
}

// corporationError degrades the corporation capability on a missing role
// and returns nil so the character's own kills are still processed.
func (p *UserPoll) corporationError(ctx context.Context, u *models.UserCredential, err error, log zerolog.Logger) error {
	if esi.IsMissingRole(err) {
		if cerr := p.store.ClearCorporationCapability(ctx, u.CharacterID); cerr != nil {
			return fmt.Errorf("clear corporation capability: %w", cerr)
		}
		u.CanFetchCorporationKillmails = false
		log.Info().Msg("Character lacks the corporation role, corporation killmails disabled")
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	log.Warn().Err(err).Msg("Corporation killmails failed, continuing with character killmails")
	return nil
}

// Serve polls on start and then every interval.
func (p *UserPoll) Serve(ctx context.Context) error {
	return runEvery(ctx, SourceUser, p.interval, p.Cycle)
}

func (p *UserPoll) String() string {
	return "source:" + SourceUser
}
