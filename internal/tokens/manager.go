// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

// Package tokens keeps per-user SSO credentials usable: it refreshes access
// tokens shortly before they expire, persists the new pair before anyone
// uses it, and permanently deactivates polling for users whose refresh
// token is dead.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/esi"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// DefaultRefreshAhead is how close to expiry a token is refreshed.
const DefaultRefreshAhead = 5 * time.Minute

// ErrDeactivated is returned once a user's polling has been switched off.
var ErrDeactivated = errors.New("polling deactivated")

// Store persists credential changes. *database.DB implements it.
type Store interface {
	SaveTokens(ctx context.Context, characterID int64, accessToken, refreshToken string, expiresAt time.Time) error
	DeactivatePolling(ctx context.Context, characterID int64) error
}

// Refresher performs the refresh-token grant. *esi.SSOClient implements it.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*esi.TokenResponse, error)
}

// Manager refreshes and persists user tokens.
type Manager struct {
	store        Store
	sso          Refresher
	refreshAhead time.Duration
	now          func() time.Time
}

// NewManager creates a token manager. A non-positive refreshAhead uses
// DefaultRefreshAhead.
func NewManager(store Store, sso Refresher, refreshAhead time.Duration) *Manager {
	if refreshAhead <= 0 {
		refreshAhead = DefaultRefreshAhead
	}
	return &Manager{
		store:        store,
		sso:          sso,
		refreshAhead: refreshAhead,
		now:          time.Now,
	}
}

// EnsureFresh refreshes u when its access token expires within the refresh
// window. u is updated in place only after the new tokens are persisted.
func (m *Manager) EnsureFresh(ctx context.Context, u *models.UserCredential) error {
	if !u.ExpiresWithin(m.now(), m.refreshAhead) {
		return nil
	}
	return m.Refresh(ctx, u)
}

// Refresh unconditionally exchanges u's refresh token. A terminal SSO
// answer deactivates polling and returns an error wrapping ErrDeactivated.
func (m *Manager) Refresh(ctx context.Context, u *models.UserCredential) error {
	log := logging.Ctx(ctx).With().
		Int64("character_id", u.CharacterID).
		Str("refresh_token", logging.SanitizeToken(u.RefreshToken)).
		Logger()

	tr, err := m.sso.RefreshToken(ctx, u.RefreshToken)
	if err != nil {
		var oauthErr *esi.OAuthError
		if errors.As(err, &oauthErr) && oauthErr.Terminal() {
			metrics.TokenRefreshes.WithLabelValues("terminal").Inc()
			reason := oauthErr.Code
			if oauthErr.Expired() {
				reason = "refresh_token_expired"
			}
			return m.Deactivate(ctx, u, reason)
		}
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("refresh token for character %d: %w", u.CharacterID, err)
	}

	expiresAt := m.now().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC()
	if claims, err := ParseClaims(tr.AccessToken); err == nil {
		if !claims.ExpiresAt.IsZero() {
			expiresAt = claims.ExpiresAt
		}
		if claims.CharacterID != 0 && claims.CharacterID != u.CharacterID {
			log.Warn().Int64("token_character_id", claims.CharacterID).Msg("Refreshed token belongs to another character")
		}
	} else {
		log.Debug().Err(err).Msg("Access token is not a readable JWT, using expires_in")
	}

	if err := m.store.SaveTokens(ctx, u.CharacterID, tr.AccessToken, tr.RefreshToken, expiresAt); err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("persist refreshed tokens for character %d: %w", u.CharacterID, err)
	}

	u.AccessToken = tr.AccessToken
	u.RefreshToken = tr.RefreshToken
	u.ExpiresAt = expiresAt
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	log.Debug().Time("expires_at", expiresAt).Msg("Refreshed access token")
	return nil
}

// Deactivate switches polling off for u and records why. The returned error
// always wraps ErrDeactivated.
func (m *Manager) Deactivate(ctx context.Context, u *models.UserCredential, reason string) error {
	if err := m.store.DeactivatePolling(ctx, u.CharacterID); err != nil {
		return fmt.Errorf("deactivate polling for character %d: %w", u.CharacterID, err)
	}
	u.PollingActive = false
	metrics.PollingDeactivations.Inc()
	logging.Ctx(ctx).Warn().
		Int64("character_id", u.CharacterID).
		Str("character_name", u.CharacterName).
		Str("reason", reason).
		Msg("Polling deactivated for user")
	return fmt.Errorf("character %d: %s: %w", u.CharacterID, reason, ErrDeactivated)
}

// IsDeactivated reports whether err means polling was switched off.
func IsDeactivated(err error) bool {
	return errors.Is(err, ErrDeactivated)
}
