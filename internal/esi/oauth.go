// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package esi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
)

// TokenResponse is a successful refresh-token grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// OAuthError is the structured error body of a failed grant.
type OAuthError struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("sso token refresh: %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("sso token refresh: %s (status %d)", e.Code, e.Status)
}

// Terminal reports whether the refresh token can never be used again.
// Every invalid_grant (expired, revoked or malformed) and invalid_token
// answer is terminal; server errors and rate limits are not.
func (e *OAuthError) Terminal() bool {
	return e.Code == "invalid_grant" || e.Code == "invalid_token"
}

// Expired reports whether SSO said the refresh token expired.
func (e *OAuthError) Expired() bool {
	return e.Code == "invalid_grant" && strings.Contains(strings.ToLower(e.Description), "expired")
}

// SSOClient refreshes OAuth tokens.
type SSOClient struct {
	tokenURL     string
	clientID     string
	clientSecret string
	http         *http.Client
}

// NewSSOClient creates an SSO client from configuration.
func NewSSOClient(cfg config.SSOConfig) *SSOClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SSOClient{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		http:         &http.Client{Timeout: timeout},
	}
}

// RefreshToken exchanges a refresh token for a new token pair. A non-2xx
// answer is returned as *OAuthError rather than a transport error.
func (s *SSOClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create refresh request: %w", err)
	}
	req.SetBasicAuth(s.clientID, s.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		metrics.RecordExternalRequest("sso", "error", time.Since(start))
		return nil, fmt.Errorf("sso token refresh: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordExternalRequest("sso", strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := readBodyForError(resp.Body)
		logging.Warn().
			Int("status", resp.StatusCode).
			Str("refresh_token", logging.SanitizeValue("refresh_token", refreshToken)).
			Str("body", logging.TruncateBody(string(body), 512)).
			Msg("SSO token refresh rejected")

		oauthErr := &OAuthError{Status: resp.StatusCode}
		if err := json.Unmarshal(body, oauthErr); err != nil || oauthErr.Code == "" {
			oauthErr.Code = "http_" + strconv.Itoa(resp.StatusCode)
			oauthErr.Description = strings.TrimSpace(string(body))
		}
		return nil, oauthErr
	}

	var tr TokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBodySize)).Decode(&tr); err != nil {
		return nil, fmt.Errorf("sso token refresh: decode: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("sso token refresh: empty access token")
	}
	if tr.RefreshToken == "" {
		tr.RefreshToken = refreshToken
	}
	return &tr, nil
}
