// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

/*
Package esi is the client for the game's public API (ESI) and its SSO
token endpoint.

Client Features:
  - Token bucket rate limiting shared by all callers (x/time/rate)
  - Circuit breaker around every request (sony/gobreaker)
  - HTTP 429 and 5xx retries honoring Retry-After
  - Error bodies read with a 64KB cap
  - Raw killmails validated at the boundary and returned as models.FetchResult

The client is safe for concurrent use.
*/
package esi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/logging"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
)

const (
	// maxErrorBodySize caps how much of an error response is read.
	maxErrorBodySize = 64 * 1024

	// maxBodySize caps successful responses.
	maxBodySize = 32 * 1024 * 1024

	breakerName = "esi"
)

// APIError is a non-2xx response from ESI.
type APIError struct {
	Path       string
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("esi %s: status %d: %s", e.Path, e.Status, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status == 420 || e.Status >= 500
}

// IsMissingRole reports whether err is ESI refusing a corporation endpoint
// because the character lacks the required in-game role.
func IsMissingRole(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "role")
}

// IsInvalidToken reports whether ESI rejected the bearer token itself: any
// 401, or a 4xx whose body names the token as invalid.
func IsInvalidToken(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusUnauthorized {
		return true
	}
	if apiErr.Status < 400 || apiErr.Status >= 500 {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "invalid_token") || strings.Contains(msg, "invalid_grant")
}

// IsNotFound reports whether err is a 404 from ESI.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// Client talks to ESI.
type Client struct {
	baseURL        string
	userAgent      string
	pageSize       int
	maxRetries     int
	retryBaseDelay time.Duration

	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*response]
}

// NewClient creates an ESI client from configuration.
func NewClient(cfg config.ESIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:      cfg.UserAgent,
		pageSize:       pageSize,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: time.Second,
		http:           &http.Client{Timeout: timeout},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		breaker:        newBreaker[*response](breakerName, cfg.BreakerFailures, cfg.BreakerTimeout),
	}
}

// PageSize is the number of entries in a full page.
func (c *Client) PageSize() int {
	return c.pageSize
}

// get performs a GET with rate limiting, circuit breaking and retries.
// token, when set, is sent as a bearer token.
func (c *Client) get(ctx context.Context, path string, query map[string]string, token string) (*response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.breaker.Execute(func() (*response, error) {
			return c.send(ctx, path, query, token)
		})
		recordBreakerResult(breakerName, err)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Temporary() || attempt == c.maxRetries {
			return nil, err
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if apiErr.RetryAfter > 0 {
			delay = apiErr.RetryAfter
		}
		logging.Debug().
			Str("path", path).
			Int("status", apiErr.Status).
			Dur("delay", delay).
			Int("attempt", attempt+1).
			Msg("Retrying ESI request")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, path string, query map[string]string, token string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("datasource", "tranquility")
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordExternalRequest("esi", "error", time.Since(start))
		return nil, fmt.Errorf("esi %s: %w", path, err)
	}
	defer resp.Body.Close()
	metrics.RecordExternalRequest("esi", strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(path, resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("esi %s: read body: %w", path, err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func newAPIError(path string, resp *http.Response) *APIError {
	body := readBodyForError(resp.Body)
	apiErr := &APIError{Path: path, Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}

func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}
