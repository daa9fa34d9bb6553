// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

// Package zkb holds the clients for zKillboard's public feeds: the RedisQ
// long-poll endpoint, the daily history census and the WebSocket killstream.
package zkb

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
	"golang.org/x/time/rate"

	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/metrics"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

const maxErrorBodySize = 64 * 1024

// StatusError is a non-2xx response from zKillboard.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("zkillboard %s: status %d: %s", e.URL, e.Status, e.Body)
}

type redisqEnvelope struct {
	Package *struct {
		KillID int64 `json:"killID"`
		ZKB    struct {
			Hash string `json:"hash"`
		} `json:"zkb"`
	} `json:"package"`
}

// RedisQClient long-polls the RedisQ endpoint.
type RedisQClient struct {
	url     string
	queueID string
	http    *http.Client
	limiter *rate.Limiter
}

// NewRedisQClient creates a RedisQ client. interval is the minimum gap
// between polls.
func NewRedisQClient(cfg config.ZKBConfig, interval time.Duration) *RedisQClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &RedisQClient{
		url:     cfg.RedisQURL,
		queueID: cfg.QueueID,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Poll waits for the next killmail reference. It returns nil without error
// when the endpoint answered with an empty package.
func (c *RedisQClient) Poll(ctx context.Context) (*models.KillmailRef, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("parse redisq url: %w", err)
	}
	if c.queueID != "" {
		q := u.Query()
		q.Set("queueID", c.queueID)
		u.RawQuery = q.Encode()
	}

	body, err := getBody(ctx, c.http, u.String(), "redisq")
	if err != nil {
		return nil, err
	}
	return ParseRedisQ(body)
}

// ParseRedisQ decodes one RedisQ response.
func ParseRedisQ(body []byte) (*models.KillmailRef, error) {
	var env redisqEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode redisq package: %w", err)
	}
	if env.Package == nil {
		return nil, nil
	}
	if env.Package.KillID <= 0 || env.Package.ZKB.Hash == "" {
		return nil, fmt.Errorf("redisq package missing killID or hash")
	}
	return &models.KillmailRef{KillmailID: env.Package.KillID, Hash: env.Package.ZKB.Hash}, nil
}

func getBody(ctx context.Context, client *http.Client, rawURL, api string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Thessia (https://github.com/EVE-KILL/Thessia)")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		metrics.RecordExternalRequest(api, "error", time.Since(start))
		return nil, fmt.Errorf("%s request: %w", api, err)
	}
	defer resp.Body.Close()
	metrics.RecordExternalRequest(api, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &StatusError{URL: rawURL, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s read body: %w", api, err)
	}
	return body, nil
}
