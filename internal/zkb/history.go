// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package zkb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/EVE-KILL/Thessia-sub001/internal/config"
	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// DayFormat is the date layout used in history URLs.
const DayFormat = "20060102"

// HistoryClient fetches the daily {killmail_id: hash} census.
type HistoryClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewHistoryClient creates a history client.
func NewHistoryClient(cfg config.ZKBConfig) *HistoryClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HistoryClient{
		baseURL: strings.TrimRight(cfg.HistoryURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// FetchDay returns the census for day (UTC), ordered by killmail ID. A day
// zKillboard has no file for yields an empty result.
func (c *HistoryClient) FetchDay(ctx context.Context, day time.Time) ([]models.KillmailRef, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s.json", c.baseURL, day.UTC().Format(DayFormat))
	body, err := getBody(ctx, c.http, url, "zkb_history")
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return ParseHistory(body)
}

// ParseHistory decodes a census document. Entries with a non-numeric key or
// an empty hash are skipped.
func ParseHistory(body []byte) ([]models.KillmailRef, error) {
	var census map[string]string
	if err := json.Unmarshal(body, &census); err != nil {
		return nil, fmt.Errorf("decode history census: %w", err)
	}

	refs := make([]models.KillmailRef, 0, len(census))
	for k, hash := range census {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil || id <= 0 || hash == "" {
			continue
		}
		refs = append(refs, models.KillmailRef{KillmailID: id, Hash: hash})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].KillmailID < refs[j].KillmailID })
	return refs, nil
}

// Days lists the UTC days from from to to inclusive, newest first.
func Days(from, to time.Time) []time.Time {
	from = truncateDay(from)
	to = truncateDay(to)
	var days []time.Time
	for d := to; !d.Before(from); d = d.AddDate(0, 0, -1) {
		days = append(days, d)
	}
	return days
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
