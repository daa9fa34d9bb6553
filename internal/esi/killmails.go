// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package esi

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/EVE-KILL/Thessia-sub001/internal/models"
	"github.com/EVE-KILL/Thessia-sub001/internal/validation"
)

// FetchKillmail retrieves one killmail. The result is either a validated
// RawKillmail or an ErrorDetail saying whether a retry can help.
func (c *Client) FetchKillmail(ctx context.Context, killmailID int64, hash string) models.FetchResult {
	path := fmt.Sprintf("/killmails/%d/%s/", killmailID, hash)
	resp, err := c.get(ctx, path, nil, "")
	if err != nil {
		return models.Err(errorDetail(path, err))
	}
	return DecodeKillmail(resp.body, killmailID, hash)
}

// DecodeKillmail parses and validates a killmail payload.
func DecodeKillmail(body []byte, killmailID int64, hash string) models.FetchResult {
	reject := func(msg string) models.FetchResult {
		return models.Err(&models.ErrorDetail{Source: "esi.killmail", Message: msg})
	}

	var km models.RawKillmail
	if err := json.Unmarshal(body, &km); err != nil {
		return reject("decode: " + err.Error())
	}
	if km.KillmailID != killmailID {
		return reject(fmt.Sprintf("payload killmail_id %d does not match requested %d", km.KillmailID, killmailID))
	}
	if verr := validation.ValidateStruct(&km); verr != nil {
		return reject(verr.Error())
	}

	finalBlows := 0
	for i := range km.Attackers {
		if km.Attackers[i].FinalBlow {
			finalBlows++
		}
	}
	if finalBlows != 1 {
		return reject(fmt.Sprintf("expected exactly one final blow, got %d", finalBlows))
	}

	km.Hash = hash
	return models.Ok(&km)
}

func errorDetail(path string, err error) *models.ErrorDetail {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &models.ErrorDetail{
			Source:    "esi" + path,
			Status:    apiErr.Status,
			Message:   apiErr.Message,
			Retryable: apiErr.Temporary(),
		}
	}
	// Transport failures, open breaker and cancellation are all worth retrying.
	return &models.ErrorDetail{Source: "esi" + path, Message: err.Error(), Retryable: true}
}

type killmailRefDTO struct {
	KillmailID   int64  `json:"killmail_id"`
	KillmailHash string `json:"killmail_hash"`
}

// CharacterKillmails returns every recent killmail reference for a character,
// paging until a short page.
func (c *Client) CharacterKillmails(ctx context.Context, characterID int64, token string) ([]models.KillmailRef, error) {
	return c.pagedRefs(ctx, fmt.Sprintf("/characters/%d/killmails/recent/", characterID), token)
}

// CorporationKillmails returns every recent killmail reference for a
// corporation. ESI answers 403 when the character lacks the Director role;
// check with IsMissingRole.
func (c *Client) CorporationKillmails(ctx context.Context, corporationID int64, token string) ([]models.KillmailRef, error) {
	return c.pagedRefs(ctx, fmt.Sprintf("/corporations/%d/killmails/recent/", corporationID), token)
}

// WarKillmails returns the killmail references for a war.
func (c *Client) WarKillmails(ctx context.Context, warID int64) ([]models.KillmailRef, error) {
	return c.pagedRefs(ctx, fmt.Sprintf("/wars/%d/killmails/", warID), "")
}

func (c *Client) pagedRefs(ctx context.Context, path, token string) ([]models.KillmailRef, error) {
	var refs []models.KillmailRef
	for page := 1; ; page++ {
		resp, err := c.get(ctx, path, map[string]string{"page": strconv.Itoa(page)}, token)
		if err != nil {
			// Past the last page ESI answers 404 on some endpoints.
			if page > 1 && IsNotFound(err) {
				return refs, nil
			}
			return refs, err
		}

		var dtos []killmailRefDTO
		if err := json.Unmarshal(resp.body, &dtos); err != nil {
			return refs, fmt.Errorf("esi %s page %d: decode: %w", path, page, err)
		}
		for _, d := range dtos {
			if d.KillmailID <= 0 || d.KillmailHash == "" {
				continue
			}
			refs = append(refs, models.KillmailRef{KillmailID: d.KillmailID, Hash: d.KillmailHash})
		}

		if len(dtos) < c.pageSize {
			return refs, nil
		}
		if err := ctx.Err(); err != nil {
			return refs, err
		}
	}
}
