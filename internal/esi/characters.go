// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package esi

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

type characterDTO struct {
	Name          string `json:"name"`
	CorporationID int64  `json:"corporation_id"`
	AllianceID    int64  `json:"alliance_id"`
}

// Character returns a character's public profile.
func (c *Client) Character(ctx context.Context, characterID int64) (*models.Character, error) {
	path := fmt.Sprintf("/characters/%d/", characterID)
	resp, err := c.get(ctx, path, nil, "")
	if err != nil {
		return nil, err
	}

	var dto characterDTO
	if err := json.Unmarshal(resp.body, &dto); err != nil {
		return nil, fmt.Errorf("esi %s: decode: %w", path, err)
	}
	return &models.Character{
		ID:            characterID,
		Name:          dto.Name,
		CorporationID: dto.CorporationID,
		AllianceID:    dto.AllianceID,
	}, nil
}
