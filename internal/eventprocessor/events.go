// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package eventprocessor

import (
	"fmt"
	"strconv"

	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// Metadata keys set on every bus message.
const (
	MetadataKillmailID = "killmail_id"
	MetadataDedupeKey  = "dedupe_key"
)

// Delivery is one enriched killmail with its routing topics.
type Delivery struct {
	Killmail *models.EnrichedKillmail `json:"record"`
	Topics   []string                 `json:"topics"`
}

// Validate checks that a decoded delivery is usable.
func (d *Delivery) Validate() error {
	if d.Killmail == nil {
		return fmt.Errorf("%w: missing record", ErrInvalidDelivery)
	}
	if d.Killmail.KillmailID <= 0 {
		return fmt.Errorf("%w: killmail_id must be positive", ErrInvalidDelivery)
	}
	if len(d.Topics) == 0 {
		return fmt.Errorf("%w: no topics", ErrInvalidDelivery)
	}
	return nil
}

// DedupeKey identifies the killmail version for deduplication.
func (d *Delivery) DedupeKey() string {
	return strconv.FormatInt(d.Killmail.KillmailID, 10) + ":" + d.Killmail.KillmailHash
}
