// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package eventprocessor

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	// ErrInvalidDelivery is returned for payloads that decode but are unusable.
	ErrInvalidDelivery = errors.New("invalid delivery")

	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("publisher is closed")
)

// SerializeDelivery encodes a delivery for the wire.
func SerializeDelivery(d *Delivery) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal delivery: %w", err)
	}
	return data, nil
}

// DeserializeDelivery decodes and validates a wire payload.
func DeserializeDelivery(data []byte) (*Delivery, error) {
	var d Delivery
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal delivery: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
