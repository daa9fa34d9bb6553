// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package config

import (
	"fmt"
	"time"

	"github.com/EVE-KILL/Thessia-sub001/internal/validation"
)

const (
	minQueueBackoff = 5 * time.Second
	maxQueueBackoff = 10 * time.Second

	leaseTimeoutFactor = 2
)

// Validate checks field constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateSSO(); err != nil {
		return err
	}
	return c.validateNATS()
}

func (c *Config) validateQueue() error {
	if c.Queue.Path == "" && !c.Queue.InMemory {
		return fmt.Errorf("QUEUE_PATH is required unless QUEUE_IN_MEMORY=true")
	}
	if c.Queue.Backoff < minQueueBackoff || c.Queue.Backoff > maxQueueBackoff {
		return fmt.Errorf("QUEUE_BACKOFF must be between %s and %s, got %s", minQueueBackoff, maxQueueBackoff, c.Queue.Backoff)
	}
	if c.Queue.LeaseDuration <= 0 {
		return fmt.Errorf("QUEUE_LEASE_DURATION must be positive")
	}
	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("WORKER_JOB_TIMEOUT must be positive")
	}
	// A lease that lapses while the handler may still run lets a second
	// worker claim the same job.
	if c.Queue.LeaseDuration < leaseTimeoutFactor*c.Worker.JobTimeout {
		return fmt.Errorf("QUEUE_LEASE_DURATION (%s) must be at least %d times WORKER_JOB_TIMEOUT (%s)",
			c.Queue.LeaseDuration, leaseTimeoutFactor, c.Worker.JobTimeout)
	}
	return nil
}

// validateSSO requires client credentials only when per-user polling needs them.
func (c *Config) validateSSO() error {
	if !c.Sources.UserPollEnabled {
		return nil
	}
	if c.SSO.ClientID == "" || c.SSO.ClientSecret == "" {
		return fmt.Errorf("EVE_CLIENT_ID and EVE_CLIENT_SECRET are required when USER_POLL_ENABLED=true")
	}
	if c.Security.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required when USER_POLL_ENABLED=true")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if c.NATS.EmbeddedServer {
		if c.NATS.Port <= 0 || c.NATS.Port > 65535 {
			return fmt.Errorf("NATS_PORT must be between 1 and 65535, got %d", c.NATS.Port)
		}
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_EMBEDDED_SERVER=false")
	}
	return nil
}
