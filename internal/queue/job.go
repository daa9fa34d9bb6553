// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package queue

import (
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/EVE-KILL/Thessia-sub001/internal/models"
)

// Options control how a job is scheduled and retried.
type Options struct {
	Priority    int
	MaxAttempts int
	// Backoff is the fixed delay between attempts.
	Backoff time.Duration
	// DedupeKey, when set, makes Enqueue a no-op while a job with the same
	// key is still in the queue.
	DedupeKey string
}

// DefaultOptions returns the settings used for regular killmail fetches.
func DefaultOptions() Options {
	return Options{
		Priority:    models.PriorityDefault,
		MaxAttempts: models.DefaultAttempts,
		Backoff:     models.DefaultBackoff,
	}
}

// normalized fills unset retry settings from the store defaults.
func (o Options) normalized(maxAttempts int, backoff time.Duration) Options {
	if o.Priority < 0 {
		o.Priority = 0
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = maxAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = backoff
	}
	return o
}

// Request is one job to enqueue.
type Request struct {
	Kind    string
	Payload interface{}
	Options Options
}

// Job is a stored job record.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Backoff     time.Duration   `json:"backoff"`
	DedupeKey   string          `json:"dedupe_key,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	LastError   string          `json:"last_error,omitempty"`
	LeaseHolder string          `json:"lease_holder,omitempty"`
	LeaseExpiry time.Time       `json:"lease_expiry,omitempty"`
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so Fail drops the job instead of retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Outcome is the result of Fail.
type Outcome int

const (
	// Retrying means the job was rescheduled after its backoff.
	Retrying Outcome = iota
	// Dropped means the job was removed after its final attempt or a permanent error.
	Dropped
)
