// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package models

import "fmt"

// ErrorDetail describes why an external payload was rejected.
type ErrorDetail struct {
	// Source names the endpoint or feed that produced the payload.
	Source string `json:"source"`
	// Status is the HTTP status, or 0 for decode and validation failures.
	Status  int    `json:"status,omitempty"`
	Message string `json:"error"`
	// Retryable is false when fetching again cannot produce a different answer.
	Retryable bool `json:"retryable"`
}

// Error implements error.
func (e *ErrorDetail) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Source, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// FetchResult is either a validated RawKillmail or an ErrorDetail, never both.
type FetchResult struct {
	killmail *RawKillmail
	err      *ErrorDetail
}

// Ok wraps a validated killmail.
func Ok(km *RawKillmail) FetchResult {
	return FetchResult{killmail: km}
}

// Err wraps a rejection.
func Err(detail *ErrorDetail) FetchResult {
	return FetchResult{err: detail}
}

// IsOk reports whether the result holds a killmail.
func (r FetchResult) IsOk() bool {
	return r.killmail != nil
}

// Killmail returns the killmail and true, or nil and false.
func (r FetchResult) Killmail() (*RawKillmail, bool) {
	return r.killmail, r.killmail != nil
}

// Detail returns the rejection, or nil for an Ok result.
func (r FetchResult) Detail() *ErrorDetail {
	if r.killmail != nil {
		return nil
	}
	if r.err == nil {
		return &ErrorDetail{Source: "unknown", Message: "empty result"}
	}
	return r.err
}
