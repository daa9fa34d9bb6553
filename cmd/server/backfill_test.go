// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package main

import (
	"testing"
	"time"
)

func TestParseBackfillRange(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name      string
		from, to  string
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{"range", "2026-01-01", "2026-01-31", day(2026, 1, 1), day(2026, 1, 31), false},
		{"single day", "2026-03-15", "", day(2026, 3, 15), day(2026, 3, 15), false},
		{"same day", "2026-03-15", "2026-03-15", day(2026, 3, 15), day(2026, 3, 15), false},
		{"reversed", "2026-02-01", "2026-01-01", time.Time{}, time.Time{}, true},
		{"history format rejected", "20260101", "", time.Time{}, time.Time{}, true},
		{"bad end", "2026-01-01", "2026-13-01", time.Time{}, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := parseBackfillRange(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseBackfillRange() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Errorf("range = %v..%v, want %v..%v", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}
