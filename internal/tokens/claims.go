// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package tokens

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields read from an SSO access token.
type Claims struct {
	CharacterID int64
	ExpiresAt   time.Time
}

// ParseClaims reads the subject and expiry of an SSO access token. The
// signature is not checked; ESI verifies the token on use.
func ParseClaims(accessToken string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &rc); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	c := &Claims{}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time.UTC()
	}

	// The subject looks like "CHARACTER:EVE:90000001".
	if i := strings.LastIndexByte(rc.Subject, ':'); i >= 0 {
		id, err := strconv.ParseInt(rc.Subject[i+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse access token subject %q: %w", rc.Subject, err)
		}
		c.CharacterID = id
	}
	return c, nil
}
