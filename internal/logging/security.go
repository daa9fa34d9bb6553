// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

package logging

import "strings"

// SanitizeToken masks a token, keeping the first and last 4 characters.
//
//	"eyJhbGciOiJSUzI1NiIs...kpXV" -> "eyJh...kpXV"
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// sensitiveKeys are form and header names whose values must not be logged verbatim.
var sensitiveKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"token":         true,
	"client_secret": true,
	"authorization": true,
	"bearer":        true,
}

// SanitizeValue masks value when key names a credential.
func SanitizeValue(key, value string) string {
	if sensitiveKeys[strings.ToLower(key)] {
		return SanitizeToken(value)
	}
	return value
}

// TruncateBody shortens an upstream response body for log output.
func TruncateBody(body string, maxLen int) string {
	if len(body) <= maxLen {
		return body
	}
	return body[:maxLen] + "..."
}
