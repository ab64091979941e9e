// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package logging

import (
	"fmt"
	"strings"
)

// SanitizeToken masks a token, keeping the first and last 4 characters.
// Example: "eyJhbGciOiJSUzI1NiJ9.e30.sig" -> "eyJh....sig"
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeUsername keeps the first 2 characters of a username.
func SanitizeUsername(username string) string {
	if username == "" {
		return ""
	}
	if len(username) <= 2 {
		return "***"
	}
	return username[:2] + "***"
}

// sensitiveKeys are field names whose values are always masked.
var sensitiveKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"id_token":      true,
	"token":         true,
	"password":      true,
	"secret":        true,
	"code":          true,
	"code_verifier": true,
	"authorization": true,
	"cookie":        true,
}

// SanitizeValue masks value when key names a credential and escapes
// control characters otherwise.
func SanitizeValue(key, value string) string {
	if sensitiveKeys[strings.ToLower(key)] {
		return SanitizeToken(value)
	}
	return EscapeControl(value)
}

// EscapeControl escapes control characters so untrusted input cannot
// forge log lines.
func EscapeControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
