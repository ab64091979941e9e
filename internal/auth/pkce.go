// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/zitadel/oidc/v3/pkg/oidc"
)

// pkceVerifierBytes is the entropy of a verifier before encoding.
const pkceVerifierBytes = 40

// PKCE is a code verifier and its S256 challenge (RFC 7636).
type PKCE struct {
	Verifier  string
	Challenge string
	Method    oidc.CodeChallengeMethod
}

// NewPKCE generates a fresh verifier and challenge.
//
// The verifier is 40 random bytes, URL-safe base64 encoded, with every
// non-alphanumeric character removed. The challenge is the unpadded
// URL-safe base64 SHA-256 of the verifier.
func NewPKCE() (PKCE, error) {
	return newPKCE(rand.Reader)
}

func newPKCE(r io.Reader) (PKCE, error) {
	buf := make([]byte, pkceVerifierBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return PKCE{}, fmt.Errorf("generate random bytes: %w", err)
	}

	verifier := alphanumeric(base64.URLEncoding.EncodeToString(buf))
	return PKCE{
		Verifier:  verifier,
		Challenge: oidc.NewSHACodeChallenge(verifier),
		Method:    oidc.CodeChallengeMethodS256,
	}, nil
}

func alphanumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
