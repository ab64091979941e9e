// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package auth

import (
	"io"

	"github.com/tomtom215/meterline/internal/config"
)

// TokenCacheType selects the token cache backend.
type TokenCacheType string

const (
	// TokenCacheNone re-authenticates on every sync.
	TokenCacheNone TokenCacheType = "none"
	// TokenCacheMemory reuses tokens within one process.
	TokenCacheMemory TokenCacheType = "memory"
	// TokenCacheBadger persists sealed tokens across restarts.
	TokenCacheBadger TokenCacheType = "badger"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewAuthenticator builds the authenticator described by cfg. The returned
// closer releases the cache backend and must be closed on shutdown.
func NewAuthenticator(cfg *config.AuthConfig) (Authenticator, io.Closer, error) {
	handshake := NewPKCEAuthenticator(cfg.Timeout)

	switch TokenCacheType(cfg.TokenCache) {
	case TokenCacheMemory:
		return NewCachingAuthenticator(handshake, NewMemoryTokenCache(), cfg.ExpirySkew), nopCloser{}, nil
	case TokenCacheBadger:
		cache, err := OpenBadgerTokenCache(cfg.TokenCachePath, cfg.TokenCacheSecret)
		if err != nil {
			return nil, nil, err
		}
		return NewCachingAuthenticator(handshake, cache, cfg.ExpirySkew), cache, nil
	default:
		return handshake, nopCloser{}, nil
	}
}
