// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package auth

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/tomtom215/meterline/internal/logging"
	"github.com/tomtom215/meterline/internal/metrics"
)

// TokenCache stores tokens by config fingerprint.
type TokenCache interface {
	// Get returns the cached token for key. ok is false on a miss or when
	// the entry has expired.
	Get(ctx context.Context, key string) (tok Token, ok bool, err error)
	// Put stores tok under key until tok.ExpiresAt.
	Put(ctx context.Context, key string, tok Token) error
}

// Fingerprint identifies a config for caching: a BLAKE2b-256 digest over
// every field, hex encoded. The password changes the digest but cannot be
// recovered from it.
func Fingerprint(cfg AuthConfig) string {
	cfg = cfg.withDefaults()
	h, _ := blake2b.New256(nil)
	for _, field := range []string{
		cfg.User, cfg.Password, cfg.RootURL, cfg.TenantURL, cfg.TokenURL,
		cfg.AuthURL, cfg.LoginPath, cfg.ClientID, cfg.Scope,
	} {
		_, _ = h.Write([]byte(field))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryTokenCache is a process-local TokenCache.
type MemoryTokenCache struct {
	mu     sync.Mutex
	tokens map[string]Token
	now    func() time.Time
}

// NewMemoryTokenCache creates an empty in-memory cache.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{tokens: make(map[string]Token), now: time.Now}
}

// Get implements TokenCache.
func (c *MemoryTokenCache) Get(_ context.Context, key string) (Token, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok, ok := c.tokens[key]
	if !ok {
		return Token{}, false, nil
	}
	if !tok.ValidAt(c.now(), 0) {
		delete(c.tokens, key)
		return Token{}, false, nil
	}
	return tok, true, nil
}

// Put implements TokenCache.
func (c *MemoryTokenCache) Put(_ context.Context, key string, tok Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = tok
	return nil
}

// CachingAuthenticator reuses unexpired tokens and falls back to a full
// handshake. Tokens without a known expiry are never cached. Cache failures
// are logged and degrade to re-authenticating.
type CachingAuthenticator struct {
	inner Authenticator
	cache TokenCache
	skew  time.Duration
	now   func() time.Time
}

// NewCachingAuthenticator wraps inner. A token is reused only while it has
// more than skew left.
func NewCachingAuthenticator(inner Authenticator, cache TokenCache, skew time.Duration) *CachingAuthenticator {
	return &CachingAuthenticator{inner: inner, cache: cache, skew: skew, now: time.Now}
}

// Authenticate implements Authenticator.
func (c *CachingAuthenticator) Authenticate(ctx context.Context, cfg AuthConfig) (Token, error) {
	key := Fingerprint(cfg)
	log := logging.Ctx(ctx).With().Str("cache_key", logging.SanitizeToken(key)).Logger()

	tok, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("Token cache lookup failed")
	}
	if ok && tok.ValidAt(c.now(), c.skew) {
		metrics.RecordTokenCacheLookup(true)
		return tok, nil
	}
	metrics.RecordTokenCacheLookup(false)

	tok, err = c.inner.Authenticate(ctx, cfg)
	if err != nil {
		return Token{}, err
	}

	if tok.ExpiresAt.IsZero() {
		log.Debug().Msg("Token expiry unknown, not caching")
		return tok, nil
	}
	if err := c.cache.Put(ctx, key, tok); err != nil {
		log.Warn().Err(err).Msg("Token cache store failed")
	}
	return tok, nil
}
