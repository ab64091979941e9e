// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const badgerTokenKeyPrefix = "token:"

// BadgerTokenCache persists tokens across restarts. Entries are sealed
// with the cache secret and expire through badger TTLs.
type BadgerTokenCache struct {
	db     *badger.DB
	sealer *tokenSealer
	now    func() time.Time
}

// OpenBadgerTokenCache opens (or creates) a cache directory at path.
func OpenBadgerTokenCache(path, secret string) (*BadgerTokenCache, error) {
	sealer, err := newTokenSealer(secret)
	if err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.ValueLogFileSize = 16 << 20
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for token cache: %w", err)
	}
	return &BadgerTokenCache{db: db, sealer: sealer, now: time.Now}, nil
}

// Close closes the underlying database.
func (c *BadgerTokenCache) Close() error {
	return c.db.Close()
}

// Get implements TokenCache.
func (c *BadgerTokenCache) Get(_ context.Context, key string) (Token, bool, error) {
	var sealed []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerTokenKeyPrefix + key))
		if err != nil {
			return err
		}
		sealed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, fmt.Errorf("get token: %w", err)
	}

	plaintext, err := c.sealer.open(key, sealed)
	if err != nil {
		return Token{}, false, err
	}
	var tok Token
	if err := json.Unmarshal(plaintext, &tok); err != nil {
		return Token{}, false, fmt.Errorf("unmarshal token: %w", err)
	}
	if !tok.ValidAt(c.now(), 0) {
		return Token{}, false, nil
	}
	return tok, true, nil
}

// Put implements TokenCache. Tokens that are already expired are dropped.
func (c *BadgerTokenCache) Put(_ context.Context, key string, tok Token) error {
	ttl := tok.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	sealed, err := c.sealer.seal(key, data)
	if err != nil {
		return err
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(badgerTokenKeyPrefix+key), sealed).WithTTL(ttl))
	})
}
