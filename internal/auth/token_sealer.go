// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	sealerSalt = "meterline-token-cache"
	sealerInfo = "token-cache-v1"

	aesKeySize   = 32
	gcmNonceSize = 12
)

var (
	// ErrEmptySecret is returned when the cache secret is empty.
	ErrEmptySecret = errors.New("token cache secret cannot be empty")
	// ErrUnsealFailed means a sealed entry was truncated, tampered with,
	// or written under a different secret.
	ErrUnsealFailed = errors.New("unseal failed: invalid ciphertext or authentication tag")
)

// tokenSealer encrypts cached tokens at rest with AES-256-GCM under a key
// derived from the cache secret with HKDF-SHA256.
type tokenSealer struct {
	aead cipher.AEAD
}

func newTokenSealer(secret string) (*tokenSealer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(sealerSalt), []byte(sealerInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &tokenSealer{aead: gcm}, nil
}

// seal returns nonce || ciphertext || tag. The cache key is bound as
// additional data so an entry cannot be replayed under another key.
func (s *tokenSealer) seal(key string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(key)), nil
}

func (s *tokenSealer) open(key string, sealed []byte) ([]byte, error) {
	if len(sealed) < gcmNonceSize+s.aead.Overhead() {
		return nil, ErrUnsealFailed
	}
	plaintext, err := s.aead.Open(nil, sealed[:gcmNonceSize], sealed[gcmNonceSize:], []byte(key))
	if err != nil {
		return nil, ErrUnsealFailed
	}
	return plaintext, nil
}
