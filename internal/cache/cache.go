// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a concurrency-safe map whose entries expire after a fixed TTL.
// Expired entries are dropped on read and swept at most once per TTL on
// write, so no goroutine is needed.
type Cache[V any] struct {
	mu        sync.RWMutex
	entries   map[string]entry[V]
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time

	stats Stats
}

// Stats counts cache activity since creation.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Keys      int   `json:"keys"`
}

// New creates a cache whose entries live for ttl.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries:   make(map[string]entry[V]),
		ttl:       ttl,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	var zero V
	if !ok {
		c.count(func(s *Stats) { s.Misses++ })
		return zero, false
	}
	if now.After(e.expiresAt) {
		c.mu.Lock()
		// Another writer may have refreshed the key meanwhile.
		if cur, still := c.entries[key]; still && !now.Before(cur.expiresAt) {
			delete(c.entries, key)
			c.stats.Evictions++
		}
		c.stats.Misses++
		c.mu.Unlock()
		return zero, false
	}
	c.count(func(s *Stats) { s.Hits++ })
	return e.value, true
}

// Set stores value under key for the cache TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = entry[V]{value: value, expiresAt: now.Add(c.ttl)}
	if now.Sub(c.lastSweep) >= c.ttl {
		c.sweep(now)
	}
}

// sweep drops every expired entry. Caller holds c.mu.
func (c *Cache[V]) sweep(now time.Time) {
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
	c.lastSweep = now
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.stats.Evictions++
	}
	c.mu.Unlock()
}

// Clear removes every entry. Called after a sync so readers see new values.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.stats.Evictions += int64(len(c.entries))
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

// GetStats returns a snapshot of the counters.
func (c *Cache[V]) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Keys = len(c.entries)
	return s
}

// HitRate returns hits as a percentage of lookups.
func (c *Cache[V]) HitRate() float64 {
	s := c.GetStats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

func (c *Cache[V]) count(f func(*Stats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}

// GenerateKey builds a compact key from a method name and its parameters.
func GenerateKey(method string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", method, params)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", method, hash[:16])
}
