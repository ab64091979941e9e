// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(ttl time.Duration) (*Cache[string], *clock) {
	clk := &clock{t: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)}
	c := New[string](ttl)
	c.now = clk.now
	c.lastSweep = clk.t
	return c, clk
}

func TestCache_GetSet(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.Set("graph", "A")
	v, ok := c.Get("graph")
	require.True(t, ok)
	assert.Equal(t, "A", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, Stats{Hits: 1, Misses: 1, Keys: 1}, c.GetStats())
	assert.InDelta(t, 50.0, c.HitRate(), 0.001)
}

func TestCache_Expiry(t *testing.T) {
	c, clk := newTestCache(time.Minute)

	c.Set("k", "v")
	clk.advance(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clk.advance(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.GetStats().Evictions)
	assert.Zero(t, c.GetStats().Keys)
}

func TestCache_SweepOnWrite(t *testing.T) {
	c, clk := newTestCache(time.Minute)

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("old-%d", i), "v")
	}
	clk.advance(2 * time.Minute)
	c.Set("fresh", "v")

	stats := c.GetStats()
	assert.Equal(t, 1, stats.Keys)
	assert.Equal(t, int64(3), stats.Evictions)
}

func TestCache_DeleteAndClear(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	c.Delete("a")
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	_, ok = c.Get("b")
	assert.False(t, ok)
	stats := c.GetStats()
	assert.Zero(t, stats.Keys)
	assert.Equal(t, int64(3), stats.Evictions)
}

func TestCache_Concurrent(t *testing.T) {
	c := New[int](time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Set(key, i)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, c.GetStats().Keys)
	assert.Equal(t, int64(800), c.GetStats().Hits)
}

func TestGenerateKey(t *testing.T) {
	type params struct {
		Ref    string
		Period string
	}
	a := GenerateKey("data", params{"A", "1h"})
	b := GenerateKey("data", params{"A", "1h"})
	other := GenerateKey("data", params{"A", "15m"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)
	assert.Regexp(t, `^data:[0-9a-f]{32}$`, a)
	assert.True(t, strings.HasPrefix(GenerateKey("bad", func() {}), "bad:"), "unmarshalable params fall back to fmt")
}
