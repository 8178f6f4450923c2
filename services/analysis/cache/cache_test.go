// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/clarityvalue/clarity/services/analysis/datatypes"
)

// fakeClock advances only when told to, so TTL behavior is testable
// without sleeping. Its tickers fire only when the test calls Tick.
type fakeClock struct {
	now  time.Time
	tick chan time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func (c *fakeClock) NewTicker(time.Duration) Ticker { return fakeTicker{c.tick} }

func (c *fakeClock) Tick() { c.tick <- c.now }

type fakeTicker struct {
	ch chan time.Time
}

func (f fakeTicker) Chan() <-chan time.Time { return f.ch }

func (f fakeTicker) Stop() {}

func newTestCache(t *testing.T, config Config) (*ResultCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{
		now:  time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
		tick: make(chan time.Time, 1),
	}
	return New(config, clock, nil), clock
}

func result(id string) *datatypes.AnalysisResult {
	return &datatypes.AnalysisResult{
		ID:     id,
		Status: datatypes.StatusCompleted,
		Payload: map[string]any{
			"score": 80.0,
		},
	}
}

func TestResultCache_GetMiss(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())

	if _, ok := c.Get("absent"); ok {
		t.Fatal("Get() returned a result for an absent key")
	}
}

func TestResultCache_SetGet(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())

	c.Set("k1", result("a1"))
	got, ok := c.Get("k1")
	if !ok {
		t.Fatal("Get() missed after Set()")
	}
	if got.ID != "a1" {
		t.Errorf("ID = %s, want a1", got.ID)
	}
	if !got.Metadata.CacheHit {
		t.Error("returned copy not marked as cache hit")
	}
}

func TestResultCache_HitDoesNotMutateStoredEntry(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())

	c.Set("k1", result("a1"))
	first, _ := c.Get("k1")
	first.Status = datatypes.StatusFailed
	first.Payload["score"] = -1.0

	second, _ := c.Get("k1")
	if second.Status != datatypes.StatusCompleted {
		t.Errorf("stored status mutated to %s", second.Status)
	}
	if second.Payload["score"] != 80.0 {
		t.Errorf("stored payload mutated to %v", second.Payload["score"])
	}
}

func TestResultCache_TTLExpiry(t *testing.T) {
	c, clock := newTestCache(t, DefaultConfig())

	c.Set("k1", result("a1"))

	clock.Advance(24 * time.Hour)
	clock.Advance(time.Second)
	if _, ok := c.Get("k1"); ok {
		t.Fatal("Get() returned an expired entry")
	}
	if c.Size() != 0 {
		t.Errorf("expired entry not lazily deleted, size = %d", c.Size())
	}
}

func TestResultCache_EvictionBound(t *testing.T) {
	c, clock := newTestCache(t, Config{
		TTL:           24 * time.Hour,
		MaxEntries:    100,
		EvictFraction: 0.2,
	})

	// Distinct lastAccessed per entry so the eviction order is exact.
	for i := 0; i < 101; i++ {
		c.Set(fmt.Sprintf("k%03d", i), result(fmt.Sprintf("a%03d", i)))
		clock.Advance(time.Second)
	}

	// Overflow evicts the oldest-accessed 20% of the capacity.
	if got := c.Size(); got != 81 {
		t.Fatalf("size after overflow = %d, want 81", got)
	}
	for i := 0; i < 20; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%03d", i)); ok {
			t.Errorf("oldest entry k%03d survived eviction", i)
		}
	}
	for i := 20; i < 101; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%03d", i)); !ok {
			t.Errorf("newer entry k%03d was evicted", i)
		}
	}
}

func TestResultCache_EvictionPrefersLeastRecentlyAccessed(t *testing.T) {
	c, clock := newTestCache(t, Config{
		TTL:           24 * time.Hour,
		MaxEntries:    10,
		EvictFraction: 0.2,
	})

	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), result(fmt.Sprintf("a%d", i)))
		clock.Advance(time.Second)
	}

	// Touch the two oldest so they become the most recently accessed.
	c.Get("k0")
	c.Get("k1")
	clock.Advance(time.Second)

	c.Set("k10", result("a10"))

	if _, ok := c.Get("k0"); !ok {
		t.Error("recently accessed k0 was evicted")
	}
	if _, ok := c.Get("k2"); ok {
		t.Error("least recently accessed k2 survived eviction")
	}
}

func TestResultCache_Clear(t *testing.T) {
	tests := []struct {
		name        string
		pattern     string
		wantRemoved int
		wantSize    int
	}{
		{"all", "", 4, 0},
		{"by pattern", "professional", 2, 2},
		{"no match", "starter", 0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCache(t, DefaultConfig())
			c.Set("professional:valuation:a", result("1"))
			c.Set("professional:valuation:b", result("2"))
			c.Set("enterprise:valuation:a", result("3"))
			c.Set("enterprise:valuation:b", result("4"))

			if got := c.Clear(tt.pattern); got != tt.wantRemoved {
				t.Errorf("Clear(%q) = %d, want %d", tt.pattern, got, tt.wantRemoved)
			}
			if got := c.Size(); got != tt.wantSize {
				t.Errorf("size after clear = %d, want %d", got, tt.wantSize)
			}
		})
	}
}

func TestResultCache_PurgeExpired(t *testing.T) {
	c, clock := newTestCache(t, Config{TTL: time.Hour, MaxEntries: 100})

	c.Set("old", result("a1"))
	clock.Advance(30 * time.Minute)
	c.Set("fresh", result("a2"))
	clock.Advance(31 * time.Minute)

	if got := c.PurgeExpired(); got != 1 {
		t.Errorf("PurgeExpired() = %d, want 1", got)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("fresh entry purged")
	}
}

func TestResultCache_SweeperPurgesOnTick(t *testing.T) {
	c, clock := newTestCache(t, Config{TTL: time.Hour, MaxEntries: 100})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Set("stale", result("a1"))
	clock.Advance(time.Hour + time.Second)
	c.StartSweeper(ctx)
	clock.Tick()

	deadline := time.Now().Add(2 * time.Second)
	for c.Size() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweep left %d entries, want 0", c.Size())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestResultCache_Stats(t *testing.T) {
	c, clock := newTestCache(t, DefaultConfig())

	c.Set("k1", result("a1"))
	c.Set("k2", result("a2"))
	clock.Advance(10 * time.Minute)

	c.Get("k1")
	c.Get("k1")
	c.Get("missing")

	stats := c.Stats()
	if stats.Size != 2 {
		t.Errorf("Size = %d, want 2", stats.Size)
	}
	if stats.TotalAccessCount != 2 {
		t.Errorf("TotalAccessCount = %d, want 2", stats.TotalAccessCount)
	}
	want := 2.0 / 3.0
	if diff := stats.HitRate - want; diff > 0.001 || diff < -0.001 {
		t.Errorf("HitRate = %f, want %f", stats.HitRate, want)
	}
	if stats.AverageAgeMinutes < 9.99 || stats.AverageAgeMinutes > 10.01 {
		t.Errorf("AverageAgeMinutes = %f, want ~10", stats.AverageAgeMinutes)
	}
}
