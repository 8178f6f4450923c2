// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides the bounded result cache for the analysis core:
// per-entry TTL, access bookkeeping, and a deterministic oldest-access
// eviction sweep when the store exceeds capacity.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clarityvalue/clarity/services/analysis/datatypes"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clarity_analysis_cache_hits_total",
		Help: "Total analysis cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clarity_analysis_cache_misses_total",
		Help: "Total analysis cache misses (absent or expired)",
	})

	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clarity_analysis_cache_evictions_total",
		Help: "Total analysis cache evictions by reason",
	}, []string{"reason"})
)

// Config tunes the result cache.
type Config struct {
	// TTL is how long entries remain valid. Default: 24h.
	TTL time.Duration

	// MaxEntries is the hard entry cap before eviction. Default: 100.
	MaxEntries int

	// EvictFraction is the share of entries removed on overflow,
	// oldest-lastAccessed first. Default: 0.2.
	EvictFraction float64

	// SweepInterval is how often the background sweep purges expired
	// entries. Default: 1h.
	SweepInterval time.Duration
}

// DefaultConfig returns the policy defaults for the result cache.
func DefaultConfig() Config {
	return Config{
		TTL:           24 * time.Hour,
		MaxEntries:    100,
		EvictFraction: 0.2,
		SweepInterval: time.Hour,
	}
}

type entry struct {
	key          string
	result       *datatypes.AnalysisResult
	createdAt    time.Time
	expiresAt    time.Time
	accessCount  int64
	lastAccessed time.Time
}

// Stats is a point-in-time snapshot of cache health.
type Stats struct {
	Size              int     `json:"size"`
	HitRate           float64 `json:"hit_rate"`
	TotalAccessCount  int64   `json:"total_access_count"`
	AverageAgeMinutes float64 `json:"average_age_minutes"`
}

// ResultCache is a bounded key -> AnalysisResult store with per-entry TTL.
//
// Cached results are expensive-to-recompute analyses, not hot-path
// objects, so eviction is a deterministic oldest-access sweep rather than
// strict LRU. Expired entries are purged lazily on read and periodically
// by the sweeper; they are never returned.
//
// Thread Safety: ResultCache is safe for concurrent use.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]*entry

	config Config
	clock  Clock
	logger *slog.Logger

	hits   int64
	misses int64
}

// New creates a result cache. A nil clock defaults to the system clock.
func New(config Config, clock Clock, logger *slog.Logger) *ResultCache {
	if clock == nil {
		clock = SystemClock()
	}
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultConfig().MaxEntries
	}
	if config.EvictFraction <= 0 || config.EvictFraction > 1 {
		config.EvictFraction = DefaultConfig().EvictFraction
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultConfig().SweepInterval
	}
	return &ResultCache{
		entries: make(map[string]*entry),
		config:  config,
		clock:   clock,
		logger:  logger,
	}
}

// Get returns a copy of the cached result for key, or (nil, false) if the
// key is absent or expired. Expired entries are deleted as a side effect.
// Access bookkeeping is updated on the stored entry; the returned copy is
// marked as a cache hit without touching the snapshot.
func (c *ResultCache) Get(key string) (*datatypes.AnalysisResult, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		cacheMisses.Inc()
		return nil, false
	}
	if !now.Before(e.expiresAt) {
		delete(c.entries, key)
		cacheEvictions.WithLabelValues("expired").Inc()
		c.misses++
		cacheMisses.Inc()
		return nil, false
	}

	e.accessCount++
	e.lastAccessed = now
	c.hits++
	cacheHits.Inc()

	out := e.result.Clone()
	out.Metadata.CacheHit = true
	return out, true
}

// Set stores a snapshot of result under key with the configured TTL,
// resetting access bookkeeping. Inserting over capacity triggers an
// eviction sweep of the oldest-accessed entries.
func (c *ResultCache) Set(key string, result *datatypes.AnalysisResult) {
	if result == nil {
		return
	}
	now := c.clock.Now()
	snapshot := result.Clone()
	snapshot.Metadata.CacheHit = false

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		key:          key,
		result:       snapshot,
		createdAt:    now,
		expiresAt:    now.Add(c.config.TTL),
		accessCount:  0,
		lastAccessed: now,
	}

	if len(c.entries) > c.config.MaxEntries {
		c.evictOldestLocked()
	}
}

// evictOldestLocked removes the oldest-lastAccessed EvictFraction of
// entries. Must be called with the mutex held.
func (c *ResultCache) evictOldestLocked() {
	n := int(float64(c.config.MaxEntries) * c.config.EvictFraction)
	if n < 1 {
		n = 1
	}

	all := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].lastAccessed.Before(all[j].lastAccessed)
	})

	if n > len(all) {
		n = len(all)
	}
	for _, e := range all[:n] {
		delete(c.entries, e.key)
		cacheEvictions.WithLabelValues("capacity").Inc()
	}

	if c.logger != nil {
		c.logger.Debug("cache capacity eviction",
			"evicted", n, "remaining", len(c.entries))
	}
}

// Clear removes entries. An empty pattern removes everything; otherwise
// entries whose key contains pattern are removed.
//
// Outputs:
//   - int: Number of entries removed.
func (c *ResultCache) Clear(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" {
		n := len(c.entries)
		c.entries = make(map[string]*entry)
		return n
	}

	n := 0
	for key := range c.entries {
		if strings.Contains(key, pattern) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// PurgeExpired removes every expired entry and returns the count removed.
func (c *ResultCache) PurgeExpired() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			cacheEvictions.WithLabelValues("expired").Inc()
			n++
		}
	}
	return n
}

// Stats returns a snapshot of cache health.
func (c *ResultCache) Stats() Stats {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var totalAccess int64
	var totalAge time.Duration
	for _, e := range c.entries {
		totalAccess += e.accessCount
		totalAge += now.Sub(e.createdAt)
	}

	s := Stats{
		Size:             len(c.entries),
		TotalAccessCount: totalAccess,
	}
	if lookups := c.hits + c.misses; lookups > 0 {
		s.HitRate = float64(c.hits) / float64(lookups)
	}
	if len(c.entries) > 0 {
		s.AverageAgeMinutes = totalAge.Minutes() / float64(len(c.entries))
	}
	return s
}

// Size returns the current entry count.
func (c *ResultCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweeper purges expired entries every SweepInterval until ctx is
// cancelled. The sweep runs independently of in-flight requests and only
// contends for the mutex during the purge itself.
func (c *ResultCache) StartSweeper(ctx context.Context) {
	go func() {
		ticker := c.clock.NewTicker(c.config.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if n := c.PurgeExpired(); n > 0 && c.logger != nil {
					c.logger.Debug("cache sweep purged expired entries", "purged", n)
				}
			}
		}
	}()
}
