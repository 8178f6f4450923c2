// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notify fans result updates out to real-time listeners, at most
// one per in-flight analysis id.
package notify

import (
	"log/slog"
	"sync"

	"github.com/clarityvalue/clarity/services/analysis/datatypes"
)

// Callback receives result updates for one analysis id.
type Callback func(*datatypes.AnalysisResult)

// defaultBuffer is the per-subscription update queue depth. Two updates
// per analysis is the normal case; the headroom absorbs slow consumers.
const defaultBuffer = 16

type subscription struct {
	ch   chan *datatypes.AnalysisResult
	done chan struct{}
	stop sync.Once
}

// close is idempotent: a replaced subscription is closed by Subscribe,
// and the subscriber's own unsubscribe may still run afterwards.
func (s *subscription) close() {
	s.stop.Do(func() { close(s.done) })
}

// Hub delivers result updates to registered subscribers.
//
// Each subscription owns a buffered channel drained by a dedicated
// goroutine, so updates for one analysis id arrive in publication order
// and a slow or panicking callback can never fault the orchestration
// path. Re-subscribing under the same id replaces the previous callback.
//
// Thread Safety: Hub is safe for concurrent use.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*subscription
	logger *slog.Logger
	buffer int
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscription queue depth.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub creates a hub. A nil logger defaults to slog.Default.
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		subs:   make(map[string]*subscription),
		logger: logger,
		buffer: defaultBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers cb for updates on an analysis id, replacing any
// previous subscriber for that id.
//
// Outputs:
//   - func(): Unsubscribes. Safe to call more than once.
func (h *Hub) Subscribe(analysisID string, cb Callback) func() {
	sub := &subscription{
		ch:   make(chan *datatypes.AnalysisResult, h.buffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if prev, ok := h.subs[analysisID]; ok {
		prev.close()
	}
	h.subs[analysisID] = sub
	h.mu.Unlock()

	go h.drain(analysisID, sub, cb)

	return func() {
		h.mu.Lock()
		if current, ok := h.subs[analysisID]; ok && current == sub {
			delete(h.subs, analysisID)
		}
		h.mu.Unlock()
		sub.close()
	}
}

// Notify queues a result update for the analysis id's subscriber, if one
// is registered. Never blocks the caller: if the subscriber's queue is
// full the update is dropped and logged.
func (h *Hub) Notify(analysisID string, result *datatypes.AnalysisResult) {
	h.mu.Lock()
	sub, ok := h.subs[analysisID]
	h.mu.Unlock()
	if !ok {
		return
	}

	select {
	case sub.ch <- result:
	default:
		h.logger.Warn("dropping result update, subscriber queue full",
			"analysis_id", analysisID, "status", result.Status)
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// drain delivers queued updates until the subscription is closed, then
// flushes anything still queued so a terminal update published just
// before unsubscribing is never lost.
func (h *Hub) drain(analysisID string, sub *subscription, cb Callback) {
	for {
		select {
		case <-sub.done:
			for {
				select {
				case result := <-sub.ch:
					h.invoke(analysisID, cb, result)
				default:
					return
				}
			}
		case result := <-sub.ch:
			h.invoke(analysisID, cb, result)
		}
	}
}

// invoke calls the callback, recovering a panic so a misbehaving
// subscriber cannot take down the hub.
func (h *Hub) invoke(analysisID string, cb Callback, result *datatypes.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("subscriber callback panicked",
				"analysis_id", analysisID, "panic", r)
		}
	}()
	cb(result)
}
