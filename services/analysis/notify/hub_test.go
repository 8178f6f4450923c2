// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package notify

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/clarityvalue/clarity/services/analysis/datatypes"
)

func testHub(opts ...Option) *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func update(id string, status datatypes.Status) *datatypes.AnalysisResult {
	return &datatypes.AnalysisResult{ID: id, Status: status}
}

// collect receives n results from ch or fails the test.
func collect(t *testing.T, ch <-chan *datatypes.AnalysisResult, n int) []*datatypes.AnalysisResult {
	t.Helper()
	out := make([]*datatypes.AnalysisResult, 0, n)
	for i := 0; i < n; i++ {
		select {
		case r := <-ch:
			out = append(out, r)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for update %d of %d", i+1, n)
		}
	}
	return out
}

func TestHub_DeliversInOrder(t *testing.T) {
	hub := testHub()
	received := make(chan *datatypes.AnalysisResult, 4)

	unsubscribe := hub.Subscribe("a1", func(r *datatypes.AnalysisResult) {
		received <- r
	})
	defer unsubscribe()

	hub.Notify("a1", update("a1", datatypes.StatusPending))
	hub.Notify("a1", update("a1", datatypes.StatusProcessing))
	hub.Notify("a1", update("a1", datatypes.StatusCompleted))

	got := collect(t, received, 3)
	want := []datatypes.Status{
		datatypes.StatusPending,
		datatypes.StatusProcessing,
		datatypes.StatusCompleted,
	}
	for i, status := range want {
		if got[i].Status != status {
			t.Errorf("update %d status = %s, want %s", i, got[i].Status, status)
		}
	}
}

func TestHub_IgnoresUnsubscribedIDs(t *testing.T) {
	hub := testHub()
	received := make(chan *datatypes.AnalysisResult, 1)

	unsubscribe := hub.Subscribe("a1", func(r *datatypes.AnalysisResult) {
		received <- r
	})
	defer unsubscribe()

	hub.Notify("other", update("other", datatypes.StatusCompleted))

	select {
	case r := <-received:
		t.Fatalf("received update for unrelated id: %s", r.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_ResubscribeReplacesPrevious(t *testing.T) {
	hub := testHub()
	first := make(chan *datatypes.AnalysisResult, 1)
	second := make(chan *datatypes.AnalysisResult, 1)

	hub.Subscribe("a1", func(r *datatypes.AnalysisResult) { first <- r })
	unsubscribe := hub.Subscribe("a1", func(r *datatypes.AnalysisResult) { second <- r })
	defer unsubscribe()

	if got := hub.Subscribers(); got != 1 {
		t.Fatalf("subscribers after resubscribe = %d, want 1", got)
	}

	hub.Notify("a1", update("a1", datatypes.StatusCompleted))

	collect(t, second, 1)
	select {
	case <-first:
		t.Fatal("replaced subscriber still received an update")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_StaleUnsubscribeLeavesReplacementIntact(t *testing.T) {
	hub := testHub()
	received := make(chan *datatypes.AnalysisResult, 1)

	staleUnsubscribe := hub.Subscribe("a1", func(*datatypes.AnalysisResult) {})
	unsubscribe := hub.Subscribe("a1", func(r *datatypes.AnalysisResult) { received <- r })
	defer unsubscribe()

	// The replaced subscription's own unsubscribe must neither panic nor
	// tear down the replacement.
	staleUnsubscribe()
	if got := hub.Subscribers(); got != 1 {
		t.Fatalf("subscribers after stale unsubscribe = %d, want 1", got)
	}

	hub.Notify("a1", update("a1", datatypes.StatusCompleted))
	collect(t, received, 1)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := testHub()
	received := make(chan *datatypes.AnalysisResult, 1)

	unsubscribe := hub.Subscribe("a1", func(r *datatypes.AnalysisResult) {
		received <- r
	})
	unsubscribe()
	unsubscribe() // safe to call twice

	if got := hub.Subscribers(); got != 0 {
		t.Fatalf("subscribers after unsubscribe = %d, want 0", got)
	}

	hub.Notify("a1", update("a1", datatypes.StatusCompleted))
	select {
	case <-received:
		t.Fatal("received update after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_PanickingSubscriberIsContained(t *testing.T) {
	hub := testHub()
	received := make(chan *datatypes.AnalysisResult, 1)

	calls := 0
	unsubscribe := hub.Subscribe("a1", func(r *datatypes.AnalysisResult) {
		calls++
		if calls == 1 {
			panic("subscriber bug")
		}
		received <- r
	})
	defer unsubscribe()

	hub.Notify("a1", update("a1", datatypes.StatusProcessing))
	hub.Notify("a1", update("a1", datatypes.StatusCompleted))

	// The second update must still arrive after the first one panicked.
	got := collect(t, received, 1)
	if got[0].Status != datatypes.StatusCompleted {
		t.Errorf("status = %s, want completed", got[0].Status)
	}
}

func TestHub_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	hub := testHub(WithBuffer(1))
	release := make(chan struct{})
	received := make(chan *datatypes.AnalysisResult, 8)

	unsubscribe := hub.Subscribe("a1", func(r *datatypes.AnalysisResult) {
		<-release
		received <- r
	})
	defer unsubscribe()

	// First update occupies the callback, second fills the buffer; the
	// rest must be dropped without blocking this goroutine.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Notify("a1", update("a1", datatypes.StatusProcessing))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full subscriber queue")
	}
	close(release)
}
