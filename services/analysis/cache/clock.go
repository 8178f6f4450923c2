// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import "time"

// Clock supplies current time and tickers to the cache so TTL behavior
// and the sweep cadence can be tested without sleeping.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the sweeper needs.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) Chan() <-chan time.Time { return s.t.C }

func (s systemTicker) Stop() { s.t.Stop() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }
