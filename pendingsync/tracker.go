// Copyright 2026 The Exocore Authors
// This file is part of Exocore.
//
// Exocore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Exocore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Exocore. If not, see <http://www.gnu.org/licenses/>.

package pendingsync

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/exocore/exocore/corelib/clock"
)

// RequestTracker throttles requests to one peer: a minimum interval between
// requests regardless of outcome, growing toward a maximum interval on
// consecutive no-change replies, and resetting to the minimum as soon as
// something changed (spec §4.3: "a per-peer RequestTracker throttles
// requests with exponential backoff on no-change results").
type RequestTracker struct {
	clock       clock.Clock
	backoff     *backoff.ExponentialBackOff
	nextAllowed time.Time
	current     time.Duration
	minInterval time.Duration
}

// NewRequestTracker builds a tracker bounded by [minInterval, maxInterval].
func NewRequestTracker(c clock.Clock, minInterval, maxInterval time.Duration) *RequestTracker {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minInterval
	b.MaxInterval = maxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // never stop growing; stay at MaxInterval instead
	b.Reset()
	return &RequestTracker{
		clock:       c,
		backoff:     b,
		nextAllowed: c.Now(),
		current:     minInterval,
		minInterval: minInterval,
	}
}

// Allowed reports whether a new request to this peer may be sent now.
func (t *RequestTracker) Allowed() bool {
	return !t.clock.Now().Before(t.nextAllowed)
}

// RecordNoChange backs off further: the peer reported nothing new, so the
// next request waits longer, up to the configured maximum.
func (t *RequestTracker) RecordNoChange() {
	t.current = t.backoff.NextBackOff()
	if t.current <= 0 {
		t.current = t.minInterval
	}
	t.nextAllowed = t.clock.Now().Add(t.current)
}

// RecordChange resets the backoff: something changed, so the peer is worth
// polling again at the minimum interval.
func (t *RequestTracker) RecordChange() {
	t.backoff.Reset()
	t.current = t.minInterval
	t.nextAllowed = t.clock.Now().Add(t.minInterval)
}

// RecordFailure is a timed-out or transport-failed request: treated like a
// no-change reply for throttling purposes. No failure count is kept.
func (t *RequestTracker) RecordFailure() { t.RecordNoChange() }
