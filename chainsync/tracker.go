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

package chainsync

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/exocore/exocore/corelib/clock"
)

// RequestTracker throttles metadata requests to one peer, the chain-sync
// twin of pendingsync.RequestTracker: exponential backoff on no-change
// replies, reset to the minimum on change, plus a consecutive-failure
// counter. Leader selection does not consult that counter.
type RequestTracker struct {
	clock       clock.Clock
	backoff     *backoff.ExponentialBackOff
	nextAllowed time.Time
	minInterval time.Duration

	consecutiveFailures int
}

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
		minInterval: minInterval,
	}
}

func (t *RequestTracker) Allowed() bool {
	return !t.clock.Now().Before(t.nextAllowed)
}

func (t *RequestTracker) RecordNoChange() {
	d := t.backoff.NextBackOff()
	if d <= 0 {
		d = t.minInterval
	}
	t.nextAllowed = t.clock.Now().Add(d)
}

func (t *RequestTracker) RecordChange() {
	t.backoff.Reset()
	t.nextAllowed = t.clock.Now().Add(t.minInterval)
	t.consecutiveFailures = 0
}

// RecordFailure backs off like RecordNoChange and additionally grows the
// consecutive-failure count, reporting whether it reached
// maxConsecutiveFailures.
func (t *RequestTracker) RecordFailure(maxConsecutiveFailures int) (exceeded bool) {
	t.RecordNoChange()
	t.consecutiveFailures++
	return t.consecutiveFailures >= maxConsecutiveFailures
}

func (t *RequestTracker) ConsecutiveFailures() int { return t.consecutiveFailures }
