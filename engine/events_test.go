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

package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exocore/exocore/event"
)

// TestBroadcast_OverflowMarksDiscontinuityThenFlushesAndResumes exercises
// scenario S6 (spec.md §8): a subscriber with buffer size 2 that receives
// 10 events in one batch gets the first 2, then a StreamDiscontinuity on
// the next successful send, then resumes normal delivery.
func TestBroadcast_OverflowMarksDiscontinuityThenFlushesAndResumes(t *testing.T) {
	b := newEventBroadcaster(nil)
	sub := b.subscribe(2)

	events := make([]event.Event, 10)
	for i := range events {
		events[i] = event.NewChainBlockEvent(uint64(i))
	}
	b.broadcast(events)

	first := <-sub.Events()
	require.Equal(t, events[0], first)
	second := <-sub.Events()
	require.Equal(t, events[1], second)

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event delivered before flush: %v", ev)
	default:
	}

	// Next broadcast (possibly empty, as the management tick does when it
	// has nothing new) flushes the pending discontinuity marker into the
	// now-free buffer slot.
	b.broadcast(nil)
	disc := <-sub.Events()
	require.Equal(t, event.NewStreamDiscontinuityEvent(), disc)

	// Delivery resumes normally afterward.
	resumed := []event.Event{event.NewChainBlockEvent(100), event.NewChainBlockEvent(101)}
	b.broadcast(resumed)
	got1 := <-sub.Events()
	got2 := <-sub.Events()
	require.Equal(t, resumed[0], got1)
	require.Equal(t, resumed[1], got2)
}
