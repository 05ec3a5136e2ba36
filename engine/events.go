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
	"sync"

	"github.com/exocore/exocore/event"
)

// subscriber is one registered event stream. deliver is called by the
// engine core once per tick (and once per handled inbound message),
// including with an empty batch, so a previously overflowed subscriber gets
// a chance to flush its pending StreamDiscontinuity marker purely from tick
// cadence (spec §5, scenario S6).
type subscriber struct {
	mu           sync.Mutex
	ch           chan event.Event
	discontinued bool
}

func newSubscriber(bufferSize int) *subscriber {
	return &subscriber{ch: make(chan event.Event, bufferSize)}
}

// deliver attempts, non-blocking, to flush a previously raised
// discontinuity marker first, then delivers events one at a time. The first
// send that would block marks the subscriber discontinued and abandons the
// rest of the batch: a slow subscriber never backpressures the engine's
// single writer lock.
func (s *subscriber) deliver(events []event.Event) (delivered int, droppedTail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discontinued {
		select {
		case s.ch <- event.NewStreamDiscontinuityEvent():
			s.discontinued = false
		default:
			return 0, len(events) > 0
		}
	}

	for i, ev := range events {
		select {
		case s.ch <- ev:
			delivered++
		default:
			s.discontinued = true
			return delivered, i < len(events)
		}
	}
	return delivered, false
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.ch)
}

// Subscription is a handle onto one event stream. Events arrives in FIFO
// order; a StreamDiscontinuity event on the stream means some events
// between the previous delivery and it were dropped because the consumer
// fell behind (spec §5).
type Subscription struct {
	id     uint64
	sub    *subscriber
	cancel func(id uint64)
}

// Events returns the subscription's channel. It is closed when the
// subscription is unsubscribed or the engine shuts down.
func (s *Subscription) Events() <-chan event.Event { return s.sub.ch }

// Close unsubscribes, releasing the channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.cancel(s.id)
}

// eventBroadcaster owns the subscriber registry, guarded by its own mutex:
// drain calls broadcast after the engine's write lock has been released,
// and handles subscribe and unsubscribe without taking the engine lock.
type eventBroadcaster struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]*subscriber
	metrics *Metrics
}

func newEventBroadcaster(metrics *Metrics) *eventBroadcaster {
	return &eventBroadcaster{subs: make(map[uint64]*subscriber), metrics: metrics}
}

func (b *eventBroadcaster) subscribe(bufferSize int) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	sub := newSubscriber(bufferSize)
	b.subs[id] = sub
	b.metrics.setSubscribersActive(len(b.subs))
	return &Subscription{id: id, sub: sub, cancel: b.unsubscribe}
}

func (b *eventBroadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	sub.close()
	b.metrics.setSubscribersActive(len(b.subs))
}

// broadcast delivers events (possibly empty, to flush pending discontinuity
// markers) to every live subscriber.
func (b *eventBroadcaster) broadcast(events []event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		delivered, dropped := sub.deliver(events)
		b.metrics.addEventsDelivered(delivered)
		if dropped {
			b.metrics.incStreamDiscontinuities()
		}
	}
}

// closeAll shuts down every live subscription, used on engine close.
func (b *eventBroadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		sub.close()
		delete(b.subs, id)
	}
	b.metrics.setSubscribersActive(0)
}
