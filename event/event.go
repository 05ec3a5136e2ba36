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

// Package event defines the notifications the engine core dispatches to
// subscribers (spec §4.6). Kept separate from the engine package so the
// synchronizers that produce events don't need to import the engine that
// consumes them.
package event

import "github.com/exocore/exocore/operation"

type Kind int

const (
	// Started fires once after the first successful tick following engine
	// startup.
	Started Kind = iota
	// NewPendingOperation fires when an operation is newly inserted into
	// the pending store, whether locally written or received via sync.
	NewPendingOperation
	// NewChainBlock fires once a block is durably present in the chain
	// store, never before.
	NewChainBlock
	// ChainDiverged fires before any NewChainBlock at or above Offset,
	// telling subscribers that all derived state from Offset on is invalid.
	ChainDiverged
	// StreamDiscontinuity fires when a subscriber's bounded channel
	// overflowed and events were dropped.
	StreamDiscontinuity
)

func (k Kind) String() string {
	switch k {
	case Started:
		return "started"
	case NewPendingOperation:
		return "new_pending_operation"
	case NewChainBlock:
		return "new_chain_block"
	case ChainDiverged:
		return "chain_diverged"
	case StreamDiscontinuity:
		return "stream_discontinuity"
	default:
		return "unknown"
	}
}

// Event is one notification queued in a SyncContext and later delivered to
// subscribers in FIFO order per subscriber (spec §5).
type Event struct {
	Kind        Kind
	OperationID operation.ID // NewPendingOperation
	Offset      uint64       // NewChainBlock, ChainDiverged
}

func NewStarted() Event                       { return Event{Kind: Started} }
func NewPendingOperationEvent(id operation.ID) Event {
	return Event{Kind: NewPendingOperation, OperationID: id}
}
func NewChainBlockEvent(offset uint64) Event { return Event{Kind: NewChainBlock, Offset: offset} }
func NewChainDivergedEvent(offset uint64) Event {
	return Event{Kind: ChainDiverged, Offset: offset}
}
func NewStreamDiscontinuityEvent() Event { return Event{Kind: StreamDiscontinuity} }
