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

// Package transport describes, but does not implement, the peer-to-peer
// message delivery the engine consumes (spec §1 Non-goals, §6): connection
// lifecycle, authentication and on-wire framing are someone else's concern.
// This package only fixes the shape the engine and transport agree on.
package transport

import (
	"context"
	"time"

	"github.com/exocore/exocore/corelib/identity"
)

// Service discriminates which synchronizer a Message belongs to.
type Service int

const (
	ServicePendingSync Service = iota
	ServiceChainSync
)

func (s Service) String() string {
	switch s {
	case ServicePendingSync:
		return "pending_sync"
	case ServiceChainSync:
		return "chain_sync"
	default:
		return "unknown"
	}
}

// Message is one transport frame, in either direction. Payload is an
// opaque, already-encoded byte slice (the multihash-sealed frame produced
// by the owning synchronizer's codec); the transport never interprets it.
type Message struct {
	Source       identity.NodeId
	CellID       []byte
	Service      Service
	Payload      []byte
	ConnectionID string
	RendezvousID string // correlates a response with its request, empty if none
	Expiration   time.Time
}

// NodeStatus reports a peer connectivity transition, delivered alongside
// inbound messages on the same stream.
type NodeStatus struct {
	Node      identity.NodeId
	Connected bool
}

// Inbound is one item of the engine's incoming stream: either a Message or
// a NodeStatus change, never both.
type Inbound struct {
	Message *Message
	Status  *NodeStatus
}

// Reset asks the transport to drop/renegotiate a connection; emitted on the
// outbound sink alongside ordinary messages.
type Reset struct {
	ConnectionID string
}

// Outbound is one item the engine pushes to the transport sink.
type Outbound struct {
	Message *Message
	Reset   *Reset
}

// Transport is the abstract service handle the engine core consumes.
// Delivery is best-effort, ordered per-connection, at-most-once. An
// implementation lives outside this module; transporttest provides a
// deterministic in-memory one for tests.
type Transport interface {
	// Inbound returns a channel of incoming events; closed when the
	// transport shuts down.
	Inbound() <-chan Inbound
	// Send enqueues an outbound event; it may block if the transport's
	// internal buffering is exhausted, the suspension point named in
	// spec §5.
	Send(ctx context.Context, out Outbound) error
	// Close releases the transport's resources.
	Close() error
}
