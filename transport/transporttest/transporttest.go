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

// Package transporttest provides a deterministic in-memory transport.
// Transport wiring between engines in tests (spec §6 names the contract;
// nothing in scope implements it, so a test double belongs here instead of
// in the engine package).
package transporttest

import (
	"context"
	"sync"

	"github.com/exocore/exocore/corelib/identity"
	"github.com/exocore/exocore/transport"
)

// Network is a shared registry of in-memory nodes; messages Sent by one
// peer are delivered to the addressed peer's Inbound channel directly,
// with no real network delay, so scenario tests are deterministic under a
// mock clock.
type Network struct {
	mu    sync.Mutex
	peers map[identity.NodeId]*Peer
}

func NewNetwork() *Network {
	return &Network{peers: make(map[identity.NodeId]*Peer)}
}

// Peer is one node's transport.Transport handle onto the shared network.
// Destination routing for outbound messages is by ConnectionID, which
// tests set to the destination NodeId's hex string.
type Peer struct {
	net     *Network
	self    identity.NodeId
	inbound chan transport.Inbound
}

// NewPeer registers a new peer under id and connects it to every peer
// already on the network (and vice versa), emitting NodeStatus{Connected:
// true} both ways.
func (n *Network) NewPeer(id identity.NodeId) *Peer {
	n.mu.Lock()
	defer n.mu.Unlock()

	p := &Peer{net: n, self: id, inbound: make(chan transport.Inbound, 256)}
	for _, other := range n.peers {
		other.inbound <- transport.Inbound{Status: &transport.NodeStatus{Node: id, Connected: true}}
		p.inbound <- transport.Inbound{Status: &transport.NodeStatus{Node: other.self, Connected: true}}
	}
	n.peers[id] = p
	return p
}

func (p *Peer) Inbound() <-chan transport.Inbound { return p.inbound }

// Send routes a Message by its Destination-as-ConnectionID convention
// (tests address peers by NodeId.String()); a Reset is swallowed, there
// being no real connection to reset.
func (p *Peer) Send(ctx context.Context, out transport.Outbound) error {
	if out.Message == nil {
		return nil
	}
	p.net.mu.Lock()
	defer p.net.mu.Unlock()

	dest, err := identity.ParseNodeId(out.Message.ConnectionID)
	if err != nil {
		return nil
	}
	target, ok := p.net.peers[dest]
	if !ok {
		return nil
	}
	msg := *out.Message
	msg.Source = p.self
	select {
	case target.inbound <- transport.Inbound{Message: &msg}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (p *Peer) Close() error {
	close(p.inbound)
	return nil
}
