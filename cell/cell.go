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

// Package cell defines the trust domain the engine operates within: a
// public key identity plus a membership list of nodes and their roles
// (spec §3, §9). Quorum arithmetic only ever cares about the Chain role;
// Store and AppHost are opaque to the engine and exist so the type has
// room to grow without a breaking change.
package cell

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/exocore/exocore/corelib/identity"
)

// Role is a capability a cell member may hold. The engine's quorum
// arithmetic only inspects Chain; the others are carried for the benefit of
// components outside this module's scope (the entity index reads Store,
// the app-host runtime reads AppHost).
type Role int

const (
	RoleChain Role = iota
	RoleStore
	RoleAppHost
)

func (r Role) String() string {
	switch r {
	case RoleChain:
		return "chain"
	case RoleStore:
		return "store"
	case RoleAppHost:
		return "app_host"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Node is a cell member: its identity and public key.
type Node struct {
	ID        identity.NodeId
	PublicKey *secp256k1.PublicKey
}

// CellNode pairs a Node with the roles it holds within one cell.
type CellNode struct {
	Node  Node
	Roles map[Role]struct{}
}

func NewCellNode(node Node, roles ...Role) CellNode {
	cn := CellNode{Node: node, Roles: make(map[Role]struct{}, len(roles))}
	for _, r := range roles {
		cn.Roles[r] = struct{}{}
	}
	return cn
}

func (c CellNode) HasRole(r Role) bool {
	_, ok := c.Roles[r]
	return ok
}

// Cell is a cell's public identity plus its membership list.
type Cell struct {
	PublicKey []byte
	Members   []CellNode
}

// New creates a Cell with the given identity key and initial members.
func New(publicKey []byte, members ...CellNode) *Cell {
	return &Cell{PublicKey: append([]byte(nil), publicKey...), Members: members}
}

// NodeByID looks up a member by NodeId.
func (c *Cell) NodeByID(id identity.NodeId) (CellNode, bool) {
	for _, m := range c.Members {
		if m.Node.ID == id {
			return m, true
		}
	}
	return CellNode{}, false
}

// CountWithRole returns how many members hold the given role.
func (c *Cell) CountWithRole(r Role) int {
	n := 0
	for _, m := range c.Members {
		if m.HasRole(r) {
			n++
		}
	}
	return n
}

// NodesWithRole returns the members holding the given role.
func (c *Cell) NodesWithRole(r Role) []CellNode {
	out := make([]CellNode, 0, len(c.Members))
	for _, m := range c.Members {
		if m.HasRole(r) {
			out = append(out, m)
		}
	}
	return out
}

// QuorumSize returns strictly-more-than-half of the members holding role r:
// the number of distinct signatures needed for quorum.
func (c *Cell) QuorumSize(r Role) int {
	return c.CountWithRole(r)/2 + 1
}

// HasQuorum reports whether the given count of distinct signers holding
// role r meets quorum.
func (c *Cell) HasQuorum(r Role, count int) bool {
	return count >= c.QuorumSize(r)
}
