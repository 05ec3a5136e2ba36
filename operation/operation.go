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

// Package operation defines the atomic unit exchanged between nodes and
// stored in the pending store and the chain (spec §3): an id, a group id,
// a signer, a typed payload, and a detached signature over that payload.
package operation

import (
	"fmt"

	"github.com/exocore/exocore/corelib/identity"
)

// Kind discriminates the five payload shapes spec §3 names.
type Kind uint8

const (
	// KindEntry is an opaque, application-supplied mutation.
	KindEntry Kind = iota
	// KindBlockPropose nominates a block to be committed next.
	KindBlockPropose
	// KindBlockSign is a chain-role node's signature over a proposal.
	KindBlockSign
	// KindBlockRefuse is a chain-role node's refusal of a proposal.
	KindBlockRefuse
	// KindPendingIgnore names an operation id as not to be resynchronized
	// (Open Question resolution #3 in SPEC_FULL.md); see PendingIgnore.
	KindPendingIgnore
)

func (k Kind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindBlockPropose:
		return "block_propose"
	case KindBlockSign:
		return "block_sign"
	case KindBlockRefuse:
		return "block_refuse"
	case KindPendingIgnore:
		return "pending_ignore"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ID is an operation_id: monotonic, globally unique within a cell.
type ID = uint64

// Payload is the typed body of an operation. Concrete payload types are
// defined alongside the operations that produce them (Entry and
// PendingIgnore here, ProposedBlock/BlockVote/BlockRefusal in block.go).
type Payload interface {
	Kind() Kind
}

// Entry is an opaque application mutation: the engine never interprets its
// bytes, only hashes and stores them (the entity index, out of scope here,
// is the consumer that interprets Data).
type Entry struct {
	Data []byte
}

func (Entry) Kind() Kind { return KindEntry }

// PendingIgnore names Target as an operation not to be resynchronized. No
// component reads Target: pending sync exchanges PendingIgnore operations
// like any other, and only the commit manager's cleanup treats them apart.
type PendingIgnore struct {
	Target ID
}

func (PendingIgnore) Kind() Kind { return KindPendingIgnore }

// Operation is the wire/storage unit. GroupID equals OperationID for
// entries; for block-propose/sign/refuse it equals the proposal's
// OperationID, tying every vote to its proposal (spec §3).
type Operation struct {
	OperationID ID
	GroupID     ID
	NodeID      identity.NodeId
	Payload     Payload
	Signature   []byte
}

// SigningDigest returns the bytes the detached signature covers: the
// multihash of the encoded operation sans signature. See codec.go, which
// owns the encoding and therefore the digest computation.
