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

package operation

import "github.com/exocore/exocore/corelib/identity"

// MaxSignaturesPerBlock bounds the signatures frame's on-disk width (Open
// Question resolution #2 in SPEC_FULL.md): signatures_size is a uint32, but
// the implementation additionally enforces this soft cap so a pathological
// cell can never produce a block whose signature count is worth iterating
// without bound. It comfortably exceeds the "few tens of nodes" non-goal
// ceiling.
const MaxSignaturesPerBlock = 65535

// ProposedBlock is the body of a BlockPropose operation: a full block
// header plus the operation ids it covers, proposed at a specific offset.
type ProposedBlock struct {
	Header     BlockHeader
	OperationIDs []ID
}

func (ProposedBlock) Kind() Kind { return KindBlockPropose }

// BlockVote is the body of a BlockSign operation: it names the proposal (via
// the operation's GroupID) and carries this node's detached signature over
// the proposed header's hash. Unlike the operation's own Signature field
// (which only proves this BlockVote was issued by NodeID), HeaderSignature
// is independently checkable by anyone holding the header alone, which is
// what committed blocks need: a verifier with no access to the original
// vote operations must still be able to count valid signatures (spec §8
// property 2).
type BlockVote struct {
	HeaderSignature []byte
}

func (BlockVote) Kind() Kind { return KindBlockSign }

// BlockRefusal is the BlockRefuse payload; kept as a distinct type (rather
// than reusing BlockVote) so the two can never be confused at the type
// level even though their shape is identical.
type BlockRefusal struct {
	Reason string
}

func (BlockRefusal) Kind() Kind { return KindBlockRefuse }

// OperationHeader is the per-operation summary recorded in a committed
// block's header (spec §3: "operation_id + data hash + size").
type OperationHeader struct {
	OperationID ID
	DataHash    []byte
	Size        uint32
}

// BlockHeader is the fixed-size metadata prefixing every committed block
// (spec §3).
type BlockHeader struct {
	Offset              uint64
	Height              uint64
	PreviousOffset      uint64
	PreviousHash        []byte
	ProposedOperationID ID
	OperationsSize      uint32
	SignaturesSize      uint32
	Operations          []OperationHeader
}

// NextOffset returns the offset the following block must start at.
func (h BlockHeader) NextOffset(headerSize uint32) uint64 {
	return h.Offset + uint64(headerSize) + uint64(h.OperationsSize) + uint64(h.SignaturesSize)
}

// Signature is one chain-role node's signature over a committed block.
type Signature struct {
	NodeID    identity.NodeId
	Signature []byte
}

// Block is a committed bundle of operations: a header, the raw operation
// frames it summarizes, and the signatures that gave it quorum.
type Block struct {
	Header     BlockHeader
	Operations [][]byte // encoded operation frames, in header.Operations order
	Signatures []Signature
}
