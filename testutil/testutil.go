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

// Package testutil is the shared fixture builder every other package's
// tests reach for instead of hand-rolling keys, cells and chains:
// deterministic node identities, signed blocks, and a dummy chain generator
// for the divergence and backfill scenarios (spec §8 S3/S5). The mock clock
// lives in corelib/clock and the in-memory transport in transporttest.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exocore/exocore/cell"
	"github.com/exocore/exocore/chainstore"
	"github.com/exocore/exocore/corelib/identity"
	"github.com/exocore/exocore/operation"
)

// Keys returns n deterministic keypairs, stable across runs so scenario
// tests can compare fixed expected identities instead of re-deriving them.
func Keys(n int) []*identity.KeyPair {
	out := make([]*identity.KeyPair, n)
	for i := range out {
		var seed [32]byte
		seed[len(seed)-1] = byte(i + 1)
		out[i] = identity.KeyPairFromSeed(seed)
	}
	return out
}

// Cell builds a Cell whose publicKey is a fixed test identity, with every
// key in keys a member holding roles.
func Cell(publicKey []byte, keys []*identity.KeyPair, roles ...cell.Role) *cell.Cell {
	members := make([]cell.CellNode, len(keys))
	for i, kp := range keys {
		members[i] = cell.NewCellNode(cell.Node{ID: kp.NodeId(), PublicKey: kp.PublicKey()}, roles...)
	}
	return cell.New(publicKey, members...)
}

// SignedBlock builds a single-entry block at offset/height, chained onto
// prevOffset/prevHash, signed by every keypair in signers, so a test can
// freely under- or over-quorum a candidate.
func SignedBlock(t testing.TB, offset, height, prevOffset uint64, prevHash []byte, opID operation.ID, data []byte, signers []*identity.KeyPair) operation.Block {
	t.Helper()

	op := operation.Operation{OperationID: opID, GroupID: opID, Payload: operation.Entry{Data: data}}
	opFrame, err := operation.Frame(op)
	require.NoError(t, err)
	digest, err := operation.SigningDigest(op)
	require.NoError(t, err)

	header := operation.BlockHeader{
		Offset:         offset,
		Height:         height,
		PreviousOffset: prevOffset,
		PreviousHash:   prevHash,
		OperationsSize: uint32(len(opFrame)),
		Operations: []operation.OperationHeader{
			{OperationID: opID, DataHash: digest, Size: uint32(len(opFrame))},
		},
	}
	// Sign the canonical digest, not HeaderHash: SignaturesSize is only set
	// below, after the signatures it would itself need to cover exist.
	headerHash, err := operation.HeaderSigningDigest(header)
	require.NoError(t, err)

	sigs := make([]operation.Signature, 0, len(signers))
	for _, kp := range signers {
		sigs = append(sigs, operation.Signature{NodeID: kp.NodeId(), Signature: kp.Sign(headerHash)})
	}
	sigsFrame, err := operation.FrameSignatures(sigs)
	require.NoError(t, err)
	header.SignaturesSize = uint32(len(sigsFrame))

	return operation.Block{Header: header, Operations: [][]byte{opFrame}, Signatures: sigs}
}

// WriteBlock writes b to store, failing the test on any error.
func WriteBlock(t testing.TB, store *chainstore.Store, b operation.Block) {
	t.Helper()
	var ops []byte
	for _, f := range b.Operations {
		ops = append(ops, f...)
	}
	sigsFrame, err := operation.FrameSignatures(b.Signatures)
	require.NoError(t, err)
	_, err = store.WriteBlock(b.Header, ops, sigsFrame)
	require.NoError(t, err)
}

// DummyChain writes count fully-signed, linearly-chained blocks onto store
// starting right after its current tip, one entry operation id per block
// drawn from nextOpID, nextOpID+1, .... It returns the written blocks'
// headers in order, for tests that need to assert against a known
// divergence point or backfill target (spec §8 S3, S5).
func DummyChain(t testing.TB, store *chainstore.Store, count int, nextOpID operation.ID, signers []*identity.KeyPair) []operation.BlockHeader {
	t.Helper()

	tip, ok := store.GetLastBlockInfo()
	require.True(t, ok, "store must already hold a genesis block")

	offset := store.NextOffset()
	prevHash, err := operation.HeaderHash(tip)
	require.NoError(t, err)

	headers := make([]operation.BlockHeader, 0, count)
	for i := 0; i < count; i++ {
		b := SignedBlock(t, offset, tip.Height+uint64(i)+1, tip.Offset, prevHash, nextOpID+operation.ID(i), []byte("dummy"), signers)
		WriteBlock(t, store, b)
		headers = append(headers, b.Header)

		prevHash, err = operation.HeaderHash(b.Header)
		require.NoError(t, err)
		tip.Offset = offset
		offset = store.NextOffset()
	}
	return headers
}
