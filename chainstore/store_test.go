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

package chainstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exocore/exocore/operation"
)

// buildBlock encodes a minimal block body for height/offset/previous hash
// given, sealing a single entry operation frame plus an empty signatures
// frame, and returns the header alongside the encoded frames ready for
// Store.WriteBlock.
func buildBlock(t *testing.T, offset, height, prevOffset uint64, prevHash []byte, opID operation.ID) (operation.BlockHeader, []byte, []byte) {
	t.Helper()

	op := operation.Operation{
		OperationID: opID,
		GroupID:     opID,
		Payload:     operation.Entry{Data: []byte("hello")},
	}
	opFrame, err := operation.Frame(op)
	require.NoError(t, err)

	sigs := []operation.Signature{}
	sigFrame, err := operation.FrameSignatures(sigs)
	require.NoError(t, err)

	header := operation.BlockHeader{
		Offset:         offset,
		Height:         height,
		PreviousOffset: prevOffset,
		PreviousHash:   prevHash,
		OperationsSize: uint32(len(opFrame)),
		SignaturesSize: uint32(len(sigFrame)),
		Operations: []operation.OperationHeader{
			{OperationID: opID, DataHash: mustHash(t, op), Size: uint32(len(opFrame))},
		},
	}
	return header, opFrame, sigFrame
}

func mustHash(t *testing.T, op operation.Operation) []byte {
	t.Helper()
	h, err := operation.SigningDigest(op)
	require.NoError(t, err)
	return h
}

func headerLen(t *testing.T, h operation.BlockHeader) uint32 {
	t.Helper()
	frame, err := operation.FrameHeader(h)
	require.NoError(t, err)
	return uint32(len(frame))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir, Config{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestStoreGenesisMustStartAtZero(t *testing.T) {
	s := openTestStore(t)
	header, ops, sigs := buildBlock(t, 1, 0, 0, nil, 1)
	_, err := s.WriteBlock(header, ops, sigs)
	require.Error(t, err)
}

func TestStoreAppendAndRead(t *testing.T) {
	s := openTestStore(t)

	header0, ops0, sigs0 := buildBlock(t, 0, 0, 0, nil, 1)
	next0, err := s.WriteBlock(header0, ops0, sigs0)
	require.NoError(t, err)

	hash0, err := operation.HeaderHash(header0)
	require.NoError(t, err)

	header1, ops1, sigs1 := buildBlock(t, next0, 1, header0.Offset, hash0, 2)
	next1, err := s.WriteBlock(header1, ops1, sigs1)
	require.NoError(t, err)
	require.Greater(t, next1, next0)

	last, ok, err := s.GetLastBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, header1.Offset, last.Header.Offset)
	require.Equal(t, uint64(1), last.Header.Height)

	got, err := s.GetBlock(header0.Offset)
	require.NoError(t, err)
	require.Equal(t, header0.Height, got.Header.Height)

	byOp, ok, err := s.GetBlockByOperationID(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, header1.Offset, byOp.Header.Offset)

	pred, err := s.GetBlockFromNextOffset(next0)
	require.NoError(t, err)
	require.Equal(t, header0.Offset, pred.Header.Offset)
}

func TestStoreRejectsDiscontinuity(t *testing.T) {
	s := openTestStore(t)

	header0, ops0, sigs0 := buildBlock(t, 0, 0, 0, nil, 1)
	_, err := s.WriteBlock(header0, ops0, sigs0)
	require.NoError(t, err)

	badHeader, ops1, sigs1 := buildBlock(t, 0, 1, header0.Offset, []byte("wrong hash"), 2)
	_, err = s.WriteBlock(badHeader, ops1, sigs1)
	require.Error(t, err)
}

func TestStoreTruncateFromRewindsTail(t *testing.T) {
	s := openTestStore(t)

	header0, ops0, sigs0 := buildBlock(t, 0, 0, 0, nil, 1)
	next0, err := s.WriteBlock(header0, ops0, sigs0)
	require.NoError(t, err)
	hash0, err := operation.HeaderHash(header0)
	require.NoError(t, err)

	header1, ops1, sigs1 := buildBlock(t, next0, 1, header0.Offset, hash0, 2)
	next1, err := s.WriteBlock(header1, ops1, sigs1)
	require.NoError(t, err)

	hash1, err := operation.HeaderHash(header1)
	require.NoError(t, err)
	header2, ops2, sigs2 := buildBlock(t, next1, 2, header1.Offset, hash1, 3)
	_, err = s.WriteBlock(header2, ops2, sigs2)
	require.NoError(t, err)

	require.NoError(t, s.TruncateFrom(header1.Offset))

	last, ok, err := s.GetLastBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, header0.Offset, last.Header.Offset)

	_, ok, err = s.GetBlockByOperationID(2)
	require.NoError(t, err)
	require.False(t, ok)

	// The rewritten tail block must be accepted again at the same offset.
	header1b, ops1b, sigs1b := buildBlock(t, next0, 1, header0.Offset, hash0, 4)
	_, err = s.WriteBlock(header1b, ops1b, sigs1b)
	require.NoError(t, err)
}

func TestStoreSegmentRollover(t *testing.T) {
	dir := t.TempDir()
	// A tiny segment cap forces every block into its own segment file.
	s, err := Open(dir, Config{SegmentMaxSize: 1, SegmentOverAllocateSize: 0})
	require.NoError(t, err)
	defer s.Close()

	header0, ops0, sigs0 := buildBlock(t, 0, 0, 0, nil, 1)
	next0, err := s.WriteBlock(header0, ops0, sigs0)
	require.NoError(t, err)
	hash0, err := operation.HeaderHash(header0)
	require.NoError(t, err)

	header1, ops1, sigs1 := buildBlock(t, next0, 1, header0.Offset, hash0, 2)
	_, err = s.WriteBlock(header1, ops1, sigs1)
	require.NoError(t, err)

	require.Len(t, s.Segments(), 2)
}

func TestStoreReopenRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Config{})
	require.NoError(t, err)

	header0, ops0, sigs0 := buildBlock(t, 0, 0, 0, nil, 1)
	_, err = s.WriteBlock(header0, ops0, sigs0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(dir, Config{})
	require.NoError(t, err)
	defer s2.Close()

	last, ok, err := s2.GetLastBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, header0.Height, last.Header.Height)
}
