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

package pendingstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exocore/exocore/operation"
)

func entryOp(id operation.ID) operation.Operation {
	return operation.Operation{OperationID: id, GroupID: id, Payload: operation.Entry{Data: []byte("x")}}
}

func TestPutOperationIsIdempotent(t *testing.T) {
	s := New()
	require.False(t, s.PutOperation(entryOp(1)))
	require.True(t, s.PutOperation(entryOp(1)))
	require.Equal(t, 1, s.Len())
}

func TestGetGroupOperations(t *testing.T) {
	s := New()
	propose := operation.Operation{OperationID: 10, GroupID: 10, Payload: operation.ProposedBlock{}}
	sign := operation.Operation{OperationID: 11, GroupID: 10, Payload: operation.Entry{}}
	s.PutOperation(propose)
	s.PutOperation(sign)

	group, ok := s.GetGroupOperations(10)
	require.True(t, ok)
	require.Len(t, group, 2)
}

func TestOperationsIterRespectsRange(t *testing.T) {
	s := New()
	for _, id := range []operation.ID{1, 5, 10, 100} {
		s.PutOperation(entryOp(id))
	}
	got := s.OperationsIter(0, 11)
	require.Len(t, got, 3)
}

func TestUpdateAndDelete(t *testing.T) {
	s := New()
	s.PutOperation(entryOp(1))
	require.True(t, s.UpdateCommitStatus(1, CommitStatus{State: Committed, BlockOffset: 7, BlockHeight: 1}))

	st, ok := s.GetOperation(1)
	require.True(t, ok)
	require.Equal(t, Committed, st.Status.State)
	require.Equal(t, uint64(7), st.Status.BlockOffset)

	s.DeleteOperations([]operation.ID{1})
	_, ok = s.GetOperation(1)
	require.False(t, ok)
	require.Equal(t, 0, s.Len())
}
