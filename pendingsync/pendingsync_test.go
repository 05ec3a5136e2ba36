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

package pendingsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exocore/exocore/cell"
	"github.com/exocore/exocore/corelib/clock"
	"github.com/exocore/exocore/corelib/identity"
	"github.com/exocore/exocore/operation"
	"github.com/exocore/exocore/pendingstore"
	"github.com/exocore/exocore/synccontext"
	"github.com/exocore/exocore/transport"
)

func twoNodeCell(t *testing.T) (*cell.Cell, identity.NodeId, identity.NodeId) {
	t.Helper()
	a, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	b, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	c := cell.New([]byte("cell-key"),
		cell.NewCellNode(cell.Node{ID: a.NodeId(), PublicKey: a.PublicKey()}, cell.RoleChain, cell.RoleStore),
		cell.NewCellNode(cell.Node{ID: b.NodeId(), PublicKey: b.PublicKey()}, cell.RoleChain, cell.RoleStore),
	)
	return c, a.NodeId(), b.NodeId()
}

func TestSummarizeGroupsIntoBuckets(t *testing.T) {
	store := pendingstore.New()
	store.PutOperation(operation.Operation{OperationID: 1, GroupID: 1, Payload: operation.Entry{}})
	store.PutOperation(operation.Operation{OperationID: 2, GroupID: 2, Payload: operation.Entry{}})

	c, self, _ := twoNodeCell(t)
	s := New(store, c, self, clock.NewMock(time.Unix(0, 0)), 0)

	ranges := s.Summarize()
	require.Len(t, ranges, 1)
	require.Equal(t, 2, ranges[0].Count)
}

func TestHandleRequestMergesOperationsAndSkipsMatchingRanges(t *testing.T) {
	storeA := pendingstore.New()
	c, selfA, _ := twoNodeCell(t)
	sA := New(storeA, c, selfA, clock.NewMock(time.Unix(0, 0)), 0)

	incoming := operation.Operation{OperationID: 7, GroupID: 7, Payload: operation.Entry{Data: []byte("hi")}}
	req := transport.PendingSyncRequest{Ranges: []transport.PendingRange{{
		IDFrom:     0,
		IDTo:       1 << 16,
		Count:      1,
		Hash:       hashID(7),
		Operations: []operation.Operation{incoming},
	}}}

	ctx := synccontext.New()
	resp := sA.HandleRequest(ctx, true, req)
	_, ok := storeA.GetOperation(7)
	require.True(t, ok)
	require.Empty(t, resp.Ranges)
	require.Len(t, ctx.Events, 1)
}

func TestHandleRequestRefusesWhileChainUnsynchronized(t *testing.T) {
	storeA := pendingstore.New()
	c, selfA, _ := twoNodeCell(t)
	sA := New(storeA, c, selfA, clock.NewMock(time.Unix(0, 0)), 0)

	incoming := operation.Operation{OperationID: 7, GroupID: 7, Payload: operation.Entry{Data: []byte("hi")}}
	req := transport.PendingSyncRequest{Ranges: []transport.PendingRange{{
		IDFrom:     0,
		IDTo:       1 << 16,
		Count:      1,
		Hash:       hashID(7),
		Operations: []operation.Operation{incoming},
	}}}

	ctx := synccontext.New()
	resp := sA.HandleRequest(ctx, false, req)
	_, ok := storeA.GetOperation(7)
	require.False(t, ok)
	require.Empty(t, resp.Ranges)
	require.Empty(t, ctx.Events)
}

func TestHandleRequestRepliesOnMismatch(t *testing.T) {
	storeA := pendingstore.New()
	storeA.PutOperation(operation.Operation{OperationID: 3, GroupID: 3, Payload: operation.Entry{}})
	c, selfA, _ := twoNodeCell(t)
	sA := New(storeA, c, selfA, clock.NewMock(time.Unix(0, 0)), 0)

	req := transport.PendingSyncRequest{Ranges: []transport.PendingRange{{
		IDFrom: 0,
		IDTo:   1 << 16,
		Count:  0,
		Hash:   0,
	}}}

	ctx := synccontext.New()
	resp := sA.HandleRequest(ctx, true, req)
	require.Len(t, resp.Ranges, 1)
	require.Len(t, resp.Ranges[0].Operations, 1)
}

func TestPushLocalAddressesEveryStoreRolePeerExceptSelf(t *testing.T) {
	storeA := pendingstore.New()
	c, selfA, _ := twoNodeCell(t)
	sA := New(storeA, c, selfA, clock.NewMock(time.Unix(0, 0)), 0)

	ctx := synccontext.New()
	err := sA.PushLocal(ctx, operation.Operation{OperationID: 1, GroupID: 1, Payload: operation.Entry{}})
	require.NoError(t, err)
	require.Len(t, ctx.Messages, 1)
}

func TestBuildRequestRefusesWhileChainUnsynchronized(t *testing.T) {
	storeA := pendingstore.New()
	storeA.PutOperation(operation.Operation{OperationID: 1, GroupID: 1, Payload: operation.Entry{}})
	c, selfA, _ := twoNodeCell(t)
	sA := New(storeA, c, selfA, clock.NewMock(time.Unix(0, 0)), 0)

	ctx := synccontext.New()
	sA.BuildRequest(ctx, false, time.Second, time.Minute)
	require.Empty(t, ctx.Messages)

	sA.BuildRequest(ctx, true, time.Second, time.Minute)
	require.Len(t, ctx.Messages, 1)
}
