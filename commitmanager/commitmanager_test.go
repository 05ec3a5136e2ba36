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

package commitmanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exocore/exocore/cell"
	"github.com/exocore/exocore/chainstore"
	"github.com/exocore/exocore/corelib/clock"
	"github.com/exocore/exocore/corelib/identity"
	"github.com/exocore/exocore/corelib/opid"
	"github.com/exocore/exocore/operation"
	"github.com/exocore/exocore/pendingstore"
	"github.com/exocore/exocore/synccontext"
)

type harness struct {
	t      *testing.T
	mgr    *Manager
	pend   *pendingstore.Store
	chain  *chainstore.Store
	cellC  *cell.Cell
	keys   *identity.KeyPair
	clk    *clock.Mock
	minter *opid.Minter
}

func newHarness(t *testing.T, members ...cell.CellNode) *harness {
	t.Helper()
	keys, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	self := cell.NewCellNode(cell.Node{ID: keys.NodeId(), PublicKey: keys.PublicKey()}, cell.RoleChain, cell.RoleStore)
	all := append([]cell.CellNode{self}, members...)
	c := cell.New([]byte("cell-key"), all...)

	chain, err := chainstore.Open(t.TempDir(), chainstore.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { chain.Close() })

	clk := clock.NewMock(time.Unix(1700000000, 0))
	pend := pendingstore.New()
	minter := opid.NewMinter(clk)

	mgr := New(pend, chain, c, keys, clk, minter, nil, DefaultConfig, nil)
	return &harness{t: t, mgr: mgr, pend: pend, chain: chain, cellC: c, keys: keys, clk: clk, minter: minter}
}

func otherMember(t *testing.T) (cell.CellNode, *identity.KeyPair) {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	return cell.NewCellNode(cell.Node{ID: kp.NodeId(), PublicKey: kp.PublicKey()}, cell.RoleChain, cell.RoleStore), kp
}

func putEntry(t *testing.T, h *harness, data string) operation.ID {
	t.Helper()
	op := operation.Operation{
		OperationID: h.minter.Next(),
		Payload:     operation.Entry{Data: []byte(data)},
		NodeID:      h.keys.NodeId(),
	}
	op.GroupID = op.OperationID
	digest, err := operation.SigningDigest(op)
	require.NoError(t, err)
	op.Signature = h.keys.Sign(digest)
	h.pend.PutOperation(op)
	return op.OperationID
}

// Single-node cell: an entry should be proposed and, on the next tick once
// the proposal is self-signed, committed.
func TestTickSingleNodeCommitsEntry(t *testing.T) {
	h := newHarness(t)
	putEntry(t, h, "hello")

	ctx := synccontext.New()
	require.NoError(t, h.mgr.Tick(ctx))

	_, ok := h.chain.GetLastBlockInfo()
	require.False(t, ok, "first tick only proposes, no quorum yet to commit")

	ctx = synccontext.New()
	require.NoError(t, h.mgr.Tick(ctx))

	last, ok := h.chain.GetLastBlockInfo()
	require.True(t, ok)
	require.Equal(t, uint64(0), last.Offset)
	require.Equal(t, uint64(0), last.Height)
}

// Two chain-role nodes: the proposal needs both signatures before it
// commits, since quorum of 2 is 2.
func TestTickTwoNodeRequiresQuorum(t *testing.T) {
	peer, peerKeys := otherMember(t)
	h := newHarness(t, peer)
	// A 1 ms stagger interval puts every node's window at 0, so the first
	// tick may propose even though the mock clock has not moved.
	h.mgr.config.ProposalStaggerInterval = 1
	putEntry(t, h, "hello")

	ctx := synccontext.New()
	require.NoError(t, h.mgr.Tick(ctx)) // propose

	ctx = synccontext.New()
	require.NoError(t, h.mgr.Tick(ctx)) // self-sign, still short of quorum

	_, ok := h.chain.GetLastBlockInfo()
	require.False(t, ok)

	// Find the proposal and inject the peer's vote directly.
	var groupID operation.ID
	var header operation.BlockHeader
	for _, st := range h.pend.All() {
		if prop, isProp := st.Op.Payload.(operation.ProposedBlock); isProp {
			groupID = st.Op.OperationID
			header = prop.Header
		}
	}
	require.NotZero(t, groupID)

	headerHash, err := operation.HeaderSigningDigest(header)
	require.NoError(t, err)

	vote := operation.Operation{
		OperationID: h.minter.Next(),
		GroupID:     groupID,
		NodeID:      peerKeys.NodeId(),
		Payload:     operation.BlockVote{HeaderSignature: peerKeys.Sign(headerHash)},
	}
	digest, err := operation.SigningDigest(vote)
	require.NoError(t, err)
	vote.Signature = peerKeys.Sign(digest)
	h.pend.PutOperation(vote)

	ctx = synccontext.New()
	require.NoError(t, h.mgr.Tick(ctx))

	last, ok := h.chain.GetLastBlockInfo()
	require.True(t, ok)
	require.Equal(t, uint64(0), last.Offset)
	require.Len(t, ctx.Events, 1)
}

// Among two NextPotential candidates both reaching quorum, pickBest must
// prefer the one this node signed, then the one with more signatures, then
// the lower group id.
func TestPickBestTieBreakOrder(t *testing.T) {
	h := newHarness(t)
	self := h.keys.NodeId()

	a := &pendingBlock{groupID: 10, signers: map[identity.NodeId][]byte{self: {1}}}
	b := &pendingBlock{groupID: 5, signers: map[identity.NodeId][]byte{self: {1}, {9}: {2}}}
	best := h.mgr.pickBest([]*pendingBlock{a, b})
	require.Same(t, b, best, "more signatures should win over lower group id")

	other := identity.NodeId{9}
	c := &pendingBlock{groupID: 1, signers: map[identity.NodeId][]byte{other: {1}}}
	d := &pendingBlock{groupID: 2, signers: map[identity.NodeId][]byte{self: {1}}}
	best = h.mgr.pickBest([]*pendingBlock{c, d})
	require.Same(t, d, best, "this node's own signature should win regardless of group id")
}

// A proposal expires once BlockProposalTimeout elapses without reaching
// quorum or refusal quorum; cleanup then buries the stale proposal once the
// chain advances deep enough past it.
func TestProposalExpiresAfterTimeout(t *testing.T) {
	peer, _ := otherMember(t)
	h := newHarness(t, peer)
	// A 1 ms stagger interval puts every node's window at 0, so the first
	// tick may propose even though the mock clock has not moved.
	h.mgr.config.ProposalStaggerInterval = 1
	putEntry(t, h, "hello")

	ctx := synccontext.New()
	require.NoError(t, h.mgr.Tick(ctx))

	blocks := h.mgr.snapshot()
	h.mgr.classify(blocks, h.chain.NextOffset())
	require.Len(t, blocks, 1)
	for _, pb := range blocks {
		require.Len(t, pb.proposal.Header.Operations, 1)
		require.Equal(t, NextPotential, pb.status)
	}

	h.clk.Advance(DefaultConfig.BlockProposalTimeout + time.Second)
	blocks = h.mgr.snapshot()
	h.mgr.classify(blocks, h.chain.NextOffset())
	for _, pb := range blocks {
		require.Equal(t, NextExpired, pb.status)
	}
}

// Operations committed deep enough behind the tip get cleaned up.
func TestCleanupRemovesDeeplyBuriedCommittedOperations(t *testing.T) {
	h := newHarness(t)
	h.mgr.config.OperationsCleanupAfterBlockDepth = 1
	id := putEntry(t, h, "hello")

	ctx := synccontext.New()
	require.NoError(t, h.mgr.Tick(ctx)) // propose
	ctx = synccontext.New()
	require.NoError(t, h.mgr.Tick(ctx)) // sign + commit at offset 0

	_, ok := h.pend.GetOperation(id)
	require.True(t, ok, "operation survives immediately after commit")

	// Commit a second block so depth(tip, 0) reaches the configured
	// cleanup threshold of 1.
	putEntry(t, h, "world")
	ctx = synccontext.New()
	require.NoError(t, h.mgr.Tick(ctx)) // propose second block
	ctx = synccontext.New()
	require.NoError(t, h.mgr.Tick(ctx)) // sign + commit second block

	h.mgr.cleanupStage(h.chain.NextOffset())
	_, ok = h.pend.GetOperation(id)
	require.False(t, ok, "buried committed entry should be cleaned up")
}
