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

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exocore/exocore/cell"
	"github.com/exocore/exocore/chainsync"
	"github.com/exocore/exocore/corelib/clock"
	"github.com/exocore/exocore/corelib/errs"
	"github.com/exocore/exocore/corelib/identity"
	"github.com/exocore/exocore/event"
	"github.com/exocore/exocore/operation"
	"github.com/exocore/exocore/synccontext"
	"github.com/exocore/exocore/transport"
	"github.com/exocore/exocore/transport/transporttest"
)

func seedKeyPair(t *testing.T, b byte) *identity.KeyPair {
	t.Helper()
	var seed [32]byte
	seed[len(seed)-1] = b
	return identity.KeyPairFromSeed(seed)
}

func singleNodeCell(t *testing.T) (*cell.Cell, *identity.KeyPair) {
	t.Helper()
	kp := seedKeyPair(t, 1)
	node := cell.Node{ID: kp.NodeId(), PublicKey: kp.PublicKey()}
	c := cell.New([]byte("single-node-cell"), cell.NewCellNode(node, cell.RoleChain, cell.RoleStore))
	return c, kp
}

func twoNodeCell(t *testing.T) (c *cell.Cell, kp1, kp2 *identity.KeyPair) {
	t.Helper()
	kp1 = seedKeyPair(t, 1)
	kp2 = seedKeyPair(t, 2)
	n1 := cell.Node{ID: kp1.NodeId(), PublicKey: kp1.PublicKey()}
	n2 := cell.Node{ID: kp2.NodeId(), PublicKey: kp2.PublicKey()}
	c = cell.New([]byte("two-node-cell"),
		cell.NewCellNode(n1, cell.RoleChain, cell.RoleStore),
		cell.NewCellNode(n2, cell.RoleChain, cell.RoleStore))
	return c, kp1, kp2
}

// noTickConfig keeps the management ticker from ever firing during a test,
// so lifecycle tests only exercise the inbound/Start/Close paths they name.
func noTickConfig() Config {
	cfg := DefaultConfig
	cfg.TickInterval = time.Hour
	return cfg
}

func TestOpen_SeedsGenesisBlock(t *testing.T) {
	c, kp := singleNodeCell(t)
	net := transporttest.NewNetwork()
	peer := net.NewPeer(kp.NodeId())

	eng, err := Open(t.TempDir(), c, kp, peer, clock.NewMock(time.Unix(1700000000, 0)), noTickConfig(), nil, nil)
	require.NoError(t, err)

	h := eng.Start(context.Background())
	defer h.Close()

	hdr, err := h.LastBlock()
	require.NoError(t, err)
	require.Equal(t, cell.GenesisHeader(c), hdr)

	// TipOffset is the next-write offset, just past the genesis block.
	frame, err := operation.FrameHeader(hdr)
	require.NoError(t, err)
	offset, err := h.TipOffset()
	require.NoError(t, err)
	require.Equal(t, hdr.NextOffset(uint32(len(frame))), offset)
}

func TestOpen_ReopensExistingChainWithoutRewritingGenesis(t *testing.T) {
	c, kp := singleNodeCell(t)
	net := transporttest.NewNetwork()
	dir := t.TempDir()

	peer1 := net.NewPeer(kp.NodeId())
	eng1, err := Open(dir, c, kp, peer1, clock.NewMock(time.Unix(1700000000, 0)), noTickConfig(), nil, nil)
	require.NoError(t, err)
	h1 := eng1.Start(context.Background())
	genesis, err := h1.LastBlock()
	require.NoError(t, err)
	require.NoError(t, h1.Close())

	net2 := transporttest.NewNetwork()
	peer2 := net2.NewPeer(kp.NodeId())
	eng2, err := Open(dir, c, kp, peer2, clock.NewMock(time.Unix(1700000000, 0)), noTickConfig(), nil, nil)
	require.NoError(t, err)
	h2 := eng2.Start(context.Background())
	defer h2.Close()

	hdr, err := h2.LastBlock()
	require.NoError(t, err)
	require.Equal(t, genesis, hdr)
}

func TestHandle_CloneKeepsEngineAliveUntilLastClose(t *testing.T) {
	c, kp := singleNodeCell(t)
	net := transporttest.NewNetwork()
	peer := net.NewPeer(kp.NodeId())

	eng, err := Open(t.TempDir(), c, kp, peer, clock.NewMock(time.Unix(1700000000, 0)), noTickConfig(), nil, nil)
	require.NoError(t, err)

	h1 := eng.Start(context.Background())
	h2 := h1.Clone()

	require.NoError(t, h1.Close())
	// h2 still holds a reference; the engine must still answer queries.
	_, err = h2.TipOffset()
	require.NoError(t, err)

	require.NoError(t, h2.Close())
	_, err = h2.TipOffset()
	require.ErrorIs(t, err, errs.ErrInnerGone)
}

func TestHandle_SubmitEntryStoresLocallyAndSigns(t *testing.T) {
	c, kp := singleNodeCell(t)
	net := transporttest.NewNetwork()
	peer := net.NewPeer(kp.NodeId())

	eng, err := Open(t.TempDir(), c, kp, peer, clock.NewMock(time.Unix(1700000000, 0)), noTickConfig(), nil, nil)
	require.NoError(t, err)
	h := eng.Start(context.Background())
	defer h.Close()

	id, err := h.SubmitEntry([]byte("payload"))
	require.NoError(t, err)
	require.NotZero(t, id)

	count, err := h.PendingCount()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	stored, ok := eng.pending.GetOperation(id)
	require.True(t, ok)
	entry, ok := stored.Op.Payload.(operation.Entry)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), entry.Data)
	require.NotEmpty(t, stored.Op.Signature)
}

// TestEngine_DispatchMessage_PendingSyncRequestMerges exercises the inbound
// message path directly: a PendingSyncRequest frame as PushLocal would
// build it, decoded and merged by the receiving engine's dispatchMessage,
// with no goroutines or timing involved.
func TestEngine_DispatchMessage_PendingSyncRequestMerges(t *testing.T) {
	c, kp1, kp2 := twoNodeCell(t)
	net := transporttest.NewNetwork()
	peer1 := net.NewPeer(kp1.NodeId())
	peer2 := net.NewPeer(kp2.NodeId())
	clk := clock.NewMock(time.Unix(1700000000, 0))

	eng1, err := Open(t.TempDir(), c, kp1, peer1, clk, noTickConfig(), nil, nil)
	require.NoError(t, err)
	eng2, err := Open(t.TempDir(), c, kp2, peer2, clk, noTickConfig(), nil, nil)
	require.NoError(t, err)

	op := operation.Operation{
		OperationID: eng1.minter.Next(),
		NodeID:      kp1.NodeId(),
		Payload:     operation.Entry{Data: []byte("hi")},
	}
	op.GroupID = op.OperationID
	digest, err := operation.SigningDigest(op)
	require.NoError(t, err)
	op.Signature = kp1.Sign(digest)
	require.False(t, eng1.pending.PutOperation(op))

	// HandleRequest refuses while the chain is unsynchronized (spec §4.3);
	// bring eng2's chain synchronizer to Synchronized first by round-
	// tripping a real metadata request/response through both engines'
	// dispatchMessage, same as a two-member-cell node reaches it on its
	// own ticks.
	metaReqCtx := synccontext.New()
	require.NoError(t, eng2.chainSync.Tick(metaReqCtx))
	require.Len(t, metaReqCtx.Messages, 1)
	metaReq := *metaReqCtx.Messages[0].Message
	metaReq.Source = kp2.NodeId()

	metaRespCtx := synccontext.New()
	require.NoError(t, eng1.dispatchMessage(metaRespCtx, &metaReq))
	require.Len(t, metaRespCtx.Messages, 1)
	metaResp := *metaRespCtx.Messages[0].Message
	metaResp.Source = kp1.NodeId()

	require.NoError(t, eng2.dispatchMessage(synccontext.New(), &metaResp))
	require.Equal(t, chainsync.Synchronized, eng2.chainSync.Status())

	pushCtx := synccontext.New()
	require.NoError(t, eng1.pendingSync.PushLocal(pushCtx, op))
	require.Len(t, pushCtx.Messages, 1)

	msg := *pushCtx.Messages[0].Message
	msg.Source = kp1.NodeId()

	recvCtx := synccontext.New()
	require.NoError(t, eng2.dispatchMessage(recvCtx, &msg))

	require.Equal(t, 1, eng2.pending.Len())
	stored, ok := eng2.pending.GetOperation(op.OperationID)
	require.True(t, ok)
	require.Equal(t, op.OperationID, stored.Op.OperationID)

	require.Len(t, recvCtx.Events, 1)
	require.Equal(t, event.NewPendingOperationEvent(op.OperationID), recvCtx.Events[0])
	// Once merged, the receiving side's local range matches the pushed
	// range exactly, so the reply dispatchMessage sends carries no ranges.
	require.Len(t, recvCtx.Messages, 1)
	reply, err := transport.DecodeFrame(recvCtx.Messages[0].Message.Payload)
	require.NoError(t, err)
	require.Empty(t, reply.(transport.PendingSyncResponse).Ranges)
}

func TestEngine_DispatchMessage_UnknownPayloadIsDroppedNotFatal(t *testing.T) {
	c, kp := singleNodeCell(t)
	net := transporttest.NewNetwork()
	peer := net.NewPeer(kp.NodeId())
	eng, err := Open(t.TempDir(), c, kp, peer, clock.NewMock(time.Unix(1700000000, 0)), noTickConfig(), nil, nil)
	require.NoError(t, err)

	sctx := synccontext.New()
	err = eng.dispatchMessage(sctx, &transport.Message{Source: kp.NodeId(), Payload: []byte("not a frame")})
	require.Error(t, err)
}
