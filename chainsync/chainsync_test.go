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

package chainsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exocore/exocore/cell"
	"github.com/exocore/exocore/chainstore"
	"github.com/exocore/exocore/corelib/clock"
	"github.com/exocore/exocore/corelib/identity"
	"github.com/exocore/exocore/operation"
	"github.com/exocore/exocore/synccontext"
	"github.com/exocore/exocore/transport"
)

// signedBlock builds a single-entry block at offset/height, chained onto
// prevOffset/prevHash, signed by every keypair given (so tests can exercise
// under- and over-quorum signature sets).
func signedBlock(t *testing.T, offset, height, prevOffset uint64, prevHash []byte, opID operation.ID, signers []*identity.KeyPair) operation.Block {
	t.Helper()
	return signedBlockWithData(t, offset, height, prevOffset, prevHash, opID, signers, []byte("x"))
}

// signedBlockWithData is signedBlock with a caller-chosen entry payload, so
// tests can exercise oversized blocks (spec §8 S4).
func signedBlockWithData(t *testing.T, offset, height, prevOffset uint64, prevHash []byte, opID operation.ID, signers []*identity.KeyPair, data []byte) operation.Block {
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

func writeBlock(t *testing.T, s *chainstore.Store, b operation.Block) {
	t.Helper()
	var ops []byte
	for _, f := range b.Operations {
		ops = append(ops, f...)
	}
	sigsFrame, err := operation.FrameSignatures(b.Signatures)
	require.NoError(t, err)
	_, err = s.WriteBlock(b.Header, ops, sigsFrame)
	require.NoError(t, err)
}

func newKP(t *testing.T) *identity.KeyPair {
	t.Helper()
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func TestSampleRangeIsDeterministic(t *testing.T) {
	s, err := chainstore.Open(t.TempDir(), chainstore.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	kp := newKP(t)
	offset := uint64(0)
	var prevHash []byte
	for i := uint64(0); i < 40; i++ {
		b := signedBlock(t, offset, i, offset, prevHash, operation.ID(i+1), []*identity.KeyPair{kp})
		writeBlock(t, s, b)
		h, err := operation.HeaderHash(b.Header)
		require.NoError(t, err)
		prevHash = h
		frame, err := operation.FrameHeader(b.Header)
		require.NoError(t, err)
		offset = b.Header.NextOffset(uint32(len(frame)))
	}

	a, err := SampleAll(s, DefaultConfig)
	require.NoError(t, err)
	b, err := SampleAll(s, DefaultConfig)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestCompareSamplesDetectsDivergenceWithNoCommonPoint(t *testing.T) {
	local := []transport.BlockMetadata{{Offset: 0, Hash: []byte("a")}}
	remote := []transport.BlockMetadata{{Offset: 0, Hash: []byte("b")}}
	cmp := compareSamples(local, remote)
	require.True(t, cmp.diverged)
	require.False(t, cmp.commonFound)
}

func TestCompareSamplesFindsHighestCommonOffset(t *testing.T) {
	local := []transport.BlockMetadata{
		{Offset: 0, Hash: []byte("a")},
		{Offset: 10, Hash: []byte("b")},
		{Offset: 20, Hash: []byte("c")},
	}
	remote := []transport.BlockMetadata{
		{Offset: 0, Hash: []byte("a")},
		{Offset: 10, Hash: []byte("b")},
		{Offset: 20, Hash: []byte("different")},
	}
	cmp := compareSamples(local, remote)
	require.True(t, cmp.commonFound)
	require.Equal(t, uint64(10), cmp.commonOffset)
}

func newHarness(t *testing.T, self *identity.KeyPair, others ...cell.CellNode) (*chainstore.Store, *cell.Cell, *clock.Mock, *Synchronizer) {
	t.Helper()
	s, err := chainstore.Open(t.TempDir(), chainstore.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	selfNode := cell.NewCellNode(cell.Node{ID: self.NodeId(), PublicKey: self.PublicKey()}, cell.RoleChain, cell.RoleStore)
	members := append([]cell.CellNode{selfNode}, others...)
	c := cell.New([]byte("cell"), members...)

	clk := clock.NewMock(time.Unix(1700000000, 0))
	sync := New(s, c, self.NodeId(), clk, DefaultConfig, nil)
	return s, c, clk, sync
}

// A single-member cell is trivially synchronized with itself (spec §4.5
// step 4: "If the local tip is at least as tall as every peer's tip... the
// local node is its own leader").
func TestEvaluateSingleMemberCellIsSynchronized(t *testing.T) {
	self := newKP(t)
	_, _, _, sync := newHarness(t, self)

	ctx := synccontext.New()
	require.NoError(t, sync.Tick(ctx))
	require.Equal(t, Synchronized, sync.Status())
}

// S3 (abridged): a remote sample with no offset in common and a mismatching
// hash at a shared offset yields Unknown status without touching the local
// chain.
func TestHandleMetadataResponseAllDivergedIsUnknown(t *testing.T) {
	self := newKP(t)
	peerKP := newKP(t)
	peerNode := cell.NewCellNode(cell.Node{ID: peerKP.NodeId(), PublicKey: peerKP.PublicKey()}, cell.RoleChain, cell.RoleStore)

	store, _, _, sync := newHarness(t, self, peerNode)

	b := signedBlock(t, 0, 0, 0, nil, 1, []*identity.KeyPair{self})
	writeBlock(t, store, b)

	remoteHash := append([]byte(nil), b.Header.PreviousHash...)
	remoteHash = append(remoteHash, 0xFF)
	resp := transport.ChainSyncResponse{
		FromOffset:  0,
		ToOffset:    store.NextOffset(),
		PayloadKind: transport.PayloadMetadata,
		Metadata:    []transport.BlockMetadata{{Offset: 0, Hash: []byte("totally-different")}},
	}

	ctx := synccontext.New()
	require.NoError(t, sync.HandleResponse(ctx, peerKP.NodeId(), resp))
	require.Equal(t, Unknown, sync.Status())

	last, ok := store.GetLastBlockInfo()
	require.True(t, ok)
	require.Equal(t, uint64(0), last.Offset)
}

// Divergence recovery: a peer taller than us, sharing no common ancestor,
// causes our single local block to be truncated and a blocks download to
// start (spec §4.5 steps 5, 7).
func TestFollowLeaderTruncatesOnDivergentSuffix(t *testing.T) {
	self := newKP(t)
	peer1 := newKP(t)
	peer2 := newKP(t)
	peerNode1 := cell.NewCellNode(cell.Node{ID: peer1.NodeId(), PublicKey: peer1.PublicKey()}, cell.RoleChain, cell.RoleStore)
	peerNode2 := cell.NewCellNode(cell.Node{ID: peer2.NodeId(), PublicKey: peer2.PublicKey()}, cell.RoleChain, cell.RoleStore)

	store, _, clk, sync := newHarness(t, self, peerNode1, peerNode2)

	// Our local (soon-to-be-wrong) chain: one block, self-signed only.
	ours := signedBlock(t, 0, 0, 0, nil, 1, []*identity.KeyPair{self})
	writeBlock(t, store, ours)

	// The "canonical" chain peer1 reports: a different block at offset 0,
	// quorum-signed by peer1 and peer2 (2 of 3 chain-role members), plus a
	// second block on top, making peer1 strictly taller.
	canon0 := signedBlock(t, 0, 0, 0, nil, 2, []*identity.KeyPair{peer1, peer2})
	hash0, err := operation.HeaderHash(canon0.Header)
	require.NoError(t, err)
	frame0, err := operation.FrameHeader(canon0.Header)
	require.NoError(t, err)
	next0 := canon0.Header.NextOffset(uint32(len(frame0)))
	canon1 := signedBlock(t, next0, 1, canon0.Header.Offset, hash0, 3, []*identity.KeyPair{peer1, peer2})
	hash1, err := operation.HeaderHash(canon1.Header)
	require.NoError(t, err)
	frame1, err := operation.FrameHeader(canon1.Header)
	require.NoError(t, err)

	// Populate the same BlockSize/OperationsSize/SignaturesSize fields
	// headerToMetadata would, since follow-leader derives the download's
	// end offset from these wire fields rather than a local lookup.
	remoteSample := []transport.BlockMetadata{
		headerToMetadata(canon0.Header, hash0, uint32(len(frame0))),
		headerToMetadata(canon1.Header, hash1, uint32(len(frame1))),
	}

	clk.Advance(time.Second)
	metaResp := transport.ChainSyncResponse{
		FromOffset:  0,
		ToOffset:    store.NextOffset(),
		PayloadKind: transport.PayloadMetadata,
		Metadata:    remoteSample,
	}
	ctx := synccontext.New()
	// Both peer1 and peer2 report the same canonical tip: together they
	// reach the 2-of-3 chain-role quorum needed to outvote our own
	// (unsigned-by-quorum) local chain, even though neither shares a common
	// ancestor with it.
	require.NoError(t, sync.HandleResponse(ctx, peer1.NodeId(), metaResp))
	require.NoError(t, sync.HandleResponse(ctx, peer2.NodeId(), metaResp))

	require.Equal(t, Downloading, sync.Status())
	last, ok := store.GetLastBlockInfo()
	require.False(t, ok, "the diverged local block must have been truncated")
	require.Len(t, ctx.Events, 1, "truncation emits exactly one ChainDiverged event")

	var gotReq transport.ChainSyncRequest
	require.Len(t, ctx.Messages, 1)
	decoded, err := transport.DecodeFrame(ctx.Messages[0].Message.Payload)
	require.NoError(t, err)
	gotReq = decoded.(transport.ChainSyncRequest)
	require.Equal(t, transport.RequestBlocks, gotReq.RequestedDetail)
	require.Equal(t, uint64(0), gotReq.FromOffset)

	// Deliver the blocks response; both canonical blocks should now be
	// durably present and the peer marked synchronized.
	ctx2 := synccontext.New()
	blocksResp := transport.ChainSyncResponse{
		FromOffset:  gotReq.FromOffset,
		ToOffset:    gotReq.ToOffset,
		PayloadKind: transport.PayloadBlocks,
		Blocks:      []operation.Block{canon0, canon1},
	}
	require.NoError(t, sync.HandleResponse(ctx2, peer1.NodeId(), blocksResp))

	last, ok = store.GetLastBlockInfo()
	require.True(t, ok)
	require.Equal(t, uint64(1), last.Height)
	require.Equal(t, Synchronized, sync.Status())
}

// A single block whose body exceeds BlocksMaxSendSize is still sent alone
// rather than split or withheld (spec §4.5 step 5, §8 scenario S4).
func TestBuildBlocksResponsesSendsOversizedSingleBlockAlone(t *testing.T) {
	self := newKP(t)
	store, _, _, sync := newHarness(t, self)
	sync.config.BlocksMaxSendSize = 1024 // 1 KiB cap, spec.md S4's "Configure blocks_max_send_size to 1 KiB"

	big := make([]byte, 50*1024) // 50 KiB entry, spec.md S4's "single block larger than the limit"
	for i := range big {
		big[i] = byte(i)
	}
	block := signedBlockWithData(t, 0, 0, 0, nil, 1, []*identity.KeyPair{self}, big)
	writeBlock(t, store, block)

	responses, err := sync.buildBlocksResponses(0, store.NextOffset())
	require.NoError(t, err)
	require.Len(t, responses, 1, "a single oversized block must still arrive in one response")
	require.Len(t, responses[0].Blocks, 1)
	require.Equal(t, transport.PayloadBlocks, responses[0].PayloadKind)

	got := responses[0].Blocks[0]
	require.Equal(t, block.Header, got.Header)
	require.Len(t, got.Operations, 1)

	decodedEntry, _, err := operation.DecodeFrame(got.Operations[0])
	require.NoError(t, err)
	require.Equal(t, operation.ID(1), decodedEntry.OperationID)
	entry, ok := decodedEntry.Payload.(operation.Entry)
	require.True(t, ok)
	require.Equal(t, big, entry.Data)
}

// Multiple small blocks still get split across responses once their
// combined size crosses BlocksMaxSendSize, contrasting with the oversized
// single-block case above.
func TestBuildBlocksResponsesSplitsManySmallBlocks(t *testing.T) {
	self := newKP(t)
	store, _, _, sync := newHarness(t, self)
	sync.config.BlocksMaxSendSize = 64

	b0 := signedBlock(t, 0, 0, 0, nil, 1, []*identity.KeyPair{self})
	writeBlock(t, store, b0)
	frame0, err := operation.FrameHeader(b0.Header)
	require.NoError(t, err)
	hash0, err := operation.HeaderHash(b0.Header)
	require.NoError(t, err)
	next0 := b0.Header.NextOffset(uint32(len(frame0)))

	b1 := signedBlock(t, next0, 1, b0.Header.Offset, hash0, 2, []*identity.KeyPair{self})
	writeBlock(t, store, b1)

	responses, err := sync.buildBlocksResponses(0, store.NextOffset())
	require.NoError(t, err)
	require.Greater(t, len(responses), 1, "small blocks exceeding the size cap together must split")
}
