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

// Package chainsync keeps the local chain in agreement with a majority of
// chain-role peers (spec §4.5): it samples and compares block metadata to
// find a common ancestor, selects a leader to catch up to, streams blocks
// from it, and recovers from divergence by truncating and replacing the
// local suffix that conflicts with the leader's chain.
package chainsync

import (
	"bytes"
	"time"

	"github.com/exocore/exocore/cell"
	"github.com/exocore/exocore/chainstore"
	"github.com/exocore/exocore/corelib/clock"
	"github.com/exocore/exocore/corelib/errs"
	"github.com/exocore/exocore/corelib/identity"
	"github.com/exocore/exocore/event"
	"github.com/exocore/exocore/operation"
	"github.com/exocore/exocore/synccontext"
	"github.com/exocore/exocore/transport"
)

// Status is the synchronizer's overall state (spec §4.5).
type Status int

const (
	Unknown Status = iota
	Downloading
	Synchronized
)

func (s Status) String() string {
	switch s {
	case Downloading:
		return "downloading"
	case Synchronized:
		return "synchronized"
	default:
		return "unknown"
	}
}

// PeerStatus is the derived per-peer comparison result.
type PeerStatus int

const (
	PeerUnknown PeerStatus = iota
	PeerSynchronized
	PeerDiverged
)

func (s PeerStatus) String() string {
	switch s {
	case PeerSynchronized:
		return "synchronized"
	case PeerDiverged:
		return "diverged"
	default:
		return "unknown"
	}
}

// peerState is what the synchronizer remembers about one chain-role peer
// (spec §4.5: "last_common_block, last_common_is_known, last_known_block,
// request_tracker, and the derived per-peer status").
type peerState struct {
	status PeerStatus

	lastCommonBlock transport.BlockMetadata
	lastCommonKnown bool

	lastKnownBlock transport.BlockMetadata
	lastKnownKnown bool

	lastMetadataAt time.Time
	metadataSeen   bool

	tracker *RequestTracker
}

// downloadTarget tracks an in-flight blocks-sync request.
type downloadTarget struct {
	leader     identity.NodeId
	fromOffset uint64
	toOffset   uint64
}

// Synchronizer is the per-engine chain synchronizer instance.
type Synchronizer struct {
	store *chainstore.Store
	cell  *cell.Cell
	self  identity.NodeId
	clock clock.Clock

	config  Config
	metrics *Metrics

	peers    map[identity.NodeId]*peerState
	status   Status
	leader   identity.NodeId
	haveLead bool
	download *downloadTarget
}

func New(store *chainstore.Store, c *cell.Cell, self identity.NodeId, clk clock.Clock, config Config, metrics *Metrics) *Synchronizer {
	return &Synchronizer{
		store:   store,
		cell:    c,
		self:    self,
		clock:   clk,
		config:  config.fillDefaults(),
		metrics: metrics,
		peers:   make(map[identity.NodeId]*peerState),
	}
}

// Status reports the synchronizer's current overall status. Commit-manager
// and pending-sync activity is gated on this being Synchronized (spec
// §4.5 "Chain synchronization is a precondition...", §4.6).
func (s *Synchronizer) Status() Status { return s.status }

func (s *Synchronizer) peerStateFor(id identity.NodeId) *peerState {
	ps, ok := s.peers[id]
	if !ok {
		ps = &peerState{tracker: NewRequestTracker(s.clock, s.config.MetadataRequestMinInterval, s.config.MetadataRequestMaxInterval)}
		s.peers[id] = ps
	}
	return ps
}

// Tick runs one chain-sync pass (spec §4.5 tick procedure): request fresh
// metadata from peers whose tracker allows it, then re-derive leader
// selection and download state from whatever peer state is already known.
func (s *Synchronizer) Tick(ctx *synccontext.Context) error {
	if err := s.requestMetadata(ctx); err != nil {
		return err
	}
	return s.evaluate(ctx)
}

// requestMetadata sends a metadata sync request to every chain-role peer
// whose tracker allows a new request (spec §4.5 step 1).
func (s *Synchronizer) requestMetadata(ctx *synccontext.Context) error {
	tip := s.store.NextOffset()
	sample, err := SampleRange(s.store, 0, tip, s.config)
	if err != nil {
		return errs.Wrap(errs.Integrity, err, "sample local chain for metadata request")
	}

	for _, peer := range s.cell.NodesWithRole(cell.RoleChain) {
		if peer.Node.ID == s.self {
			continue
		}
		ps := s.peerStateFor(peer.Node.ID)
		if !ps.tracker.Allowed() {
			continue
		}
		req := transport.ChainSyncRequest{
			FromOffset:      0,
			ToOffset:        tip,
			RequestedDetail: transport.RequestMetadata,
			MetadataSample:  sample,
		}
		frame, err := transport.EncodeFrame(req)
		if err != nil {
			return errs.Wrap(errs.Parse, err, "encode chain sync metadata request")
		}
		ctx.Send(transport.Outbound{Message: &transport.Message{
			Service:      transport.ServiceChainSync,
			Payload:      frame,
			ConnectionID: peer.Node.ID.String(),
		}})
	}
	return nil
}

// HandleRequest answers an incoming ChainSyncRequest, replying directly on
// ctx rather than returning a value: a blocks request may need several
// responses bounded by blocks_max_send_size (spec §4.5 step 5).
func (s *Synchronizer) HandleRequest(ctx *synccontext.Context, connectionID, rendezvousID string, req transport.ChainSyncRequest) error {
	switch req.RequestedDetail {
	case transport.RequestMetadata:
		sample, err := SampleRange(s.store, req.FromOffset, req.ToOffset, s.config)
		if err != nil {
			return errs.Wrap(errs.Integrity, err, "sample local chain for metadata response")
		}
		return s.sendResponse(ctx, connectionID, rendezvousID, transport.ChainSyncResponse{
			FromOffset:  req.FromOffset,
			ToOffset:    req.ToOffset,
			PayloadKind: transport.PayloadMetadata,
			Metadata:    sample,
		})
	case transport.RequestBlocks:
		responses, err := s.buildBlocksResponses(req.FromOffset, req.ToOffset)
		if err != nil {
			return errs.Wrap(errs.Integrity, err, "collect blocks for sync response")
		}
		for _, resp := range responses {
			if err := s.sendResponse(ctx, connectionID, rendezvousID, resp); err != nil {
				return err
			}
		}
		return nil
	default:
		return errs.New(errs.Parse, "unknown chain sync request detail")
	}
}

func (s *Synchronizer) sendResponse(ctx *synccontext.Context, connectionID, rendezvousID string, resp transport.ChainSyncResponse) error {
	frame, err := transport.EncodeFrame(resp)
	if err != nil {
		return errs.Wrap(errs.Parse, err, "encode chain sync response")
	}
	ctx.Send(transport.Outbound{Message: &transport.Message{
		Service:      transport.ServiceChainSync,
		Payload:      frame,
		ConnectionID: connectionID,
		RendezvousID: rendezvousID,
	}})
	return nil
}

// buildBlocksResponses collects blocks in [from, to) into one or more
// responses, each bounded by blocks_max_send_size; a single block larger
// than the limit is still sent alone (spec §4.5 step 5).
func (s *Synchronizer) buildBlocksResponses(from, to uint64) ([]transport.ChainSyncResponse, error) {
	it := s.store.BlocksIter(from)
	var responses []transport.ChainSyncResponse
	var cur []operation.Block
	var curSize uint64
	curFrom := from

	flush := func(end uint64) {
		if len(cur) == 0 {
			return
		}
		responses = append(responses, transport.ChainSyncResponse{
			FromOffset:  curFrom,
			ToOffset:    end,
			PayloadKind: transport.PayloadBlocks,
			Blocks:      cur,
		})
		cur = nil
		curSize = 0
	}

	for {
		b, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok || b.Header.Offset >= to {
			break
		}
		size := blockByteSize(*b)
		if curSize > 0 && curSize+size > s.config.BlocksMaxSendSize {
			flush(b.Header.Offset)
			curFrom = b.Header.Offset
		}
		cur = append(cur, *b)
		curSize += size
	}
	flush(to)
	return responses, nil
}

func blockByteSize(b operation.Block) uint64 {
	n := uint64(b.Header.SignaturesSize)
	for _, frame := range b.Operations {
		n += uint64(len(frame))
	}
	return n
}

// HandleResponse processes an incoming ChainSyncResponse from peer.
func (s *Synchronizer) HandleResponse(ctx *synccontext.Context, peer identity.NodeId, resp transport.ChainSyncResponse) error {
	switch resp.PayloadKind {
	case transport.PayloadMetadata:
		return s.handleMetadataResponse(ctx, peer, resp)
	case transport.PayloadBlocks:
		return s.handleBlocksResponse(ctx, peer, resp)
	default:
		return errs.New(errs.Parse, "unknown chain sync response payload kind")
	}
}

func (s *Synchronizer) handleMetadataResponse(ctx *synccontext.Context, peer identity.NodeId, resp transport.ChainSyncResponse) error {
	ps := s.peerStateFor(peer)

	local, err := SampleRange(s.store, resp.FromOffset, resp.ToOffset, s.config)
	if err != nil {
		return errs.Wrap(errs.Integrity, err, "sample local chain to compare metadata response")
	}

	cmp := compareSamples(local, resp.Metadata)
	changed := cmp.commonFound != ps.lastCommonKnown ||
		(cmp.commonFound && cmp.commonOffset != ps.lastCommonBlock.Offset)

	if cmp.diverged {
		ps.status = PeerDiverged
		ps.lastCommonKnown = false
	} else {
		if cmp.commonFound {
			ps.lastCommonBlock = transport.BlockMetadata{Offset: cmp.commonOffset, Hash: cmp.commonHash}
			ps.lastCommonKnown = true
		}
		ps.status = PeerUnknown // only a completed blocks download marks a peer PeerSynchronized
	}
	// A diverged peer's tip is still recorded: evaluate() groups peers by
	// reported tip, and a quorum of diverged peers can outvote our chain.
	if tip, ok := remoteTip(resp.Metadata); ok {
		ps.lastKnownBlock = tip
		ps.lastKnownKnown = true
	}
	ps.lastMetadataAt = s.clock.Now()
	ps.metadataSeen = true

	if changed {
		ps.tracker.RecordChange()
	} else {
		ps.tracker.RecordNoChange()
	}

	return s.evaluate(ctx)
}

func (s *Synchronizer) handleBlocksResponse(ctx *synccontext.Context, peer identity.NodeId, resp transport.ChainSyncResponse) error {
	if s.download == nil || s.download.leader != peer {
		// Stale or unsolicited response; ignore rather than fail the tick.
		return nil
	}

	for _, b := range resp.Blocks {
		if !s.validateBlockSignatures(b) {
			return errs.New(errs.Integrity, "synced block failed signature quorum")
		}
		var opsFrame bytes.Buffer
		for _, frame := range b.Operations {
			opsFrame.Write(frame)
		}
		sigsFrame, err := operation.FrameSignatures(b.Signatures)
		if err != nil {
			return errs.Wrap(errs.Integrity, err, "encode synced block signatures")
		}
		if _, err := s.store.WriteBlock(b.Header, opsFrame.Bytes(), sigsFrame); err != nil {
			return errs.Wrap(errs.Fatal, err, "append synced block")
		}
		s.metrics.addBlocksDownloaded(1)
		s.metrics.addBytesDownloaded(opsFrame.Len() + len(sigsFrame))
		ctx.Emit(event.NewChainBlockEvent(b.Header.Offset))
	}

	if s.store.NextOffset() >= s.download.toOffset {
		ps := s.peerStateFor(peer)
		ps.status = PeerSynchronized
		ps.lastCommonBlock = ps.lastKnownBlock
		ps.lastCommonKnown = ps.lastKnownKnown
		s.download = nil
	}
	return s.evaluate(ctx)
}

// validateBlockSignatures checks a synced block reaches chain-role quorum
// on valid signatures over its own header hash (spec §4.5 step 6).
func (s *Synchronizer) validateBlockSignatures(b operation.Block) bool {
	headerHash, err := operation.HeaderSigningDigest(b.Header)
	if err != nil {
		return false
	}
	seen := make(map[identity.NodeId]bool, len(b.Signatures))
	count := 0
	for _, sig := range b.Signatures {
		if seen[sig.NodeID] {
			continue
		}
		member, ok := s.cell.NodeByID(sig.NodeID)
		if !ok || !member.HasRole(cell.RoleChain) {
			continue
		}
		if !identity.Verify(member.Node.PublicKey, headerHash, sig.Signature) {
			continue
		}
		seen[sig.NodeID] = true
		count++
	}
	return s.cell.HasQuorum(cell.RoleChain, count)
}

// tipKey identifies a reported chain tip by offset and hash, the unit peers
// are grouped by when looking for a quorum-backed view to adopt.
type tipKey struct {
	offset uint64
	hash   string
}

func tipKeyOf(bm transport.BlockMetadata) tipKey {
	return tipKey{offset: bm.Offset, hash: string(bm.Hash)}
}

// tipGroup is every contacted peer currently reporting the same tip.
type tipGroup struct {
	key     tipKey
	members []identity.NodeId
}

// groupTaller breaks size ties between two candidate groups by preferring
// the taller (then lexicographically smaller hash, for determinism).
func groupTaller(a, b tipKey) bool {
	if a.offset != b.offset {
		return a.offset > b.offset
	}
	return a.hash < b.hash
}

// evaluate re-derives overall status and, if needed, kicks off a blocks
// download, from whatever peer state is currently known (spec §4.5 steps 4,
// 5, 7, 8). It is called after every metadata or blocks response, and once
// per tick, since responses arrive asynchronously with respect to the tick
// that requested them.
//
// Divergence detection (compareSamples) is relative to our own chain, so a
// peer whose entire history conflicts with ours is never "Diverged" from
// itself or from another peer reporting the same tip. Recovery therefore
// doesn't hinge on any single peer's status: we group contacted peers by
// the tip they report, and adopt whichever tip a chain-role quorum agrees
// on, even when that tip conflicts with our own (spec §4.5 step 8, "reports
// a consistent view"). A lone diverged peer can't outvote us; a
// quorum-backed one can.
func (s *Synchronizer) evaluate(ctx *synccontext.Context) error {
	chainPeers := s.cell.NodesWithRole(cell.RoleChain)
	var others []cell.CellNode
	for _, peer := range chainPeers {
		if peer.Node.ID != s.self {
			others = append(others, peer)
		}
	}

	if len(others) == 0 {
		// Single-member cell: trivially synchronized with itself.
		s.status = Synchronized
		s.leader, s.haveLead = s.self, true
		return nil
	}

	now := s.clock.Now()
	divergedCount := 0
	matching := 1 // self always matches its own tip

	var groups []*tipGroup
	byKey := make(map[tipKey]*tipGroup)
	for _, peer := range others {
		ps, ok := s.peers[peer.Node.ID]
		if !ok || !ps.metadataSeen {
			continue
		}
		if ps.status == PeerDiverged {
			divergedCount++
		}
		if ps.status == PeerSynchronized {
			matching++
		}
		if !ps.lastKnownKnown || now.Sub(ps.lastMetadataAt) > s.config.LeaderMetadataMaxAge {
			continue
		}
		k := tipKeyOf(ps.lastKnownBlock)
		g, ok := byKey[k]
		if !ok {
			g = &tipGroup{key: k}
			byKey[k] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, peer.Node.ID)
	}
	s.metrics.setPeersDiverged(divergedCount)
	s.metrics.setPeersSynchronized(matching - 1)

	localKnown := false
	var localKey tipKey
	if last, ok := s.store.GetLastBlockInfo(); ok {
		hash, err := operation.HeaderHash(last)
		if err != nil {
			return errs.Wrap(errs.Integrity, err, "hash local tip header")
		}
		localKey = tipKey{offset: last.Offset, hash: string(hash)}
		localKnown = true
	}

	quorumNeeded := s.cell.QuorumSize(cell.RoleChain)

	var best *tipGroup
	bestSize := 0
	for _, g := range groups {
		size := len(g.members)
		if localKnown && g.key == localKey {
			size++
		}
		if best == nil || size > bestSize || (size == bestSize && groupTaller(g.key, best.key)) {
			best, bestSize = g, size
		}
	}

	if best == nil || bestSize < quorumNeeded {
		s.status = Unknown
		s.haveLead = false
		s.download = nil
		return nil
	}

	if localKnown && best.key == localKey {
		// Our own tip is already part of the quorum-backed view.
		s.status = Synchronized
		s.leader, s.haveLead = s.self, true
		s.download = nil
		return nil
	}

	leader := best.members[0]
	s.leader, s.haveLead = leader, true
	return s.followLeader(ctx, leader)
}

// followLeader decides whether to (re)start a blocks download toward
// leader, and whether the local suffix beyond the common ancestor must be
// truncated first because it conflicts with the leader's chain (spec §4.5
// steps 5, 7).
func (s *Synchronizer) followLeader(ctx *synccontext.Context, leader identity.NodeId) error {
	ps := s.peerStateFor(leader)
	tip := s.store.NextOffset()

	var fromOffset uint64
	if ps.lastCommonKnown {
		next, err := s.blockNextOffset(ps.lastCommonBlock.Offset)
		if err != nil {
			return err
		}
		fromOffset = next
	}

	if fromOffset < tip {
		// The local suffix beyond the common ancestor is not confirmed
		// consistent with the leader we're about to follow; drop it.
		if err := s.store.TruncateFrom(fromOffset); err != nil {
			return errs.Wrap(errs.Fatal, err, "truncate diverged suffix")
		}
		ctx.Emit(event.NewChainDivergedEvent(fromOffset))
		s.metrics.incDivergences()
		tip = fromOffset
		s.download = nil
	}

	if !ps.lastKnownKnown || ps.lastKnownBlock.Offset < tip {
		// Leader isn't actually ahead; evaluate() already confirmed quorum
		// backs a tip we're at least as tall as.
		s.status = Synchronized
		s.download = nil
		return nil
	}

	// The leader's reported tip is almost certainly not a block we hold
	// locally (that's the whole point of downloading it), so its next-offset
	// boundary must come from the wire-reported metadata fields rather than
	// a local store lookup.
	toOffset := metadataNextOffset(ps.lastKnownBlock)
	if toOffset <= tip {
		// Leader's tip is not (or no longer) ahead of ours.
		s.status = Synchronized
		s.download = nil
		return nil
	}
	if toOffset-tip <= s.config.LeaderTooFarThreshold {
		// Strictly ahead, but within the small leeway spec §4.5 step 5
		// allows without triggering a download.
		s.status = Synchronized
		return nil
	}

	if s.download != nil && s.download.leader == leader && s.download.fromOffset == tip && s.download.toOffset == toOffset {
		s.status = Downloading
		return nil
	}

	s.download = &downloadTarget{leader: leader, fromOffset: tip, toOffset: toOffset}
	s.status = Downloading

	req := transport.ChainSyncRequest{FromOffset: tip, ToOffset: toOffset, RequestedDetail: transport.RequestBlocks}
	frame, err := transport.EncodeFrame(req)
	if err != nil {
		return errs.Wrap(errs.Parse, err, "encode chain sync blocks request")
	}
	ctx.Send(transport.Outbound{Message: &transport.Message{
		Service:      transport.ServiceChainSync,
		Payload:      frame,
		ConnectionID: leader.String(),
	}})
	return nil
}

// metadataNextOffset is BlockHeader.NextOffset computed from a wire
// BlockMetadata sample instead of a locally-held header: BlockSize there
// already holds the encoded header frame's length (see headerToMetadata).
func metadataNextOffset(bm transport.BlockMetadata) uint64 {
	return bm.Offset + uint64(bm.BlockSize) + uint64(bm.OperationsSize) + uint64(bm.SignaturesSize)
}

// blockNextOffset returns the offset immediately following the block at
// offset, the boundary truncate_from/a blocks request operate on.
func (s *Synchronizer) blockNextOffset(offset uint64) (uint64, error) {
	h, err := s.store.GetBlockInfo(offset)
	if err != nil {
		return 0, errs.Wrap(errs.Integrity, err, "look up common block header")
	}
	frame, err := operation.FrameHeader(h)
	if err != nil {
		return 0, errs.Wrap(errs.Integrity, err, "frame common block header")
	}
	return h.NextOffset(uint32(len(frame))), nil
}
