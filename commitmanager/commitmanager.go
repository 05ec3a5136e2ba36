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

// Package commitmanager drives the block life-cycle (spec §4.4): signs or
// refuses proposals, commits the winning candidate once it gathers quorum,
// proposes new blocks over pending entries when none is underway, and
// cleans up operations once they're buried deep enough to never be
// resynchronized.
package commitmanager

import (
	"bytes"
	"sort"
	"time"

	"github.com/exocore/exocore/cell"
	"github.com/exocore/exocore/chainstore"
	"github.com/exocore/exocore/corelib/clock"
	"github.com/exocore/exocore/corelib/errs"
	"github.com/exocore/exocore/corelib/identity"
	"github.com/exocore/exocore/corelib/opid"
	"github.com/exocore/exocore/corelib/stagger"
	"github.com/exocore/exocore/event"
	"github.com/exocore/exocore/operation"
	"github.com/exocore/exocore/pendingstore"
	"github.com/exocore/exocore/pendingsync"
	"github.com/exocore/exocore/synccontext"
)

// Status is the derived status of a pending block, keyed by its proposal's
// group id (spec §3 "Pending block", §4.4).
type Status int

const (
	NextPotential Status = iota
	NextExpired
	NextRefused
	PastCommitted
	PastRefused
)

func (s Status) String() string {
	switch s {
	case NextPotential:
		return "next_potential"
	case NextExpired:
		return "next_expired"
	case NextRefused:
		return "next_refused"
	case PastCommitted:
		return "past_committed"
	case PastRefused:
		return "past_refused"
	default:
		return "unknown"
	}
}

// pendingBlock is one tick's in-memory view of a proposal and everything
// voting on it.
type pendingBlock struct {
	groupID   operation.ID
	proposer  identity.NodeId
	proposal  operation.ProposedBlock
	signers   map[identity.NodeId][]byte
	refusers  map[identity.NodeId]bool
	selfVoted bool // this node has already signed or refused
	status    Status
}

// Config tunes the commit manager (spec §6: commit_manager.*).
type Config struct {
	BlockProposalTimeout           time.Duration
	OperationsCleanupAfterBlockDepth uint64
	MaxOperationsPerBlock          int
	ProposalStaggerInterval        uint64 // milliseconds
}

// DefaultConfig mirrors typical single-digit-second tick cadences; cells
// are small and local-network, so these stay conservative rather than
// public-chain-scale.
var DefaultConfig = Config{
	BlockProposalTimeout:             30 * time.Second,
	OperationsCleanupAfterBlockDepth: 64,
	MaxOperationsPerBlock:            256,
	ProposalStaggerInterval:          2000,
}

func (c Config) fillDefaults() Config {
	if c.BlockProposalTimeout == 0 {
		c.BlockProposalTimeout = DefaultConfig.BlockProposalTimeout
	}
	if c.OperationsCleanupAfterBlockDepth == 0 {
		c.OperationsCleanupAfterBlockDepth = DefaultConfig.OperationsCleanupAfterBlockDepth
	}
	if c.MaxOperationsPerBlock == 0 {
		c.MaxOperationsPerBlock = DefaultConfig.MaxOperationsPerBlock
	}
	if c.ProposalStaggerInterval == 0 {
		c.ProposalStaggerInterval = DefaultConfig.ProposalStaggerInterval
	}
	return c
}

// Manager is the per-engine commit manager instance.
type Manager struct {
	pending *pendingstore.Store
	chain   *chainstore.Store
	cell    *cell.Cell
	keys    *identity.KeyPair
	clock   clock.Clock
	minter  *opid.Minter
	sync    *pendingsync.Synchronizer
	config  Config
	metrics *Metrics

	tipObservedAt time.Time
	lastTipOffset uint64

	// ignoreSeenAt records, for each PendingIgnore operation this manager
	// has noticed, the chain height at which it was first seen. cleanupStage
	// deletes the entry once at least one further block has committed past
	// that height (spec's "buried one block deep").
	ignoreSeenAt map[operation.ID]uint64
}

// New builds a Manager. sync is used only to push newly created
// sign/refuse/propose operations to peers immediately, the same path
// pendingsync.PushLocal uses for locally authored operations.
func New(pending *pendingstore.Store, chain *chainstore.Store, c *cell.Cell, keys *identity.KeyPair, clk clock.Clock, minter *opid.Minter, sync *pendingsync.Synchronizer, config Config, metrics *Metrics) *Manager {
	return &Manager{
		pending:      pending,
		chain:        chain,
		cell:         c,
		keys:         keys,
		clock:        clk,
		minter:       minter,
		sync:         sync,
		config:       config.fillDefaults(),
		metrics:      metrics,
		ignoreSeenAt: make(map[operation.ID]uint64),
	}
}

// Tick runs one commit-manager pass (spec §4.4 tick procedure).
func (m *Manager) Tick(ctx *synccontext.Context) error {
	tipOffset := m.chain.NextOffset()
	tipHash := m.chain.TipHash()
	previousOffset := m.tipBlockOffset()

	blocks := m.snapshot()
	m.classify(blocks, tipOffset)

	if err := m.signStage(ctx, blocks, tipOffset, previousOffset, tipHash); err != nil {
		return err
	}
	if err := m.commitStage(ctx, blocks); err != nil {
		return err
	}
	if err := m.proposeStage(ctx, blocks, tipOffset, previousOffset, tipHash); err != nil {
		return err
	}
	m.cleanupStage(tipOffset)
	return nil
}

func (m *Manager) tipHeight() (uint64, bool) {
	h, ok := m.chain.GetLastBlockInfo()
	if !ok {
		return 0, false
	}
	return h.Height, true
}

// tipBlockOffset returns the current tip block's own offset (the
// predecessor a new proposal must name as PreviousOffset), not the next
// free offset NextOffset reports (spec §3 "offset_{n+1} = offset_n + ...").
func (m *Manager) tipBlockOffset() uint64 {
	h, ok := m.chain.GetLastBlockInfo()
	if !ok {
		return 0
	}
	return h.Offset
}

// snapshot scans the pending store once, collecting every BlockPropose
// operation and the signatures/refusals sharing its group id (spec §4.4
// step 1).
func (m *Manager) snapshot() map[operation.ID]*pendingBlock {
	blocks := make(map[operation.ID]*pendingBlock)
	for _, st := range m.pending.All() {
		proposal, ok := st.Op.Payload.(operation.ProposedBlock)
		if !ok {
			continue
		}
		blocks[st.Op.OperationID] = &pendingBlock{
			groupID:  st.Op.OperationID,
			proposer: st.Op.NodeID,
			proposal: proposal,
			signers:  make(map[identity.NodeId][]byte),
			refusers: make(map[identity.NodeId]bool),
		}
	}
	for _, st := range m.pending.All() {
		pb, ok := blocks[st.Op.GroupID]
		if !ok {
			continue
		}
		switch payload := st.Op.Payload.(type) {
		case operation.BlockVote:
			pb.signers[st.Op.NodeID] = payload.HeaderSignature
			if st.Op.NodeID == m.keys.NodeId() {
				pb.selfVoted = true
			}
		case operation.BlockRefusal:
			pb.refusers[st.Op.NodeID] = true
			if st.Op.NodeID == m.keys.NodeId() {
				pb.selfVoted = true
			}
		}
	}
	return blocks
}

// classify derives each pendingBlock's Status against the current chain
// tip, following the rules named in spec §3 and §4.4.
func (m *Manager) classify(blocks map[operation.ID]*pendingBlock, tipOffset uint64) {
	for _, pb := range blocks {
		header := pb.proposal.Header

		if header.Offset < tipOffset {
			// Superseded before it could commit.
			if committed, ok := m.committedAt(header.Offset); ok && committed.ProposedOperationID == pb.groupID {
				pb.status = PastCommitted
			} else {
				pb.status = PastRefused
			}
			continue
		}
		if header.Offset == tipOffset {
			if committed, ok := m.committedAt(tipOffset); ok {
				if committed.ProposedOperationID == pb.groupID {
					pb.status = PastCommitted
				} else {
					pb.status = PastRefused
				}
				continue
			}
		}

		if len(m.signersWithRole(pb, cell.RoleChain)) >= m.cell.QuorumSize(cell.RoleChain) {
			// Quorum of signatures reached; eligible to commit, stays
			// NextPotential until commitStage actually writes it.
			pb.status = NextPotential
			continue
		}
		if len(m.refusersWithRole(pb, cell.RoleChain)) >= m.cell.QuorumSize(cell.RoleChain) {
			pb.status = NextRefused
			continue
		}

		issuedAt := opid.TimeOf(pb.groupID)
		if m.clock.Now().Sub(issuedAt) >= m.config.BlockProposalTimeout {
			pb.status = NextExpired
			continue
		}
		pb.status = NextPotential
	}
}

// signersWithRole returns the cell members holding role who signed pb's
// header with a signature that actually verifies against their public key
// (spec §8 property 2: quorum is counted over *valid* signatures, not mere
// vote submissions).
func (m *Manager) signersWithRole(pb *pendingBlock, role cell.Role) []identity.NodeId {
	headerHash, err := operation.HeaderSigningDigest(pb.proposal.Header)
	if err != nil {
		return nil
	}
	var out []identity.NodeId
	for nodeID, sig := range pb.signers {
		member, ok := m.cell.NodeByID(nodeID)
		if !ok || !member.HasRole(role) {
			continue
		}
		if !identity.Verify(member.Node.PublicKey, headerHash, sig) {
			continue
		}
		out = append(out, nodeID)
	}
	return out
}

func (m *Manager) refusersWithRole(pb *pendingBlock, role cell.Role) []identity.NodeId {
	var out []identity.NodeId
	for nodeID := range pb.refusers {
		if member, ok := m.cell.NodeByID(nodeID); ok && member.HasRole(role) {
			out = append(out, nodeID)
		}
	}
	return out
}

func (m *Manager) committedAt(offset uint64) (operation.BlockHeader, bool) {
	h, err := m.chain.GetBlockInfo(offset)
	if err != nil {
		return operation.BlockHeader{}, false
	}
	return h, true
}

// signStage validates every not-yet-voted NextPotential proposal and emits
// a BlockSign or BlockRefuse (spec §4.4 step 3).
func (m *Manager) signStage(ctx *synccontext.Context, blocks map[operation.ID]*pendingBlock, tipOffset, previousOffset uint64, tipHash []byte) error {
	for _, pb := range sortedByGroupID(blocks) {
		if pb.status != NextPotential || pb.selfVoted {
			continue
		}
		valid := m.validateProposal(pb, tipOffset, previousOffset, tipHash)

		var payload operation.Payload
		var headerSig []byte
		if valid {
			headerHash, err := operation.HeaderSigningDigest(pb.proposal.Header)
			if err != nil {
				return errs.Wrap(errs.Parse, err, "hash proposed header")
			}
			headerSig = m.keys.Sign(headerHash)
			payload = operation.BlockVote{HeaderSignature: headerSig}
		} else {
			payload = operation.BlockRefusal{Reason: "proposal failed validation"}
		}
		if err := m.issueVote(ctx, pb.groupID, payload, valid); err != nil {
			return err
		}
		// Record our own vote in this tick's snapshot so commitStage, which
		// runs next in the same tick, counts it toward quorum.
		pb.selfVoted = true
		if valid {
			pb.signers[m.keys.NodeId()] = headerSig
		}
	}
	return nil
}

func (m *Manager) validateProposal(pb *pendingBlock, tipOffset, previousOffset uint64, tipHash []byte) bool {
	h := pb.proposal.Header
	if h.Offset != tipOffset || h.PreviousOffset != previousOffset {
		return false
	}
	if !bytesEqual(h.PreviousHash, tipHash) {
		return false
	}
	for _, oh := range h.Operations {
		st, ok := m.pending.GetOperation(oh.OperationID)
		if !ok {
			return false
		}
		digest, err := operation.SigningDigest(st.Op)
		if err != nil || !bytesEqual(digest, oh.DataHash) {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool { return bytes.Equal(a, b) }

func (m *Manager) issueVote(ctx *synccontext.Context, groupID operation.ID, payload operation.Payload, valid bool) error {
	op := operation.Operation{
		OperationID: m.minter.Next(),
		GroupID:     groupID,
		NodeID:      m.keys.NodeId(),
		Payload:     payload,
	}
	digest, err := operation.SigningDigest(op)
	if err != nil {
		return errs.Wrap(errs.Parse, err, "digest vote")
	}
	op.Signature = m.keys.Sign(digest)

	m.pending.PutOperation(op)
	ctx.Emit(event.NewPendingOperationEvent(op.OperationID))
	if valid {
		m.metrics.incSignatures()
	} else {
		m.metrics.incRefusals()
	}
	if m.sync != nil {
		return m.sync.PushLocal(ctx, op)
	}
	return nil
}

// commitStage picks the best quorum-reached candidate among NextPotential
// blocks and writes it to the chain store (spec §4.4 step 4).
func (m *Manager) commitStage(ctx *synccontext.Context, blocks map[operation.ID]*pendingBlock) error {
	var candidates []*pendingBlock
	for _, pb := range blocks {
		if pb.status != NextPotential {
			continue
		}
		if len(m.signersWithRole(pb, cell.RoleChain)) >= m.cell.QuorumSize(cell.RoleChain) {
			candidates = append(candidates, pb)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	best := m.pickBest(candidates)
	return m.commitBlock(ctx, best)
}

// pickBest applies the tie-breaking order from spec §4.4 step 4: our own
// signature outranks not having it, then higher signature count, then
// lower group id (earlier proposal).
func (m *Manager) pickBest(candidates []*pendingBlock) *pendingBlock {
	self := m.keys.NodeId()
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		_, aSelf := a.signers[self]
		_, bSelf := b.signers[self]
		if aSelf != bSelf {
			return aSelf
		}
		if len(a.signers) != len(b.signers) {
			return len(a.signers) > len(b.signers)
		}
		return a.groupID < b.groupID
	})
	return candidates[0]
}

func (m *Manager) commitBlock(ctx *synccontext.Context, pb *pendingBlock) error {
	header := pb.proposal.Header

	var opsFrame []byte
	for _, oh := range header.Operations {
		st, ok := m.pending.GetOperation(oh.OperationID)
		if !ok {
			return errs.New(errs.Integrity, "committed proposal references unknown operation")
		}
		frame, err := operation.Frame(st.Op)
		if err != nil {
			return errs.Wrap(errs.Integrity, err, "frame committed operation")
		}
		opsFrame = append(opsFrame, frame...)
	}

	validSigners := m.signersWithRole(pb, cell.RoleChain)
	sigs := make([]operation.Signature, 0, len(validSigners))
	for _, nodeID := range validSigners {
		sigs = append(sigs, operation.Signature{NodeID: nodeID, Signature: pb.signers[nodeID]})
	}
	sort.Slice(sigs, func(i, j int) bool { return bytes.Compare(sigs[i].NodeID[:], sigs[j].NodeID[:]) < 0 })
	if len(sigs) > operation.MaxSignaturesPerBlock {
		sigs = sigs[:operation.MaxSignaturesPerBlock]
	}
	sigsFrame, err := operation.FrameSignatures(sigs)
	if err != nil {
		return errs.Wrap(errs.Integrity, err, "frame signatures")
	}

	header.OperationsSize = uint32(len(opsFrame))
	header.SignaturesSize = uint32(len(sigsFrame))

	if _, err := m.chain.WriteBlock(header, opsFrame, sigsFrame); err != nil {
		return errs.Wrap(errs.Fatal, err, "write committed block")
	}

	for _, oh := range header.Operations {
		m.pending.UpdateCommitStatus(oh.OperationID, pendingstore.CommitStatus{
			State:       pendingstore.Committed,
			BlockOffset: header.Offset,
			BlockHeight: header.Height,
		})
	}
	m.metrics.incBlocksCommitted()
	ctx.Emit(event.NewChainBlockEvent(header.Offset))
	return nil
}

// proposeStage assembles a new BlockPropose over pending entries when no
// NextPotential proposal exists yet at the expected offset and this node's
// stagger window allows it (spec §4.4 step 5). A node that is the cell's
// only chain-role member has nobody to stagger against and proposes at once.
func (m *Manager) proposeStage(ctx *synccontext.Context, blocks map[operation.ID]*pendingBlock, tipOffset, previousOffset uint64, tipHash []byte) error {
	for _, pb := range blocks {
		if pb.status == NextPotential && pb.proposal.Header.Offset == tipOffset {
			return nil
		}
	}

	entries := m.unproposedEntries(blocks)
	if len(entries) == 0 {
		return nil
	}

	elapsed := uint64(m.clock.Now().Sub(m.tipObservedAtFor(tipOffset)).Milliseconds())
	self := m.keys.NodeId()
	if len(m.cell.NodesWithRole(cell.RoleChain)) > 1 && !stagger.CanProposeNow(self[:], tipOffset, elapsed, m.config.ProposalStaggerInterval) {
		return nil
	}

	if len(entries) > m.config.MaxOperationsPerBlock {
		entries = entries[:m.config.MaxOperationsPerBlock]
	}

	ohs := make([]operation.OperationHeader, 0, len(entries))
	for _, st := range entries {
		digest, err := operation.SigningDigest(st.Op)
		if err != nil {
			return errs.Wrap(errs.Parse, err, "digest entry for proposal")
		}
		frame, err := operation.Frame(st.Op)
		if err != nil {
			return errs.Wrap(errs.Parse, err, "frame entry for proposal")
		}
		ohs = append(ohs, operation.OperationHeader{OperationID: st.Op.OperationID, DataHash: digest, Size: uint32(len(frame))})
	}

	tipHeight, haveTip := m.tipHeight()
	height := uint64(0)
	if haveTip {
		height = tipHeight + 1
	}

	header := operation.BlockHeader{
		Offset:         tipOffset,
		Height:         height,
		PreviousOffset: previousOffset,
		PreviousHash:   tipHash,
		Operations:     ohs,
	}

	groupID := m.minter.Next()
	header.ProposedOperationID = groupID
	proposal := operation.ProposedBlock{Header: header}
	for _, oh := range ohs {
		proposal.OperationIDs = append(proposal.OperationIDs, oh.OperationID)
	}

	op := operation.Operation{
		OperationID: groupID,
		GroupID:     groupID,
		NodeID:      m.keys.NodeId(),
		Payload:     proposal,
	}
	digest, err := operation.SigningDigest(op)
	if err != nil {
		return errs.Wrap(errs.Parse, err, "digest proposal")
	}
	op.Signature = m.keys.Sign(digest)

	m.pending.PutOperation(op)
	ctx.Emit(event.NewPendingOperationEvent(op.OperationID))
	m.metrics.incBlocksProposed()
	if m.sync != nil {
		return m.sync.PushLocal(ctx, op)
	}
	return nil
}

func (m *Manager) tipObservedAtFor(tipOffset uint64) time.Time {
	if tipOffset != m.lastTipOffset || m.tipObservedAt.IsZero() {
		m.lastTipOffset = tipOffset
		m.tipObservedAt = m.clock.Now()
	}
	return m.tipObservedAt
}

// unproposedEntries returns every Pending-status entry operation not
// already covered by a tracked, still-live proposal.
func (m *Manager) unproposedEntries(blocks map[operation.ID]*pendingBlock) []pendingstore.Stored {
	covered := make(map[operation.ID]bool)
	for _, pb := range blocks {
		if pb.status == PastCommitted || pb.status == PastRefused || pb.status == NextRefused {
			continue
		}
		for _, id := range pb.proposal.OperationIDs {
			covered[id] = true
		}
	}

	var out []pendingstore.Stored
	for _, st := range m.pending.All() {
		if _, ok := st.Op.Payload.(operation.Entry); !ok {
			continue
		}
		if st.Status.State != pendingstore.Pending {
			continue
		}
		if covered[st.Op.OperationID] {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Op.OperationID < out[j].Op.OperationID })
	return out
}

// cleanupStage deletes operations buried deep enough behind the tip to
// never need resynchronization (spec §4.4 step 6). Depth is measured in
// block heights, not byte offsets: a block's operations_size varies, so
// comparing offsets would bury operations after however many bytes happen
// to follow rather than after the configured number of blocks.
func (m *Manager) cleanupStage(tipOffset uint64) {
	tipHeight, ok := m.tipHeight()
	if !ok {
		return
	}

	var toDelete []operation.ID
	for _, st := range m.pending.All() {
		if st.Status.State == pendingstore.Committed &&
			depthOf(tipHeight, st.Status.BlockHeight) >= m.config.OperationsCleanupAfterBlockDepth {
			toDelete = append(toDelete, st.Op.OperationID)
		}
	}
	toDelete = append(toDelete, m.cleanupPendingIgnores()...)

	blocks := m.snapshot()
	m.classify(blocks, tipOffset)
	for _, pb := range blocks {
		if pb.status != PastCommitted && pb.status != PastRefused {
			continue
		}
		if depthOf(tipHeight, pb.proposal.Header.Height) < m.config.OperationsCleanupAfterBlockDepth {
			continue
		}
		toDelete = append(toDelete, pb.groupID)
		for signer := range pb.signers {
			if ids := m.groupOpIDsFor(pb.groupID, signer, true); len(ids) > 0 {
				toDelete = append(toDelete, ids...)
			}
		}
		for refuser := range pb.refusers {
			if ids := m.groupOpIDsFor(pb.groupID, refuser, false); len(ids) > 0 {
				toDelete = append(toDelete, ids...)
			}
		}
	}

	if len(toDelete) == 0 {
		return
	}
	m.pending.DeleteOperations(toDelete)
	m.metrics.addOperationsCleaned(len(toDelete))
}

// cleanupPendingIgnores is terminal housekeeping for PendingIgnore
// operations: unlike ordinary entries they never commit into a block, so
// they cannot ride the Committed-status cleanup path above. Each is
// deleted one block after this manager first notices it; until then the
// pending synchronizer exchanges it like any other operation.
func (m *Manager) cleanupPendingIgnores() []operation.ID {
	height, ok := m.tipHeight()
	if !ok {
		return nil
	}

	seenNow := make(map[operation.ID]bool)
	var toDelete []operation.ID
	for _, st := range m.pending.All() {
		if _, ok := st.Op.Payload.(operation.PendingIgnore); !ok {
			continue
		}
		seenNow[st.Op.OperationID] = true

		firstSeenHeight, tracked := m.ignoreSeenAt[st.Op.OperationID]
		if !tracked {
			m.ignoreSeenAt[st.Op.OperationID] = height
			continue
		}
		if height > firstSeenHeight {
			toDelete = append(toDelete, st.Op.OperationID)
		}
	}
	for id := range m.ignoreSeenAt {
		if !seenNow[id] {
			delete(m.ignoreSeenAt, id)
		}
	}
	for _, id := range toDelete {
		delete(m.ignoreSeenAt, id)
	}
	return toDelete
}

func (m *Manager) groupOpIDsFor(groupID operation.ID, nodeID identity.NodeId, signer bool) []operation.ID {
	group, ok := m.pending.GetGroupOperations(groupID)
	if !ok {
		return nil
	}
	var out []operation.ID
	for _, st := range group {
		if st.Op.NodeID != nodeID {
			continue
		}
		switch st.Op.Payload.(type) {
		case operation.BlockVote:
			if signer {
				out = append(out, st.Op.OperationID)
			}
		case operation.BlockRefusal:
			if !signer {
				out = append(out, st.Op.OperationID)
			}
		}
	}
	return out
}

// depthOf returns how many blocks behind tipHeight blockHeight sits
// (spec §4.4 step 6, §8 invariant 4: "operations_cleanup_after_block_depth"
// is a block-height depth, not a byte-offset one).
func depthOf(tipHeight, blockHeight uint64) uint64 {
	if tipHeight < blockHeight {
		return 0
	}
	return tipHeight - blockHeight
}

func sortedByGroupID(blocks map[operation.ID]*pendingBlock) []*pendingBlock {
	out := make([]*pendingBlock, 0, len(blocks))
	for _, pb := range blocks {
		out = append(out, pb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].groupID < out[j].groupID })
	return out
}
