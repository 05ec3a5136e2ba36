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
	"sync"
	"sync/atomic"

	"github.com/exocore/exocore/chainstore"
	"github.com/exocore/exocore/chainsync"
	"github.com/exocore/exocore/corelib/errs"
	"github.com/exocore/exocore/event"
	"github.com/exocore/exocore/operation"
	"github.com/exocore/exocore/pendingstore"
	"github.com/exocore/exocore/synccontext"
)

// Handle is a refcounted reference onto a running Engine (spec §6): every
// caller outside the engine core, including the one that called Start,
// reaches the engine only through a Handle. The last Close tears the
// engine down.
type Handle struct {
	eng       *Engine
	closeOnce sync.Once
	closeErr  error
}

// newHandle takes one strong reference and returns a Handle over it.
func (e *Engine) newHandle() *Handle {
	atomic.AddInt32(&e.refCount, 1)
	return &Handle{eng: e}
}

// Clone takes an additional strong reference onto the same engine; the
// returned Handle must be Closed independently of h.
func (h *Handle) Clone() *Handle {
	atomic.AddInt32(&h.eng.refCount, 1)
	return &Handle{eng: h.eng}
}

// Close releases h's reference. Once every outstanding Handle has been
// closed, the engine stops its run loop and releases its chain store.
// Close is idempotent; only the first call on a given Handle counts.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		if atomic.AddInt32(&h.eng.refCount, -1) == 0 {
			h.closeErr = h.eng.shutdown()
		}
	})
	return h.closeErr
}

func (h *Handle) gone() bool {
	select {
	case <-h.eng.stopCh:
		return true
	default:
		return false
	}
}

// OnStarted returns a channel closed once the engine's first management
// tick has completed (spec §6): handle callers that need an initialized
// chain should wait on it, or tolerate ErrUninitializedChain until then.
func (h *Handle) OnStarted() <-chan struct{} {
	return h.eng.startedCh
}

// Subscribe opens a new event stream (spec §5). The subscription must be
// closed by the caller; it is also closed automatically on engine shutdown.
func (h *Handle) Subscribe() *Subscription {
	return h.eng.broadcaster.subscribe(h.eng.config.EventBufferSize)
}

// TipOffset returns the chain store's next-write offset.
func (h *Handle) TipOffset() (uint64, error) {
	if h.gone() {
		return 0, errs.ErrInnerGone
	}
	h.eng.mu.RLock()
	defer h.eng.mu.RUnlock()
	return h.eng.chain.NextOffset(), nil
}

// LastBlock returns the header of the chain's current tip. It returns
// ErrUninitializedChain only in the window before genesis is written,
// which Open closes before returning, so in practice this never fires;
// it is kept for callers that race a handle against engine startup.
func (h *Handle) LastBlock() (operation.BlockHeader, error) {
	if h.gone() {
		return operation.BlockHeader{}, errs.ErrInnerGone
	}
	h.eng.mu.RLock()
	defer h.eng.mu.RUnlock()
	hdr, ok := h.eng.chain.GetLastBlockInfo()
	if !ok {
		return operation.BlockHeader{}, errs.ErrUninitializedChain
	}
	return hdr, nil
}

// GetBlock returns the block starting at offset.
func (h *Handle) GetBlock(offset uint64) (*operation.Block, error) {
	if h.gone() {
		return nil, errs.ErrInnerGone
	}
	h.eng.mu.RLock()
	defer h.eng.mu.RUnlock()
	return h.eng.chain.GetBlock(offset)
}

// GetBlockInfo returns just the header at offset (spec §6
// get_chain_block_info).
func (h *Handle) GetBlockInfo(offset uint64) (operation.BlockHeader, error) {
	if h.gone() {
		return operation.BlockHeader{}, errs.ErrInnerGone
	}
	h.eng.mu.RLock()
	defer h.eng.mu.RUnlock()
	return h.eng.chain.GetBlockInfo(offset)
}

// operationInBlock scans a decoded block's operation frames for id,
// shared by GetChainOperation and GetOperation's chain-index fallback.
func operationInBlock(block *operation.Block, id operation.ID) (operation.Operation, error) {
	for _, frame := range block.Operations {
		op, _, err := operation.DecodeFrame(frame)
		if err != nil {
			return operation.Operation{}, errs.Wrap(errs.Integrity, err, "decode block operation frame")
		}
		if op.OperationID == id {
			return op, nil
		}
	}
	return operation.Operation{}, errs.New(errs.NotFound, "operation not found in block")
}

// GetChainOperation returns one operation out of the committed block at
// blockOffset (spec §6 get_chain_operation).
func (h *Handle) GetChainOperation(blockOffset uint64, id operation.ID) (operation.Operation, error) {
	if h.gone() {
		return operation.Operation{}, errs.ErrInnerGone
	}
	h.eng.mu.RLock()
	block, err := h.eng.chain.GetBlock(blockOffset)
	h.eng.mu.RUnlock()
	if err != nil {
		return operation.Operation{}, err
	}
	return operationInBlock(block, id)
}

// ChainOperation pairs a decoded operation with the offset of the committed
// block it came from, the unit ChainOperationIterator yields.
type ChainOperation struct {
	BlockOffset uint64
	Op          operation.Operation
}

// ChainOperationIterator lazily decodes operations out of committed blocks
// in ascending offset order (spec §6 get_chain_operations: "iterator").
type ChainOperationIterator struct {
	blocks *chainstore.BlockIterator
	cur    *operation.Block
	curOff uint64
	idx    int
}

// Next returns the next chain operation at or after the iterator's start,
// or ok=false once every committed block has been walked.
func (it *ChainOperationIterator) Next() (co ChainOperation, ok bool, err error) {
	for {
		if it.cur == nil || it.idx >= len(it.cur.Operations) {
			b, hasMore, err := it.blocks.Next()
			if err != nil {
				return ChainOperation{}, false, err
			}
			if !hasMore {
				return ChainOperation{}, false, nil
			}
			it.cur = b
			it.curOff = b.Header.Offset
			it.idx = 0
			continue
		}
		frame := it.cur.Operations[it.idx]
		it.idx++
		op, _, err := operation.DecodeFrame(frame)
		if err != nil {
			return ChainOperation{}, false, errs.Wrap(errs.Integrity, err, "decode chain operation frame")
		}
		return ChainOperation{BlockOffset: it.curOff, Op: op}, true, nil
	}
}

// GetChainOperations returns a lazy iterator over every operation committed
// at or after fromOffset (spec §6 get_chain_operations).
func (h *Handle) GetChainOperations(fromOffset uint64) (*ChainOperationIterator, error) {
	if h.gone() {
		return nil, errs.ErrInnerGone
	}
	h.eng.mu.RLock()
	defer h.eng.mu.RUnlock()
	return &ChainOperationIterator{blocks: h.eng.chain.BlocksIter(fromOffset)}, nil
}

// GetPendingOperation returns a pending-store operation and its commit
// status (spec §6 get_pending_operation).
func (h *Handle) GetPendingOperation(id operation.ID) (pendingstore.Stored, error) {
	if h.gone() {
		return pendingstore.Stored{}, errs.ErrInnerGone
	}
	h.eng.mu.RLock()
	defer h.eng.mu.RUnlock()
	st, ok := h.eng.pending.GetOperation(id)
	if !ok {
		return pendingstore.Stored{}, errs.New(errs.NotFound, "operation not in pending store")
	}
	return st, nil
}

// GetPendingOperations returns every pending-store operation with id in
// [from, to) (spec §6 get_pending_operations).
func (h *Handle) GetPendingOperations(from, to operation.ID) ([]pendingstore.Stored, error) {
	if h.gone() {
		return nil, errs.ErrInnerGone
	}
	h.eng.mu.RLock()
	defer h.eng.mu.RUnlock()
	return h.eng.pending.OperationsIter(from, to), nil
}

// GetOperation looks an operation up by id, checking the pending store
// first and falling back to the chain's operation-id index (spec §6
// get_operation).
func (h *Handle) GetOperation(id operation.ID) (operation.Operation, error) {
	if h.gone() {
		return operation.Operation{}, errs.ErrInnerGone
	}
	h.eng.mu.RLock()
	defer h.eng.mu.RUnlock()
	if st, ok := h.eng.pending.GetOperation(id); ok {
		return st.Op, nil
	}
	block, ok, err := h.eng.chain.GetBlockByOperationID(id)
	if err != nil {
		return operation.Operation{}, err
	}
	if !ok {
		return operation.Operation{}, errs.New(errs.NotFound, "operation not found")
	}
	return operationInBlock(block, id)
}

// IsSynchronized reports whether the chain synchronizer currently
// considers the local chain caught up with its peers.
func (h *Handle) IsSynchronized() (bool, error) {
	if h.gone() {
		return false, errs.ErrInnerGone
	}
	h.eng.mu.RLock()
	defer h.eng.mu.RUnlock()
	return h.eng.chainSync.Status() == chainsync.Synchronized, nil
}

// PendingCount reports the number of operations currently in the local
// pending store.
func (h *Handle) PendingCount() (int, error) {
	if h.gone() {
		return 0, errs.ErrInnerGone
	}
	h.eng.mu.RLock()
	defer h.eng.mu.RUnlock()
	return h.eng.pending.Len(), nil
}

// SubmitEntry mints a fresh operation id, signs data as an Entry payload,
// stores it locally, and pushes it immediately to every Store-role peer
// (spec §4.3 "PushLocal"), bypassing range reconciliation. It returns the
// minted operation id.
func (h *Handle) SubmitEntry(data []byte) (operation.ID, error) {
	if h.gone() {
		return 0, errs.ErrInnerGone
	}

	e := h.eng
	op := operation.Operation{
		NodeID:  e.keys.NodeId(),
		Payload: operation.Entry{Data: data},
	}

	e.mu.Lock()
	op.OperationID = e.minter.Next()
	op.GroupID = op.OperationID

	digest, err := operation.SigningDigest(op)
	if err != nil {
		e.mu.Unlock()
		return 0, errs.Wrap(errs.Parse, err, "compute entry signing digest")
	}
	op.Signature = e.keys.Sign(digest)

	sctx := synccontext.New()
	if !e.pending.PutOperation(op) {
		sctx.Emit(event.NewPendingOperationEvent(op.OperationID))
	}
	pushErr := e.pendingSync.PushLocal(sctx, op)
	e.mu.Unlock()

	e.drain(context.Background(), sctx)
	if pushErr != nil {
		return 0, pushErr
	}
	return op.OperationID, nil
}
