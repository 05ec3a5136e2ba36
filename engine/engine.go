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

// Package engine is the aggregate root for one cell (spec §4.6): it owns
// the chain store, pending store, and the three synchronizers, serializes
// every access to them behind a single writer-preferring lock, drives them
// from a management tick and from inbound transport messages, and exposes
// the result only through a refcounted Handle.
package engine

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/exocore/exocore/cell"
	"github.com/exocore/exocore/chainstore"
	"github.com/exocore/exocore/chainsync"
	"github.com/exocore/exocore/commitmanager"
	"github.com/exocore/exocore/corelib/clock"
	"github.com/exocore/exocore/corelib/errs"
	"github.com/exocore/exocore/corelib/identity"
	"github.com/exocore/exocore/corelib/opid"
	"github.com/exocore/exocore/event"
	"github.com/exocore/exocore/pendingstore"
	"github.com/exocore/exocore/pendingsync"
	"github.com/exocore/exocore/synccontext"
	"github.com/exocore/exocore/transport"
)

// Engine is one cell's running instance. Construct it with Open, then call
// Start to begin driving ticks and transport dispatch; all outside access
// goes through the Handle Start returns.
type Engine struct {
	cell  *cell.Cell
	keys  *identity.KeyPair
	clock clock.Clock

	chain   *chainstore.Store
	pending *pendingstore.Store

	chainSync     *chainsync.Synchronizer
	pendingSync   *pendingsync.Synchronizer
	commitManager *commitmanager.Manager
	minter        *opid.Minter

	transport   transport.Transport
	config      Config
	logger      *zap.Logger
	metrics     *Metrics
	broadcaster *eventBroadcaster

	// mu guards every mutable field below and is held exclusively by the
	// tick loop and inbound dispatch; handle reads take it for as long as
	// it takes to copy state out, never across a blocking call (spec §5).
	mu      sync.RWMutex
	started bool

	startedCh chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup

	refCount int32
}

// Open discovers or creates the chain store rooted at dir and assembles an
// Engine over it. If the chain store is empty, the cell's genesis block
// (spec §3) is written before Open returns. logger and reg may be nil; a
// nil logger becomes a no-op logger, a nil registerer leaves metrics
// unregistered (same convention as chainsync.NewMetrics/commitmanager.NewMetrics).
func Open(dir string, c *cell.Cell, keys *identity.KeyPair, tr transport.Transport, clk clock.Clock, cfg Config, logger *zap.Logger, reg prometheus.Registerer) (*Engine, error) {
	cfg = cfg.fillDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("cell_id", hex.EncodeToString(c.PublicKey)), zap.String("node_id", keys.NodeId().String()))

	chain, err := chainstore.Open(dir, cfg.ChainStore)
	if err != nil {
		return nil, err
	}
	if _, ok := chain.GetLastBlockInfo(); !ok {
		genesis := cell.GenesisHeader(c)
		if _, err := chain.WriteBlock(genesis, nil, nil); err != nil {
			chain.Close()
			return nil, errs.Wrap(errs.Fatal, err, "write genesis block")
		}
	}

	pending := pendingstore.New()
	minter := opid.NewMinter(clk)

	engineMetrics := NewMetrics(reg)
	pendingSync := pendingsync.New(pending, c, keys.NodeId(), clk, cfg.PendingSyncBucketWidth)
	chainSync := chainsync.New(chain, c, keys.NodeId(), clk, cfg.ChainSync, chainsync.NewMetrics(reg))
	commitMgr := commitmanager.New(pending, chain, c, keys, clk, minter, pendingSync, cfg.CommitManager, commitmanager.NewMetrics(reg))

	e := &Engine{
		cell:          c,
		keys:          keys,
		clock:         clk,
		chain:         chain,
		pending:       pending,
		chainSync:     chainSync,
		pendingSync:   pendingSync,
		commitManager: commitMgr,
		minter:        minter,
		transport:     tr,
		config:        cfg,
		logger:        logger,
		metrics:       engineMetrics,
		broadcaster:   newEventBroadcaster(engineMetrics),
		startedCh:     make(chan struct{}),
		stopCh:        make(chan struct{}),
	}
	return e, nil
}

// Start launches the engine's tick loop and inbound dispatch loop, bound to
// ctx, and returns a Handle holding one strong reference. The engine keeps
// running until ctx is cancelled, the transport's inbound channel closes, a
// fatal component error occurs, or every outstanding Handle is closed.
func (e *Engine) Start(ctx context.Context) *Handle {
	e.wg.Add(1)
	go e.run(ctx)
	return e.newHandle()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()
	inbound := e.transport.Inbound()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			sctx, firstTick, fatal := e.tick()
			e.drain(ctx, sctx)
			if firstTick {
				close(e.startedCh)
			}
			if fatal {
				return
			}
		case in, ok := <-inbound:
			if !ok {
				return
			}
			sctx := e.handleInbound(in)
			e.drain(ctx, sctx)
		}
	}
}

// tick runs one management tick (spec §4.6 tick procedure): chain sync
// always runs; the commit manager and pending sync only act once the chain
// synchronizer reports Synchronized (spec §4.5 "chain synchronization is a
// precondition").
func (e *Engine) tick() (sctx *synccontext.Context, firstTick bool, fatal bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sctx = synccontext.New()

	if err := e.chainSync.Tick(sctx); err != nil {
		fatal = e.logComponentErr("chainsync", err)
		if fatal {
			return
		}
	}

	synchronized := e.chainSync.Status() == chainsync.Synchronized
	if synchronized {
		if err := e.commitManager.Tick(sctx); err != nil {
			fatal = e.logComponentErr("commitmanager", err)
			if fatal {
				return
			}
		}
	}
	e.pendingSync.BuildRequest(sctx, synchronized, e.config.PendingSyncRequestMinInterval, e.config.PendingSyncRequestMaxInterval)

	firstTick = !e.started
	if firstTick {
		e.started = true
		sctx.Emit(event.NewStarted())
	}
	e.metrics.incTicks()
	return sctx, firstTick, false
}

// handleInbound dispatches one inbound transport item under the write lock
// and returns the resulting sync context for the caller to drain once the
// lock is released.
func (e *Engine) handleInbound(in transport.Inbound) *synccontext.Context {
	sctx := synccontext.New()
	if in.Status != nil {
		e.logger.Debug("peer status changed", zap.String("node", in.Status.Node.String()), zap.Bool("connected", in.Status.Connected))
		return sctx
	}
	if in.Message == nil {
		return sctx
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.dispatchMessage(sctx, in.Message); err != nil {
		e.logger.Warn("inbound message dispatch failed",
			zap.String("kind", errs.KindOf(err).String()), zap.Error(err))
		e.metrics.incInboundDropped()
	} else {
		e.metrics.incInboundProcessed()
	}
	return sctx
}

// dispatchMessage decodes msg's payload and routes it to the synchronizer
// that owns its wire type.
func (e *Engine) dispatchMessage(sctx *synccontext.Context, msg *transport.Message) error {
	decoded, err := transport.DecodeFrame(msg.Payload)
	if err != nil {
		return errs.Wrap(errs.Parse, err, "decode inbound frame")
	}

	switch v := decoded.(type) {
	case transport.ChainSyncRequest:
		return e.chainSync.HandleRequest(sctx, msg.Source.String(), msg.RendezvousID, v)
	case transport.ChainSyncResponse:
		return e.chainSync.HandleResponse(sctx, msg.Source, v)
	case transport.PendingSyncRequest:
		resp := e.pendingSync.HandleRequest(sctx, e.chainSync.Status() == chainsync.Synchronized, v)
		frame, err := transport.EncodeFrame(resp)
		if err != nil {
			return errs.Wrap(errs.Parse, err, "encode pending sync response")
		}
		sctx.Send(transport.Outbound{Message: &transport.Message{
			Service:      transport.ServicePendingSync,
			Payload:      frame,
			ConnectionID: msg.Source.String(),
			RendezvousID: msg.RendezvousID,
		}})
		return nil
	case transport.PendingSyncResponse:
		changed := e.pendingSync.HandleResponse(sctx, v)
		e.pendingSync.RecordOutcome(msg.Source, changed)
		return nil
	default:
		return errs.New(errs.Parse, "unknown inbound payload type")
	}
}

// logComponentErr logs a tick-stage error at the point is_fatal is decided
// (spec §7) and reports whether it should stop the engine's run loop.
func (e *Engine) logComponentErr(component string, err error) bool {
	kind := errs.KindOf(err)
	if errs.IsFatal(err) {
		e.logger.Error("fatal component error, halting engine",
			zap.String("component", component), zap.String("kind", kind.String()), zap.Error(err))
		return true
	}
	e.logger.Warn("component tick error",
		zap.String("component", component), zap.String("kind", kind.String()), zap.Error(err))
	return false
}

// drain delivers sctx's events to subscribers and sends its outbound
// messages, both without holding the engine lock: broadcasting only takes
// the broadcaster's own mutex, and transport.Send may block (spec §5), so
// neither may run inside the critical section tick/handleInbound just left.
func (e *Engine) drain(ctx context.Context, sctx *synccontext.Context) {
	e.broadcaster.broadcast(sctx.Events)
	e.sendOutbound(ctx, sctx.Messages)
}

// sendOutbound groups messages by destination connection and sends each
// group through the transport, preserving per-connection order. Distinct
// connections are sent concurrently, bounded by config.OffloadWorkers, the
// opt-in offloading of a blocking section spec §5 calls for.
func (e *Engine) sendOutbound(ctx context.Context, msgs []transport.Outbound) {
	if len(msgs) == 0 {
		return
	}

	order := make([]string, 0, len(msgs))
	groups := make(map[string][]transport.Outbound, len(msgs))
	for _, m := range msgs {
		var key string
		switch {
		case m.Message != nil:
			key = m.Message.ConnectionID
		case m.Reset != nil:
			key = m.Reset.ConnectionID
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], m)
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(e.config.OffloadWorkers)
	for _, key := range order {
		items := groups[key]
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			for _, item := range items {
				if err := e.transport.Send(gctx, item); err != nil {
					e.logger.Warn("outbound send failed", zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// shutdown tears the engine down once its last Handle is closed: it stops
// the run loop, closes every live subscription, and releases the chain
// store's segments and directory lock.
func (e *Engine) shutdown() error {
	close(e.stopCh)
	e.wg.Wait()
	e.broadcaster.closeAll()
	return e.chain.Close()
}
