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
	"time"

	"github.com/exocore/exocore/chainstore"
	"github.com/exocore/exocore/chainsync"
	"github.com/exocore/exocore/commitmanager"
	"github.com/exocore/exocore/pendingstore"
)

// Config tunes the engine core and every component it drives (spec §6,
// gathered into one struct the way Erigon's node/ethconfig packages do for a
// whole client instance rather than one struct per package).
type Config struct {
	// TickInterval is the management tick's period (spec §4.6, §5).
	TickInterval time.Duration

	ChainStore    chainstore.Config
	ChainSync     chainsync.Config
	CommitManager commitmanager.Config

	PendingSyncBucketWidth        uint64
	PendingSyncRequestMinInterval time.Duration
	PendingSyncRequestMaxInterval time.Duration

	// EventBufferSize bounds each subscriber's event channel; a full
	// channel drops the rest of a tick's events and marks the subscriber
	// discontinued (spec §5, §8).
	EventBufferSize int

	// InboundQueueSize is given a default but the engine does not read it;
	// no inbound queue is sized by it.
	InboundQueueSize int

	// OffloadWorkers bounds concurrent outbound sends across distinct
	// peers during a single tick's drain (spec §5: "opt-in offloading of
	// blocking sections"). Messages to the same peer are always sent in
	// order; only sends to different peers run concurrently.
	OffloadWorkers int64
}

// DefaultConfig mirrors the conservative, small-cell-scale cadence the rest
// of the engine's components already default to.
var DefaultConfig = Config{
	TickInterval:                  2 * time.Second,
	ChainStore:                    chainstore.DefaultConfig,
	ChainSync:                     chainsync.DefaultConfig,
	CommitManager:                 commitmanager.DefaultConfig,
	PendingSyncBucketWidth:        pendingstore.DefaultBucketWidth,
	PendingSyncRequestMinInterval: 500 * time.Millisecond,
	PendingSyncRequestMaxInterval: 30 * time.Second,
	EventBufferSize:               256,
	InboundQueueSize:              256,
	OffloadWorkers:                4,
}

func (c Config) fillDefaults() Config {
	if c.TickInterval == 0 {
		c.TickInterval = DefaultConfig.TickInterval
	}
	if c.PendingSyncBucketWidth == 0 {
		c.PendingSyncBucketWidth = DefaultConfig.PendingSyncBucketWidth
	}
	if c.PendingSyncRequestMinInterval == 0 {
		c.PendingSyncRequestMinInterval = DefaultConfig.PendingSyncRequestMinInterval
	}
	if c.PendingSyncRequestMaxInterval == 0 {
		c.PendingSyncRequestMaxInterval = DefaultConfig.PendingSyncRequestMaxInterval
	}
	if c.EventBufferSize == 0 {
		c.EventBufferSize = DefaultConfig.EventBufferSize
	}
	if c.InboundQueueSize == 0 {
		c.InboundQueueSize = DefaultConfig.InboundQueueSize
	}
	if c.OffloadWorkers == 0 {
		c.OffloadWorkers = DefaultConfig.OffloadWorkers
	}
	return c
}
