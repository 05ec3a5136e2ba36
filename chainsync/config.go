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

import "time"

// Config tunes the chain synchronizer (spec §6: chain_sync.*).
type Config struct {
	// MetadataSyncBeginCount is how many blocks from the range's start are
	// always included in a metadata sample, unsampled.
	MetadataSyncBeginCount int
	// MetadataSyncEndCount is the same, counted from the range's end.
	MetadataSyncEndCount int
	// MetadataSyncSampledCount is the approximate number of blocks to
	// sample across the remainder of the range.
	MetadataSyncSampledCount int
	// MetadataSyncSegmentsBoundariesThreshold is the number of segments a
	// range must span before sampling switches to the cheaper
	// segment-boundaries strategy (spec §4.5 step 1).
	MetadataSyncSegmentsBoundariesThreshold int
	// BlocksMaxSendSize bounds how many bytes of blocks one ChainSyncResponse
	// carries; a single block larger than this is still sent alone.
	BlocksMaxSendSize uint64
	// LeaderTooFarThreshold is the leeway, in bytes of chain offset, by which
	// a leader's tip may be ahead of ours while we still count as
	// Synchronized; only a larger gap starts a blocks download. It is not
	// used to declare a leader lost: no leader-loss detection exists.
	LeaderTooFarThreshold uint64
	// MetadataRequestMinInterval/MaxInterval throttle per-peer metadata
	// requests the same way pending sync throttles its own requests ([FULL]
	// addition: spec §6 only names this knob for pending_sync, but chain
	// sync's per-peer RequestTracker needs the same bounds, so this mirrors
	// it rather than inventing a different shape).
	MetadataRequestMinInterval time.Duration
	MetadataRequestMaxInterval time.Duration
	// LeaderMetadataMaxAge bounds how stale a peer's last metadata sample
	// may be before it's no longer eligible for leader selection (spec §4.5
	// step 4: "metadata has been refreshed recently").
	LeaderMetadataMaxAge time.Duration
	// MaxConsecutiveFailures is the limit RequestTracker.RecordFailure
	// compares its failure count against. The synchronizer never calls
	// RecordFailure, so a failed or timed-out request does not change a
	// peer's status.
	MaxConsecutiveFailures int
}

// DefaultConfig mirrors the commit manager's conservative, small-cell-scale
// tick cadence.
var DefaultConfig = Config{
	MetadataSyncBeginCount:                  8,
	MetadataSyncEndCount:                    8,
	MetadataSyncSampledCount:                32,
	MetadataSyncSegmentsBoundariesThreshold: 3,
	BlocksMaxSendSize:                       4 << 20, // 4 MiB
	LeaderTooFarThreshold:                   32,
	MetadataRequestMinInterval:              500 * time.Millisecond,
	MetadataRequestMaxInterval:              30 * time.Second,
	LeaderMetadataMaxAge:                    60 * time.Second,
	MaxConsecutiveFailures:                  5,
}

func (c Config) fillDefaults() Config {
	if c.MetadataSyncBeginCount == 0 {
		c.MetadataSyncBeginCount = DefaultConfig.MetadataSyncBeginCount
	}
	if c.MetadataSyncEndCount == 0 {
		c.MetadataSyncEndCount = DefaultConfig.MetadataSyncEndCount
	}
	if c.MetadataSyncSampledCount == 0 {
		c.MetadataSyncSampledCount = DefaultConfig.MetadataSyncSampledCount
	}
	if c.MetadataSyncSegmentsBoundariesThreshold == 0 {
		c.MetadataSyncSegmentsBoundariesThreshold = DefaultConfig.MetadataSyncSegmentsBoundariesThreshold
	}
	if c.BlocksMaxSendSize == 0 {
		c.BlocksMaxSendSize = DefaultConfig.BlocksMaxSendSize
	}
	if c.LeaderTooFarThreshold == 0 {
		c.LeaderTooFarThreshold = DefaultConfig.LeaderTooFarThreshold
	}
	if c.MetadataRequestMinInterval == 0 {
		c.MetadataRequestMinInterval = DefaultConfig.MetadataRequestMinInterval
	}
	if c.MetadataRequestMaxInterval == 0 {
		c.MetadataRequestMaxInterval = DefaultConfig.MetadataRequestMaxInterval
	}
	if c.LeaderMetadataMaxAge == 0 {
		c.LeaderMetadataMaxAge = DefaultConfig.LeaderMetadataMaxAge
	}
	if c.MaxConsecutiveFailures == 0 {
		c.MaxConsecutiveFailures = DefaultConfig.MaxConsecutiveFailures
	}
	return c
}
