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
	"bytes"
	"sort"

	"github.com/exocore/exocore/chainstore"
	"github.com/exocore/exocore/corelib/errs"
	"github.com/exocore/exocore/corelib/mathutil"
	"github.com/exocore/exocore/operation"
	"github.com/exocore/exocore/transport"
)

// headerToMetadata converts a committed block's header into the lightweight
// summary exchanged over the wire (spec §4.5, §6).
func headerToMetadata(h operation.BlockHeader, hash []byte, blockSize uint32) transport.BlockMetadata {
	return transport.BlockMetadata{
		Offset:         h.Offset,
		Height:         h.Height,
		Hash:           append([]byte(nil), hash...),
		PreviousOffset: h.PreviousOffset,
		PreviousHash:   append([]byte(nil), h.PreviousHash...),
		BlockSize:      blockSize,
		OperationsSize: h.OperationsSize,
		SignaturesSize: h.SignaturesSize,
	}
}

// blockMetadataInRange walks every block with offset in [from, to), computing
// its metadata summary. Cells stay in the "few tens of nodes" regime (spec
// §9), so materializing the full range once before sampling keeps this
// simple instead of threading a two-pass streaming sampler through the
// store.
func blockMetadataInRange(store *chainstore.Store, from, to uint64) ([]transport.BlockMetadata, error) {
	it := store.BlocksIter(from)
	var out []transport.BlockMetadata
	for {
		b, ok, err := it.Next()
		if err != nil {
			return nil, errs.Wrap(errs.Integrity, err, "iterate blocks for metadata sample")
		}
		if !ok || b.Header.Offset >= to {
			break
		}
		hash, err := operation.HeaderHash(b.Header)
		if err != nil {
			return nil, errs.Wrap(errs.Integrity, err, "hash block header for metadata sample")
		}
		headerFrame, err := operation.FrameHeader(b.Header)
		if err != nil {
			return nil, errs.Wrap(errs.Integrity, err, "frame block header for metadata sample")
		}
		out = append(out, headerToMetadata(b.Header, hash, uint32(len(headerFrame))))
	}
	return out, nil
}

// SampleRange builds the metadata sample requestMetadata/HandleRequest send,
// covering blocks with offset in [from, to) (spec §4.5 step 1,
// BlockMetadata::from_store in the original implementation).
func SampleRange(store *chainstore.Store, from, to uint64, cfg Config) ([]transport.BlockMetadata, error) {
	cfg = cfg.fillDefaults()
	all, err := blockMetadataInRange(store, from, to)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	segments := rangeSegments(store.Segments(), from, to)
	if len(segments) > cfg.MetadataSyncSegmentsBoundariesThreshold {
		return sampleBySegmentBoundaries(all, segments, cfg), nil
	}
	return sampleByWalk(all, cfg), nil
}

// SampleAll samples the whole local chain, the zero-argument form used at
// the start of a sync round.
func SampleAll(store *chainstore.Store, cfg Config) ([]transport.BlockMetadata, error) {
	return SampleRange(store, 0, store.NextOffset(), cfg)
}

func rangeSegments(all []chainstore.SegmentRange, from, to uint64) []chainstore.SegmentRange {
	var out []chainstore.SegmentRange
	for _, seg := range all {
		if seg.LastOffset <= from || seg.FirstOffset >= to {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// sampleByWalk implements the "otherwise" branch of spec §4.5 step 1: keep
// entries within the first/last counts, or every skip-th entry in between.
func sampleByWalk(all []transport.BlockMetadata, cfg Config) []transport.BlockMetadata {
	n := len(all)
	skip := mathutil.Skip(n, cfg.MetadataSyncSampledCount)
	out := make([]transport.BlockMetadata, 0, cfg.MetadataSyncSampledCount+cfg.MetadataSyncBeginCount+cfg.MetadataSyncEndCount)
	for i, bm := range all {
		if i < cfg.MetadataSyncBeginCount || i >= n-cfg.MetadataSyncEndCount || i%skip == 0 {
			out = append(out, bm)
		}
	}
	return dedupSorted(out)
}

// sampleBySegmentBoundaries implements the "covers more than a
// segments-boundaries threshold" branch: sample the first block of each
// segment plus the first/last counts from the full range (spec §4.5 step 1).
func sampleBySegmentBoundaries(all []transport.BlockMetadata, segments []chainstore.SegmentRange, cfg Config) []transport.BlockMetadata {
	byOffset := make(map[uint64]transport.BlockMetadata, len(all))
	for _, bm := range all {
		byOffset[bm.Offset] = bm
	}

	var out []transport.BlockMetadata
	for _, seg := range segments {
		if bm, ok := byOffset[seg.FirstOffset]; ok {
			out = append(out, bm)
		}
	}
	n := len(all)
	for i := 0; i < cfg.MetadataSyncBeginCount && i < n; i++ {
		out = append(out, all[i])
	}
	for i := n - cfg.MetadataSyncEndCount; i < n; i++ {
		if i >= 0 {
			out = append(out, all[i])
		}
	}
	return dedupSorted(out)
}

func dedupSorted(in []transport.BlockMetadata) []transport.BlockMetadata {
	sort.Slice(in, func(i, j int) bool { return in[i].Offset < in[j].Offset })
	out := in[:0:0]
	var lastOffset uint64
	haveLast := false
	for _, bm := range in {
		if haveLast && bm.Offset == lastOffset {
			continue
		}
		out = append(out, bm)
		lastOffset = bm.Offset
		haveLast = true
	}
	return out
}

// compareResult is the outcome of comparing a local and a remote metadata
// sample (spec §4.5 steps 3, 8).
type compareResult struct {
	commonOffset uint64
	commonHash   []byte
	commonFound  bool
	diverged     bool
}

// compareSamples finds the highest offset where both samples agree on hash,
// and detects divergence: an offset present in both samples with mismatched
// hashes, encountered before any agreement is found (spec §4.5 step 3,
// "Divergence detection").
func compareSamples(local, remote []transport.BlockMetadata) compareResult {
	localByOffset := make(map[uint64][]byte, len(local))
	for _, bm := range local {
		localByOffset[bm.Offset] = bm.Hash
	}

	sorted := append([]transport.BlockMetadata(nil), remote...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	var result compareResult
	for _, rbm := range sorted {
		lh, ok := localByOffset[rbm.Offset]
		if !ok {
			continue
		}
		if bytes.Equal(lh, rbm.Hash) {
			result.commonFound = true
			result.commonOffset = rbm.Offset
			result.commonHash = rbm.Hash
		} else if !result.commonFound {
			result.diverged = true
		}
	}
	return result
}

func remoteTip(remote []transport.BlockMetadata) (transport.BlockMetadata, bool) {
	if len(remote) == 0 {
		return transport.BlockMetadata{}, false
	}
	best := remote[0]
	for _, bm := range remote[1:] {
		if bm.Offset > best.Offset {
			best = bm
		}
	}
	return best, true
}
