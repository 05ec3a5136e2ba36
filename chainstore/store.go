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

// Package chainstore implements the durable, ordered, segmented store of
// committed blocks described in spec §4.1: a directory of mmap-backed
// segment files, discovered at open time by scanning, appended to under a
// soft per-segment size cap, and read back by offset, by the operation ids
// they contain, or by lazy forward/reverse iteration.
package chainstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gofrs/flock"

	"github.com/exocore/exocore/corelib/errs"
	"github.com/exocore/exocore/corelib/framing"
	"github.com/exocore/exocore/operation"
)

// Config tunes segment sizing (spec §6: chain_store.*).
type Config struct {
	// SegmentMaxSize is the soft cap on how many bytes of blocks a segment
	// holds before a new one is opened.
	SegmentMaxSize uint64
	// SegmentOverAllocateSize is added to SegmentMaxSize when a segment
	// file is created, so a block that would only barely overflow the soft
	// cap can still land in the same file if it fits the slack.
	SegmentOverAllocateSize uint64
	// SegmentMaxOpen caps how many segments are kept mmap'd concurrently;
	// relevant on 32-bit targets (spec §9).
	SegmentMaxOpen int
	// HeaderCacheSize bounds the LRU cache of recently read block headers.
	HeaderCacheSize int
}

// DefaultConfig mirrors the scale Erigon uses for its own segment files,
// adjusted down: personal-data cells are expected to hold orders of
// magnitude fewer bytes than a public chain's snapshot segments.
var DefaultConfig = Config{
	SegmentMaxSize:          64 << 20, // 64 MiB
	SegmentOverAllocateSize: 8 << 20,  // 8 MiB
	SegmentMaxOpen:          16,
	HeaderCacheSize:         1024,
}

func (c Config) fillDefaults() Config {
	if c.SegmentMaxSize == 0 {
		c.SegmentMaxSize = DefaultConfig.SegmentMaxSize
	}
	if c.SegmentOverAllocateSize == 0 {
		c.SegmentOverAllocateSize = DefaultConfig.SegmentOverAllocateSize
	}
	if c.SegmentMaxOpen == 0 {
		c.SegmentMaxOpen = DefaultConfig.SegmentMaxOpen
	}
	if c.HeaderCacheSize == 0 {
		c.HeaderCacheSize = DefaultConfig.HeaderCacheSize
	}
	return c
}

// indexEntry is the in-memory summary of one committed block, kept for
// every block regardless of which segment holds its bytes so offset/id
// lookups never need to re-scan a segment.
type indexEntry struct {
	header   operation.BlockHeader
	hash     []byte
	totalLen uint64 // header frame + OperationsSize + SignaturesSize
	seg      *segment
	filePos  uint64
}

func (e *indexEntry) nextOffset() uint64 { return e.header.Offset + e.totalLen }

// SegmentRange describes the byte range one segment file covers.
type SegmentRange struct {
	FirstOffset uint64
	LastOffset  uint64
}

// Store is the engine's exclusive handle onto the on-disk chain. It is not
// safe for concurrent use by multiple goroutines without external
// synchronization beyond what's documented per method; the engine core
// serializes access to it under its own lock (spec §5).
type Store struct {
	dir    string
	config Config
	lock   *flock.Flock

	mu       sync.RWMutex
	segments []*segment
	index    []*indexEntry // ordered by header.Offset
	byOpID   map[operation.ID]*indexEntry
	headers  *lru.Cache[uint64, operation.BlockHeader]
}

// Open discovers or creates the chain store rooted at dir, scanning
// existing segment files to reconstruct the block index and each segment's
// write cursor (spec §4.1).
func Open(dir string, config Config) (*Store, error) {
	config = config.fillDefaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chainstore: create dir: %w", err)
	}

	lockPath := filepath.Join(dir, ".lock")
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("chainstore: acquire directory lock: %w", err)
	}
	if !locked {
		return nil, errs.New(errs.Fatal, "chain directory already locked by another process")
	}

	headers, err := lru.New[uint64, operation.BlockHeader](config.HeaderCacheSize)
	if err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("chainstore: create header cache: %w", err)
	}

	s := &Store{
		dir:     dir,
		config:  config,
		lock:    fl,
		byOpID:  make(map[operation.ID]*indexEntry),
		headers: headers,
	}

	if err := s.scanDirectory(); err != nil {
		fl.Unlock()
		return nil, err
	}
	return s, nil
}

func (s *Store) scanDirectory() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("chainstore: read dir: %w", err)
	}

	type found struct {
		path        string
		firstOffset uint64
	}
	var segFiles []found
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "seg_") || !strings.HasSuffix(e.Name(), ".seg") {
			continue
		}
		var firstOffset uint64
		if _, err := fmt.Sscanf(e.Name(), "seg_%020d.seg", &firstOffset); err != nil {
			continue
		}
		segFiles = append(segFiles, found{path: filepath.Join(s.dir, e.Name()), firstOffset: firstOffset})
	}
	sort.Slice(segFiles, func(i, j int) bool { return segFiles[i].firstOffset < segFiles[j].firstOffset })

	for _, sf := range segFiles {
		seg, err := openSegment(sf.path, sf.firstOffset)
		if err != nil {
			return err
		}
		if err := s.scanSegment(seg); err != nil {
			return err
		}
		s.segments = append(s.segments, seg)
	}
	return nil
}

// scanSegment walks every block frame in seg from its start, populating the
// index and stopping at the first frame that fails to parse (interpreted as
// trailing, never-written space, spec §4.1/§9).
func (s *Store) scanSegment(seg *segment) error {
	var pos uint64
	for pos < seg.capacity {
		header, headerLen, err := operation.DecodeHeaderFrame(seg.mm[pos:])
		if err != nil {
			break
		}
		totalLen := uint64(headerLen) + uint64(header.OperationsSize) + uint64(header.SignaturesSize)
		if pos+totalLen > seg.capacity {
			break
		}
		hash, err := operation.HeaderHash(header)
		if err != nil {
			return fmt.Errorf("chainstore: hash header at %d: %w", header.Offset, err)
		}
		entry := &indexEntry{header: header, hash: hash, totalLen: totalLen, seg: seg, filePos: pos}
		s.index = append(s.index, entry)
		for _, oh := range header.Operations {
			s.byOpID[oh.OperationID] = entry
		}
		pos += totalLen
	}
	seg.nextWrite = pos
	if seg.nextWrite > 0 {
		seg.state = segmentWritable
	}
	return nil
}

// WriteBlock appends a block to the chain. frames is the block already
// encoded as {headerFrame, concatenated operation frames, signatures
// frame}; callers build it with EncodeBlock so the header's declared sizes
// always match what's actually written.
func (s *Store) WriteBlock(header operation.BlockHeader, operationsFrame, signaturesFrame []byte) (nextOffset uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkContiguity(header); err != nil {
		return 0, err
	}

	headerFrame, err := operation.FrameHeader(header)
	if err != nil {
		return 0, errs.Wrap(errs.Integrity, err, "encode block header")
	}
	if uint32(len(operationsFrame)) != header.OperationsSize {
		return 0, errs.New(errs.Integrity, "operations frame length does not match header.OperationsSize")
	}
	if uint32(len(signaturesFrame)) != header.SignaturesSize {
		return 0, errs.New(errs.Integrity, "signatures frame length does not match header.SignaturesSize")
	}

	total := append(append(append([]byte(nil), headerFrame...), operationsFrame...), signaturesFrame...)

	seg, err := s.writableSegment(header.Offset, uint64(len(total)))
	if err != nil {
		return 0, err
	}
	filePos, err := seg.write(total)
	if err != nil {
		return 0, errs.Wrap(errs.Fatal, err, "write block to segment")
	}

	hash, err := operation.HeaderHash(header)
	if err != nil {
		return 0, errs.Wrap(errs.Integrity, err, "hash written header")
	}
	entry := &indexEntry{header: header, hash: hash, totalLen: uint64(len(total)), seg: seg, filePos: filePos}
	s.index = append(s.index, entry)
	for _, oh := range header.Operations {
		s.byOpID[oh.OperationID] = entry
	}
	s.headers.Add(header.Offset, header)

	if seg.remaining() < uint64(len(total)) {
		seg.state = segmentFull
	}
	return entry.nextOffset(), nil
}

func (s *Store) checkContiguity(header operation.BlockHeader) error {
	last := s.lastEntryLocked()
	if last == nil {
		if header.Offset != 0 || header.Height != 0 {
			return errs.New(errs.Integrity, "first block must be genesis at offset 0, height 0")
		}
		return nil
	}
	if header.Offset != last.nextOffset() {
		return errs.New(errs.Integrity, "non-contiguous offset")
	}
	if header.Height != last.header.Height+1 {
		return errs.New(errs.Integrity, "non-contiguous height")
	}
	if !bytes.Equal(header.PreviousHash, last.hash) {
		return errs.New(errs.Integrity, "previous_hash does not match predecessor")
	}
	return nil
}

// writableSegment returns a segment with room for size bytes starting at
// offset, opening a new one if the current tail segment is full (spec
// §4.1: "On segment full: ... if insufficient, a new segment starts at the
// next offset").
func (s *Store) writableSegment(offset, size uint64) (*segment, error) {
	if len(s.segments) > 0 {
		tail := s.segments[len(s.segments)-1]
		if tail.lastOffset() == offset && tail.nextWrite < s.config.SegmentMaxSize && tail.remaining() >= size {
			return tail, nil
		}
	}
	capacity := s.config.SegmentMaxSize + s.config.SegmentOverAllocateSize
	if size > capacity {
		capacity = size
	}
	seg, err := createSegment(s.dir, offset, capacity)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, err, "create new segment")
	}
	s.segments = append(s.segments, seg)
	s.evictOldSegmentsLocked()
	return seg, nil
}

// evictOldSegmentsLocked unmaps the oldest non-tail segments once more than
// SegmentMaxOpen are mapped, keeping mmap usage bounded on memory-starved
// targets (spec §9). Unmapped segments are remapped transparently on the
// next read via ensureMapped.
func (s *Store) evictOldSegmentsLocked() {
	open := 0
	for _, seg := range s.segments {
		if seg.mm != nil {
			open++
		}
	}
	for i := 0; i < len(s.segments)-1 && open > s.config.SegmentMaxOpen; i++ {
		seg := s.segments[i]
		if seg.mm == nil {
			continue
		}
		if err := seg.mm.Unmap(); err == nil {
			seg.mm = nil
			open--
		}
	}
}

func (s *Store) ensureMapped(seg *segment) error {
	if seg.mm != nil {
		return nil
	}
	mm, err := mmapReopen(seg)
	if err != nil {
		return errs.Wrap(errs.Fatal, err, "remap evicted segment")
	}
	seg.mm = mm
	return nil
}

// GetBlock returns the block starting exactly at offset.
func (s *Store) GetBlock(offset uint64) (*operation.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.findEntryLocked(offset)
	if !ok {
		return nil, errs.New(errs.OutOfBound, "no block at offset")
	}
	return s.readBlockLocked(entry)
}

// GetBlockInfo returns just the header at offset, served from cache when
// possible.
func (s *Store) GetBlockInfo(offset uint64) (operation.BlockHeader, error) {
	if h, ok := s.headers.Get(offset); ok {
		return h, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.findEntryLocked(offset)
	if !ok {
		return operation.BlockHeader{}, errs.New(errs.OutOfBound, "no block at offset")
	}
	s.headers.Add(offset, entry.header)
	return entry.header, nil
}

// GetBlockFromNextOffset returns the block whose NextOffset equals the
// argument, i.e. the predecessor of whatever would be appended there.
func (s *Store) GetBlockFromNextOffset(nextOffset uint64) (*operation.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.index {
		if e.nextOffset() == nextOffset {
			return s.readBlockLocked(e)
		}
	}
	return nil, errs.New(errs.NotFound, "no block with that next offset")
}

// GetLastBlock returns the chain tip, or ok=false for an empty chain.
func (s *Store) GetLastBlock() (block *operation.Block, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last := s.lastEntryLocked()
	if last == nil {
		return nil, false, nil
	}
	b, err := s.readBlockLocked(last)
	return b, err == nil, err
}

// GetLastBlockInfo is the header-only form of GetLastBlock.
func (s *Store) GetLastBlockInfo() (operation.BlockHeader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last := s.lastEntryLocked()
	if last == nil {
		return operation.BlockHeader{}, false
	}
	return last.header, true
}

// NextOffset returns the offset the next block must be written at: 0 for
// an empty chain, otherwise the tip's NextOffset.
func (s *Store) NextOffset() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last := s.lastEntryLocked()
	if last == nil {
		return 0
	}
	return last.nextOffset()
}

// TipHash returns the multihash of the tip block's header, nil for an
// empty chain. It is the value the next block's PreviousHash must equal.
func (s *Store) TipHash() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last := s.lastEntryLocked()
	if last == nil {
		return nil
	}
	return last.hash
}

func (s *Store) lastEntryLocked() *indexEntry {
	if len(s.index) == 0 {
		return nil
	}
	return s.index[len(s.index)-1]
}

func (s *Store) findEntryLocked(offset uint64) (*indexEntry, bool) {
	i := sort.Search(len(s.index), func(i int) bool { return s.index[i].header.Offset >= offset })
	if i < len(s.index) && s.index[i].header.Offset == offset {
		return s.index[i], true
	}
	return nil, false
}

// GetBlockByOperationID returns the block that contains the given
// operation id, if any has been committed.
func (s *Store) GetBlockByOperationID(id operation.ID) (*operation.Block, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.byOpID[id]
	if !ok {
		return nil, false, nil
	}
	b, err := s.readBlockLocked(entry)
	return b, err == nil, err
}

func (s *Store) readBlockLocked(e *indexEntry) (*operation.Block, error) {
	if err := s.ensureMapped(e.seg); err != nil {
		return nil, err
	}
	buf := e.seg.mm[e.filePos : e.filePos+e.totalLen]

	header, headerLen, err := operation.DecodeHeaderFrame(buf)
	if err != nil {
		return nil, errs.Wrap(errs.Integrity, err, "decode block header")
	}
	pos := uint64(headerLen)
	opsEnd := pos + uint64(header.OperationsSize)
	var ops [][]byte
	for pos < opsEnd {
		_, n, err := framing.UnsealBytes(buf[pos:opsEnd])
		if err != nil {
			return nil, errs.Wrap(errs.Integrity, err, "decode operation frame")
		}
		// Block.Operations holds whole frames, so the verified frame is kept
		// as is rather than its unsealed payload.
		cp := make([]byte, n)
		copy(cp, buf[pos:pos+uint64(n)])
		ops = append(ops, cp)
		pos += uint64(n)
	}
	// The genesis block is written with no signatures frame at all.
	var sigs []operation.Signature
	if header.SignaturesSize > 0 {
		sigs, _, err = operation.DecodeSignaturesFrame(buf[pos:])
		if err != nil {
			return nil, errs.Wrap(errs.Integrity, err, "decode signatures frame")
		}
	}
	return &operation.Block{Header: header, Operations: ops, Signatures: sigs}, nil
}

// Segments returns the byte ranges covered by each segment file, in order.
func (s *Store) Segments() []SegmentRange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SegmentRange, 0, len(s.segments))
	for _, seg := range s.segments {
		out = append(out, SegmentRange{FirstOffset: seg.firstOffset, LastOffset: seg.lastOffset()})
	}
	return out
}

// TruncateFrom erases every block at offset and after, used only for
// divergence recovery (spec §3, §4.5). offset must exactly match some
// block's starting offset.
func (s *Store) TruncateFrom(offset uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.index), func(i int) bool { return s.index[i].header.Offset >= offset })
	if i >= len(s.index) || s.index[i].header.Offset != offset {
		return errs.New(errs.NotFound, "no block at truncation offset")
	}

	for _, e := range s.index[i:] {
		for _, oh := range e.header.Operations {
			delete(s.byOpID, oh.OperationID)
		}
		s.headers.Remove(e.header.Offset)
	}

	truncSeg := s.index[i].seg
	truncSeg.nextWrite = s.index[i].filePos
	truncSeg.state = segmentWritable

	keepSegs := make([]*segment, 0, len(s.segments))
	for _, seg := range s.segments {
		if seg == truncSeg {
			keepSegs = append(keepSegs, seg)
			continue
		}
		if seg.firstOffset < truncSeg.firstOffset {
			keepSegs = append(keepSegs, seg)
			continue
		}
		if err := seg.remove(); err != nil {
			return errs.Wrap(errs.Fatal, err, "remove superseded segment")
		}
	}
	s.segments = keepSegs
	s.index = s.index[:i]
	return nil
}

// Close releases all mmaps and the directory lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, seg := range s.segments {
		if err := seg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
