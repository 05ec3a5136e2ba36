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

package chainstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

// segmentState is purely advisory (spec §4.1): Full and ReadOnly behave
// identically from the store's point of view, Full just flags that this
// segment is no longer the append target.
type segmentState int

const (
	segmentEmpty segmentState = iota
	segmentWritable
	segmentFull
	segmentReadOnly
)

// segment is one arena-style mmap-backed file: pre-allocated to capacity up
// front so writes never pay a per-call ftruncate, with an in-memory
// nextWrite cursor reconciled by scanning on open (spec §9).
type segment struct {
	firstOffset uint64
	path        string
	file        *os.File
	mm          mmap.MMap
	capacity    uint64
	nextWrite   uint64
	state       segmentState
}

func segmentFileName(firstOffset uint64) string {
	return fmt.Sprintf("seg_%020d.seg", firstOffset)
}

func segmentPath(dir string, firstOffset uint64) string {
	return filepath.Join(dir, segmentFileName(firstOffset))
}

// createSegment allocates a new segment file of the given capacity and
// maps it read-write.
func createSegment(dir string, firstOffset, capacity uint64) (*segment, error) {
	path := segmentPath(dir, firstOffset)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("chainstore: create segment %s: %w", path, err)
	}
	if err := f.Truncate(int64(capacity)); err != nil {
		f.Close()
		return nil, fmt.Errorf("chainstore: allocate segment %s: %w", path, err)
	}
	mm, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("chainstore: mmap segment %s: %w", path, err)
	}
	return &segment{
		firstOffset: firstOffset,
		path:        path,
		file:        f,
		mm:          mm,
		capacity:    capacity,
		nextWrite:   0,
		state:       segmentEmpty,
	}, nil
}

// openSegment maps an existing segment file read-write without resetting
// its write cursor; the caller reconciles nextWrite by scanning.
func openSegment(path string, firstOffset uint64) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("chainstore: open segment %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("chainstore: stat segment %s: %w", path, err)
	}
	mm, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("chainstore: mmap segment %s: %w", path, err)
	}
	return &segment{
		firstOffset: firstOffset,
		path:        path,
		file:        f,
		mm:          mm,
		capacity:    uint64(info.Size()),
		state:       segmentWritable,
	}, nil
}

// remaining returns how many bytes are left before capacity.
func (s *segment) remaining() uint64 {
	if s.nextWrite >= s.capacity {
		return 0
	}
	return s.capacity - s.nextWrite
}

// write copies b into the mmap region at the current cursor and advances
// it, flushing so the write is durable before returning (spec §4.1: "the
// mmap is flushed, and the segment's next-write cursor advances").
func (s *segment) write(b []byte) (filePos uint64, err error) {
	if uint64(len(b)) > s.remaining() {
		return 0, errSegmentFull
	}
	pos := s.nextWrite
	copy(s.mm[pos:pos+uint64(len(b))], b)
	if err := s.mm.Flush(); err != nil {
		return 0, fmt.Errorf("chainstore: flush segment %s: %w", s.path, err)
	}
	s.nextWrite += uint64(len(b))
	if s.state == segmentEmpty {
		s.state = segmentWritable
	}
	return pos, nil
}

// lastOffset returns the global chain offset one past the last byte
// actually written in this segment.
func (s *segment) lastOffset() uint64 {
	return s.firstOffset + s.nextWrite
}

func (s *segment) close() error {
	if s.mm != nil {
		if err := s.mm.Unmap(); err != nil {
			return err
		}
		s.mm = nil
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// remove closes and deletes the segment file entirely, used when
// truncating a chain to discard segments wholly past the truncation point.
func (s *segment) remove() error {
	if err := s.close(); err != nil {
		return err
	}
	return os.Remove(s.path)
}

// mmapReopen remaps a segment's file after it was evicted from memory by
// evictOldSegmentsLocked, without disturbing its write cursor or state.
func mmapReopen(s *segment) (mmap.MMap, error) {
	return mmap.Map(s.file, mmap.RDWR, 0)
}

var errSegmentFull = fmt.Errorf("chainstore: segment full")
