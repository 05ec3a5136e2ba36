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

import "github.com/exocore/exocore/operation"

// BlockIterator walks committed blocks one at a time without materializing
// the whole chain; a block is only decoded off its mmap when Next is
// called (spec §4.1: chain sync streams blocks to peers this way).
type BlockIterator struct {
	s       *Store
	i       int
	reverse bool
}

// BlocksIter returns an iterator starting at the first block whose offset
// is >= fromOffset, walking forward.
func (s *Store) BlocksIter(fromOffset uint64) *BlockIterator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := 0
	for i < len(s.index) && s.index[i].header.Offset < fromOffset {
		i++
	}
	return &BlockIterator{s: s, i: i}
}

// BlocksIterReverse returns an iterator starting at the last block whose
// offset is <= fromOffset, walking backward toward genesis.
func (s *Store) BlocksIterReverse(fromOffset uint64) *BlockIterator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := len(s.index) - 1
	for i >= 0 && s.index[i].header.Offset > fromOffset {
		i--
	}
	return &BlockIterator{s: s, i: i, reverse: true}
}

// Next returns the next block in the iterator's direction, or ok=false once
// exhausted.
func (it *BlockIterator) Next() (block *operation.Block, ok bool, err error) {
	it.s.mu.RLock()
	defer it.s.mu.RUnlock()

	if it.reverse {
		if it.i < 0 {
			return nil, false, nil
		}
	} else if it.i >= len(it.s.index) {
		return nil, false, nil
	}

	entry := it.s.index[it.i]
	block, err = it.s.readBlockLocked(entry)
	if it.reverse {
		it.i--
	} else {
		it.i++
	}
	if err != nil {
		return nil, false, err
	}
	return block, true, nil
}
