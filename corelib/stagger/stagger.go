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

// Package stagger implements the "can I propose now" predicate the commit
// manager uses to avoid every chain-role node proposing a block for the
// same offset in the same tick (spec §4.4, §9). It mixes the node id and
// the chain tip offset into a hash, which picks this node's window inside
// the proposal interval.
package stagger

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Window returns the offset of this node's proposal slot within interval,
// deterministically derived from nodeID and tipOffset so that every
// chain-role node computes the same schedule without coordination, and
// restarts land on the same slot they had before.
func Window(nodeID []byte, tipOffset uint64, interval uint64) uint64 {
	if interval == 0 {
		return 0
	}
	h := xxhash.New()
	h.Write(nodeID)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], tipOffset)
	h.Write(buf[:])
	return h.Sum64() % interval
}

// CanProposeNow reports whether elapsed time since the tip was last
// observed has entered this node's proposal window. elapsed and interval
// share a unit (typically milliseconds).
func CanProposeNow(nodeID []byte, tipOffset uint64, elapsed, interval uint64) bool {
	if interval == 0 {
		return true
	}
	return elapsed%interval >= Window(nodeID, tipOffset, interval)
}
