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

package cell

import "github.com/exocore/exocore/operation"

// GenesisHeader returns the header of block 0 for c: offset 0, height 0, an
// empty previous_hash (spec §3 "the genesis block ... is deterministically
// derivable from the cell identity"). The cell's public key is folded into
// ProposedOperationID via a fixed-width digest so two cells with distinct
// identities never produce byte-identical genesis headers even though
// neither carries any operations.
func GenesisHeader(c *Cell) operation.BlockHeader {
	return operation.BlockHeader{
		Offset:              0,
		Height:              0,
		PreviousOffset:      0,
		PreviousHash:        nil,
		ProposedOperationID: genesisSeed(c.PublicKey),
	}
}

// genesisSeed folds a cell's public key into a uint64 so GenesisHeader is a
// pure function of cell identity alone, with no dependency on wall time or a
// locally-minted operation id.
func genesisSeed(publicKey []byte) uint64 {
	var h uint64 = 1469598103934665603 // FNV-1a 64-bit offset basis
	for _, b := range publicKey {
		h ^= uint64(b)
		h *= 1099511628211 // FNV-1a 64-bit prime
	}
	return h
}
