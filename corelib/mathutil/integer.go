// Copyright 2017 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// Copyright 2026 The Exocore Authors
// (modifications)
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

// Package mathutil holds small integer helpers shared by the chain store,
// commit manager and chain synchronizer: overflow-checked offset arithmetic
// and the skip-interval computation used by metadata sampling.
package mathutil

import "math/bits"

// AbsoluteDifference returns |x-y| without risking a signed-integer
// overflow, used to compare a peer's reported tip against the local one.
func AbsoluteDifference(x, y uint64) uint64 {
	if x > y {
		return x - y
	}
	return y - x
}

// SafeAdd returns x+y and reports whether the addition overflowed a uint64.
// Chain store offsets are cumulative byte counts and must never wrap.
func SafeAdd(x, y uint64) (uint64, bool) {
	sum, carryOut := bits.Add64(x, y, 0)
	return sum, carryOut != 0
}

// CeilDiv returns ceil(x/y), or 0 if y is 0.
func CeilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// Skip returns the sampling skip interval for a range of rangeCount items
// reduced to sampledCount samples, with a floor of 1 so the sampler always
// advances.
func Skip(rangeCount, sampledCount int) int {
	if sampledCount <= 0 {
		return rangeCount
	}
	skip := rangeCount / sampledCount
	if skip < 1 {
		return 1
	}
	return skip
}
