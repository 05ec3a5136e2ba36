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

package pendingstore

// DefaultBucketWidth is the default size of one id-range bucket that
// pendingsync reconciles independently (spec §4.3: "the id space is
// partitioned into ranges by fixed-size buckets of operation ids"). Each
// bucket covers [n*width, (n+1)*width) of the operation_id space.
//
//   bucket 0: [0, 1<<16)
//   bucket 1: [1<<16, 2<<16)
//   ...
//
// A width of 2^16 keeps a single bucket's range summary cheap to compute
// even under sustained operation issuance (spec §9: cells stay in the "few
// tens of nodes" regime, never planet-scale).
const DefaultBucketWidth uint64 = 1 << 16

// BucketOf returns the index of the bucket containing id.
func BucketOf(id uint64, width uint64) uint64 { return id / width }

// BucketRange returns the half-open [from, to) operation_id range covered
// by bucket.
func BucketRange(bucket, width uint64) (from, to uint64) {
	return bucket * width, (bucket + 1) * width
}
