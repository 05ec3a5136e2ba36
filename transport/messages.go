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

package transport

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/exocore/exocore/corelib/framing"
	"github.com/exocore/exocore/operation"
)

// PendingRange is one {id_from, id_to, count, hash} tuple a pending-sync
// request or response carries (spec §4.3, §6). Operations is populated only
// when the sender decided, by its size heuristic, to send full bodies
// rather than just headers for a mismatched range.
type PendingRange struct {
	IDFrom     uint64
	IDTo       uint64
	Count      int
	Hash       uint64 // order-independent XOR digest of the range's operation ids
	Headers    []PendingOperationHeader
	Operations []operation.Operation
}

// PendingOperationHeader is the lightweight form exchanged when a range
// mismatches but sending full operation bodies isn't warranted yet.
type PendingOperationHeader struct {
	OperationID operation.ID
	GroupID     operation.ID
}

// PendingSyncRequest asks a peer to reconcile the listed ranges.
type PendingSyncRequest struct {
	Ranges []PendingRange
}

// PendingSyncResponse carries whatever the peer found for the requested
// ranges: matching ranges are simply absent from Ranges.
type PendingSyncResponse struct {
	Ranges []PendingRange
}

// RequestedDetails selects whether a ChainSyncRequest wants a metadata
// sample or actual block bodies.
type RequestedDetails int

const (
	RequestMetadata RequestedDetails = iota
	RequestBlocks
)

// BlockMetadata is the sampled per-block summary chain sync compares across
// peers to find a common ancestor (spec §4.5, §6).
type BlockMetadata struct {
	Offset         uint64
	Height         uint64
	Hash           []byte
	PreviousOffset uint64
	PreviousHash   []byte
	BlockSize      uint32
	OperationsSize uint32
	SignaturesSize uint32
}

// ChainSyncRequest asks a peer either for a metadata sample over
// [FromOffset, ToOffset) or for the actual blocks in that range.
type ChainSyncRequest struct {
	FromOffset      uint64
	ToOffset        uint64
	RequestedDetail RequestedDetails
	MetadataSample  []BlockMetadata // local sample, so the peer can reply with its own comparable sample
}

// ChainSyncPayloadKind discriminates ChainSyncResponse's payload.
type ChainSyncPayloadKind int

const (
	PayloadMetadata ChainSyncPayloadKind = iota
	PayloadBlocks
)

// ChainSyncResponse answers a ChainSyncRequest. A Blocks-kind response may
// be one of several, each bounded by blocks_max_send_size (spec §6).
type ChainSyncResponse struct {
	FromOffset  uint64
	ToOffset    uint64
	PayloadKind ChainSyncPayloadKind
	Metadata    []BlockMetadata
	Blocks      []operation.Block
}

func init() {
	gob.Register(PendingSyncRequest{})
	gob.Register(PendingSyncResponse{})
	gob.Register(ChainSyncRequest{})
	gob.Register(ChainSyncResponse{})
}

// EncodeFrame seals v (one of the message types above) into a
// multihash-sealed frame suitable for Message.Payload.
func EncodeFrame(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("transport: encode: %w", err)
	}
	return framing.Seal(buf.Bytes())
}

// DecodeFrame is the inverse of EncodeFrame.
func DecodeFrame(b []byte) (any, error) {
	payload, _, err := framing.UnsealBytes(b)
	if err != nil {
		return nil, err
	}
	var v any
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&v); err != nil {
		return nil, fmt.Errorf("transport: decode: %w", err)
	}
	return v, nil
}
