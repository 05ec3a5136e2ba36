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

package operation

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/exocore/exocore/corelib/framing"
)

func init() {
	gob.Register(Entry{})
	gob.Register(PendingIgnore{})
	gob.Register(ProposedBlock{})
	gob.Register(BlockVote{})
	gob.Register(BlockRefusal{})
}

// wireOperation mirrors Operation but with the interface Payload boxed as a
// concrete, gob-friendly value. Operation itself stays an exported,
// ergonomic type; this is purely a codec concern.
type wireOperation struct {
	OperationID ID
	GroupID     ID
	NodeID      [20]byte
	Payload     Payload
	Signature   []byte
}

// Encode serializes an Operation with gob, the simplest codec available for
// an engine-internal wire format that (unlike a public chain's transaction
// encoding) has no external compatibility contract to keep stable — see
// DESIGN.md for why this concern is deliberately left on the standard
// library.
func Encode(op Operation) ([]byte, error) {
	var buf bytes.Buffer
	w := wireOperation{
		OperationID: op.OperationID,
		GroupID:     op.GroupID,
		NodeID:      op.NodeID,
		Payload:     op.Payload,
		Signature:   op.Signature,
	}
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, fmt.Errorf("operation: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) (Operation, error) {
	var w wireOperation
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&w); err != nil {
		return Operation{}, fmt.Errorf("operation: decode: %w", err)
	}
	return Operation{
		OperationID: w.OperationID,
		GroupID:     w.GroupID,
		NodeID:      w.NodeID,
		Payload:     w.Payload,
		Signature:   w.Signature,
	}, nil
}

// EncodeUnsigned encodes everything except the signature, the canonical
// form a signature is computed and verified over.
func EncodeUnsigned(op Operation) ([]byte, error) {
	unsigned := op
	unsigned.Signature = nil
	return Encode(unsigned)
}

// SigningDigest returns the multihash of op's unsigned encoding: the bytes
// a detached signature covers.
func SigningDigest(op Operation) ([]byte, error) {
	enc, err := EncodeUnsigned(op)
	if err != nil {
		return nil, err
	}
	return framing.Multihash(enc)
}

// Frame seals an encoded operation with the shared framing envelope, the
// form operations take inside a block body and on the wire.
func Frame(op Operation) ([]byte, error) {
	enc, err := Encode(op)
	if err != nil {
		return nil, err
	}
	return framing.Seal(enc)
}

// DecodeFrame is the inverse of Frame: it verifies the envelope, then
// decodes the operation.
func DecodeFrame(b []byte) (Operation, int, error) {
	payload, n, err := framing.UnsealBytes(b)
	if err != nil {
		return Operation{}, 0, err
	}
	op, err := Decode(payload)
	if err != nil {
		return Operation{}, 0, err
	}
	return op, n, nil
}

// EncodeHeader serializes a BlockHeader with gob, used both for the
// multihash previous_hash chaining and for the chain-store header frame.
func EncodeHeader(h BlockHeader) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&h); err != nil {
		return nil, fmt.Errorf("operation: encode header: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeHeader(b []byte) (BlockHeader, error) {
	var h BlockHeader
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&h); err != nil {
		return BlockHeader{}, fmt.Errorf("operation: decode header: %w", err)
	}
	return h, nil
}

// HeaderHash returns the multihash of h's encoding, used as the next
// block's previous_hash (spec §3 invariant).
func HeaderHash(h BlockHeader) ([]byte, error) {
	enc, err := EncodeHeader(h)
	if err != nil {
		return nil, err
	}
	return framing.Multihash(enc)
}

// HeaderSigningDigest is the canonical hash a chain-role node signs and a
// verifier checks quorum against (spec §4.4 step 3, §8 invariant 2).
// OperationsSize and SignaturesSize are cleared before hashing: both are
// only known once the proposal is finalized at commit time (operations
// framed, signatures collected), so a signer voting on a NextPotential
// proposal cannot have signed over their eventual values. Every other
// header field is fixed at proposal time and is covered as-is.
func HeaderSigningDigest(h BlockHeader) ([]byte, error) {
	h.OperationsSize = 0
	h.SignaturesSize = 0
	return HeaderHash(h)
}

// FrameHeader seals an encoded header with the shared framing envelope.
func FrameHeader(h BlockHeader) ([]byte, error) {
	enc, err := EncodeHeader(h)
	if err != nil {
		return nil, err
	}
	return framing.Seal(enc)
}

// DecodeHeaderFrame is the inverse of FrameHeader.
func DecodeHeaderFrame(b []byte) (BlockHeader, int, error) {
	payload, n, err := framing.UnsealBytes(b)
	if err != nil {
		return BlockHeader{}, 0, err
	}
	h, err := DecodeHeader(payload)
	if err != nil {
		return BlockHeader{}, 0, err
	}
	return h, n, nil
}

// EncodeSignatures serializes the signatures frame for a block.
func EncodeSignatures(sigs []Signature) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&sigs); err != nil {
		return nil, fmt.Errorf("operation: encode signatures: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeSignatures(b []byte) ([]Signature, error) {
	var sigs []Signature
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&sigs); err != nil {
		return nil, fmt.Errorf("operation: decode signatures: %w", err)
	}
	return sigs, nil
}

// FrameSignatures seals an encoded signatures list.
func FrameSignatures(sigs []Signature) ([]byte, error) {
	enc, err := EncodeSignatures(sigs)
	if err != nil {
		return nil, err
	}
	return framing.Seal(enc)
}

func DecodeSignaturesFrame(b []byte) ([]Signature, int, error) {
	payload, n, err := framing.UnsealBytes(b)
	if err != nil {
		return nil, 0, err
	}
	sigs, err := DecodeSignatures(payload)
	if err != nil {
		return nil, 0, err
	}
	return sigs, n, nil
}
