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

// Package framing implements the one content-addressed envelope used by
// both the chain store and the wire protocol: a little-endian u32 size
// prefix, the payload, and a multihash sealing the payload. Keeping this
// separate from any particular message type means corruption is caught at
// decode time wherever a frame is read, not smuggled into later
// computation.
package framing

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/multiformats/go-multihash"
)

// SealCode is the multihash function used to seal every frame. SHA2-256 is
// the conservative, universally-supported default in the multihash table.
const SealCode = multihash.SHA2_256

// Seal returns payload wrapped as {u32 size}{payload}{multihash(payload)}.
func Seal(payload []byte) ([]byte, error) {
	sum, err := multihash.Sum(payload, SealCode, -1)
	if err != nil {
		return nil, fmt.Errorf("framing: hash payload: %w", err)
	}
	buf := make([]byte, 4+len(payload)+len(sum))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(payload)))
	n := copy(buf[4:], payload)
	copy(buf[4+n:], sum)
	return buf, nil
}

// Unseal reads one frame from r, verifying its multihash, and returns the
// payload plus the total number of bytes consumed.
func Unseal(r io.Reader) (payload []byte, consumed int, err error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, 0, fmt.Errorf("framing: read size prefix: %w", err)
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])
	payload = make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, fmt.Errorf("framing: read payload: %w", err)
	}

	expected, err := multihash.Sum(payload, SealCode, -1)
	if err != nil {
		return nil, 0, fmt.Errorf("framing: hash payload: %w", err)
	}
	actual := make([]byte, len(expected))
	if _, err := io.ReadFull(r, actual); err != nil {
		return nil, 0, fmt.Errorf("framing: read seal: %w", err)
	}
	if !bytesEqual(actual, expected) {
		return nil, 0, fmt.Errorf("framing: seal mismatch: corrupt frame")
	}
	return payload, 4 + len(payload) + len(actual), nil
}

// UnsealBytes is Unseal over an in-memory buffer, returning the number of
// bytes of buf that made up the frame.
func UnsealBytes(buf []byte) (payload []byte, consumed int, err error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("framing: buffer too small for size prefix")
	}
	size := binary.LittleEndian.Uint32(buf[:4])
	end := 4 + int(size)
	if end > len(buf) {
		return nil, 0, fmt.Errorf("framing: buffer too small for payload")
	}
	payload = buf[4:end]
	expected, err := multihash.Sum(payload, SealCode, -1)
	if err != nil {
		return nil, 0, fmt.Errorf("framing: hash payload: %w", err)
	}
	sealEnd := end + len(expected)
	if sealEnd > len(buf) {
		return nil, 0, fmt.Errorf("framing: buffer too small for seal")
	}
	if !bytesEqual(buf[end:sealEnd], expected) {
		return nil, 0, fmt.Errorf("framing: seal mismatch: corrupt frame")
	}
	return payload, sealEnd, nil
}

// Multihash returns the multihash of payload using SealCode, the primitive
// used for block-header linking (previous_hash).
func Multihash(payload []byte) ([]byte, error) {
	sum, err := multihash.Sum(payload, SealCode, -1)
	if err != nil {
		return nil, fmt.Errorf("framing: hash payload: %w", err)
	}
	return []byte(sum), nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
