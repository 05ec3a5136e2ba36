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

// Package errs defines the error-kind taxonomy shared by every engine
// component, so the engine core can decide "halt or continue" by inspecting
// a Kind instead of string-matching error messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the engine must react to it.
type Kind int

const (
	// Unknown is the zero value, which KindOf reports for errors that carry
	// no Kind. IsFatal does not treat it as Fatal.
	Unknown Kind = iota
	// Integrity covers hash mismatches, non-contiguous offsets/heights, and
	// signature-quorum shortfalls. Non-fatal: aborts the operation in hand.
	Integrity
	// Divergence marks a peer sample that conflicts with the local chain
	// before a common ancestor is found. Non-fatal unless every peer
	// diverges.
	Divergence
	// NotFound is normal control flow for absent entities.
	NotFound
	// OutOfBound is normal control flow for a chain-store offset that does
	// not start a block.
	OutOfBound
	// Transient covers recoverable transport/backoff failures.
	Transient
	// Fatal is unrecoverable: chain-store write I/O failure, poisoned lock,
	// or unrecoverable config mismatch. The engine halts.
	Fatal
	// Parse covers frame decode failures; the offending message is dropped
	// and the engine continues.
	Parse
)

func (k Kind) String() string {
	switch k {
	case Integrity:
		return "integrity"
	case Divergence:
		return "divergence"
	case NotFound:
		return "not_found"
	case OutOfBound:
		return "out_of_bound"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	case Parse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers up the stack can
// branch on IsFatal without parsing messages.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsFatal reports whether err (or any error it wraps) is classified Fatal.
func IsFatal(err error) bool {
	return KindOf(err) == Fatal
}

// KindOf extracts the Kind of err, walking the Unwrap chain. Errors with no
// attached Kind report Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Sentinel errors for the handle-visible cases named in spec §7.
var (
	// ErrUninitializedChain is returned by Handle.LastBlock when the chain
	// store holds no block yet.
	ErrUninitializedChain = New(NotFound, "chain not yet initialized")
	// ErrDiverged names a query that straddles a chain divergence. No
	// handle call returns it: such a query is not detected.
	ErrDiverged = New(Integrity, "chain diverged")
	// ErrInnerGone is returned by any handle call made after the engine
	// has shut down (all strong references dropped).
	ErrInnerGone = New(Fatal, "engine is gone")
)
