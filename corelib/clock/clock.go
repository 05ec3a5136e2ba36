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

// Package clock abstracts wall time so the commit manager's proposal
// expiration and the chain synchronizer's metadata-age checks can be driven
// deterministically in tests (divergence/expiry scenarios need to fast
// forward time without sleeping).
package clock

import "time"

// Clock is the narrow time source every component takes instead of calling
// time.Now directly.
type Clock interface {
	Now() time.Time
}

// System is the production Clock backed by the real wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Mock is a manually-advanced Clock for deterministic tests.
type Mock struct {
	now time.Time
}

func NewMock(start time.Time) *Mock { return &Mock{now: start} }

func (m *Mock) Now() time.Time { return m.now }

func (m *Mock) Advance(d time.Duration) { m.now = m.now.Add(d) }

func (m *Mock) Set(t time.Time) { m.now = t }
