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

// Package pendingstore is the in-memory table of operations that have not
// yet been committed into the chain (spec §4.2). It arranges operations for
// three access patterns: id-ordered range iteration, group lookup, and
// commit-status tracking, without ever touching the bytes of a stored
// operation after insertion.
package pendingstore

import (
	"sync"

	"github.com/google/btree"

	"github.com/exocore/exocore/operation"
)

// CommitState discriminates the three shapes a pending operation's commit
// status can take.
type CommitState int

const (
	Unknown CommitState = iota
	Pending
	Committed
)

// CommitStatus is the mutable half of a stored operation; everything else
// about it is immutable from the moment it is inserted.
type CommitStatus struct {
	State        CommitState
	BlockOffset  uint64
	BlockHeight  uint64
}

// Stored pairs an operation with its current commit status.
type Stored struct {
	Op     operation.Operation
	Status CommitStatus
}

type idItem operation.ID

func (a idItem) Less(than btree.Item) bool { return a < than.(idItem) }

// Store is the pending operations table. It is safe for concurrent use; the
// engine additionally serializes all access to it under its own coarser
// lock, so the locking here is belt and suspenders against internal misuse
// (component tests that drive it directly without that outer lock).
type Store struct {
	mu      sync.RWMutex
	byID    map[operation.ID]*Stored
	byGroup map[operation.ID][]operation.ID
	ids     *btree.BTree
}

// New creates an empty pending store.
func New() *Store {
	return &Store{
		byID:    make(map[operation.ID]*Stored),
		byGroup: make(map[operation.ID][]operation.ID),
		ids:     btree.New(32),
	}
}

// PutOperation inserts op if its id is new, reporting whether it already
// existed. A duplicate put is not an error: pending sync and direct pushes
// both call this path and must tolerate replays (spec §8: "put_operation is
// idempotent").
func (s *Store) PutOperation(op operation.Operation) (existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[op.OperationID]; ok {
		return true
	}
	s.byID[op.OperationID] = &Stored{Op: op, Status: CommitStatus{State: Pending}}
	s.ids.ReplaceOrInsert(idItem(op.OperationID))
	s.byGroup[op.GroupID] = append(s.byGroup[op.GroupID], op.OperationID)
	return false
}

// GetOperation returns the stored operation and its commit status.
func (s *Store) GetOperation(id operation.ID) (Stored, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byID[id]
	if !ok {
		return Stored{}, false
	}
	return *st, true
}

// GetGroupOperations returns every operation sharing groupID, in the order
// they were inserted (e.g. a proposal followed by its signatures).
func (s *Store) GetGroupOperations(groupID operation.ID) ([]Stored, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, ok := s.byGroup[groupID]
	if !ok {
		return nil, false
	}
	out := make([]Stored, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.byID[id])
	}
	return out, true
}

// OperationsIter returns every stored operation with id in [from, to), in
// ascending id order.
func (s *Store) OperationsIter(from, to operation.ID) []Stored {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Stored
	s.ids.AscendRange(idItem(from), idItem(to), func(item btree.Item) bool {
		out = append(out, *s.byID[operation.ID(item.(idItem))])
		return true
	})
	return out
}

// All returns every stored operation in id order; used by the commit
// manager's once-per-tick scan (spec §4.4 step 1).
func (s *Store) All() []Stored {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Stored, 0, s.ids.Len())
	s.ids.Ascend(func(item btree.Item) bool {
		out = append(out, *s.byID[operation.ID(item.(idItem))])
		return true
	})
	return out
}

// UpdateCommitStatus sets a stored operation's commit status, leaving its
// bytes untouched (spec §4.2 invariant).
func (s *Store) UpdateCommitStatus(id operation.ID, status CommitStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byID[id]
	if !ok {
		return false
	}
	st.Status = status
	return true
}

// DeleteOperations removes every listed id, used by the commit manager's
// cleanup step (spec §4.4 step 6).
func (s *Store) DeleteOperations(ids []operation.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		st, ok := s.byID[id]
		if !ok {
			continue
		}
		delete(s.byID, id)
		s.ids.Delete(idItem(id))
		s.removeFromGroupLocked(st.Op.GroupID, id)
	}
}

func (s *Store) removeFromGroupLocked(groupID, id operation.ID) {
	group := s.byGroup[groupID]
	for i, existing := range group {
		if existing == id {
			s.byGroup[groupID] = append(group[:i], group[i+1:]...)
			break
		}
	}
	if len(s.byGroup[groupID]) == 0 {
		delete(s.byGroup, groupID)
	}
}

// Len returns the number of operations currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
