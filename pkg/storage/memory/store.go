// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package memory

import (
	"context"
	"sync"

	"github.com/snapetech/slskdn-sub011/pkg/storage"
)

// Store implements storage.Store with in-memory maps. Intended for tests and
// single-node deployments that rely solely on the in-process caches and use
// this only as an optional warm-restart snapshot.
type Store struct {
	replay     map[string]*storage.ReplayRecord
	reputation map[string]*storage.ReputationRecord

	replayMu     sync.RWMutex
	reputationMu sync.RWMutex

	replayStore     *ReplayStore
	reputationStore *ReputationStore
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	s := &Store{
		replay:     make(map[string]*storage.ReplayRecord),
		reputation: make(map[string]*storage.ReputationRecord),
	}

	s.replayStore = &ReplayStore{store: s}
	s.reputationStore = &ReputationStore{store: s}

	return s
}

// ReplayStore returns the replay store.
func (s *Store) ReplayStore() storage.ReplayStore {
	return s.replayStore
}

// ReputationStore returns the reputation store.
func (s *Store) ReputationStore() storage.ReputationStore {
	return s.reputationStore
}

// Close closes the store (no-op for memory store).
func (s *Store) Close() error {
	return nil
}

// Ping checks the store (always succeeds for memory store).
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Clear removes all data. Useful for tests.
func (s *Store) Clear() {
	s.replayMu.Lock()
	s.replay = make(map[string]*storage.ReplayRecord)
	s.replayMu.Unlock()

	s.reputationMu.Lock()
	s.reputation = make(map[string]*storage.ReputationRecord)
	s.reputationMu.Unlock()
}

func replayKey(peerID, messageID string) string {
	return peerID + "\x00" + messageID
}
