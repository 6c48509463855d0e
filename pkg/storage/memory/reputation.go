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
	"fmt"

	"github.com/snapetech/slskdn-sub011/pkg/storage"
)

// ReputationStore implements storage.ReputationStore.
type ReputationStore struct {
	store *Store
}

func (r *ReputationStore) Upsert(ctx context.Context, rec *storage.ReputationRecord) error {
	r.store.reputationMu.Lock()
	defer r.store.reputationMu.Unlock()

	recCopy := *rec
	if rec.EventLog != nil {
		recCopy.EventLog = make([]byte, len(rec.EventLog))
		copy(recCopy.EventLog, rec.EventLog)
	}
	r.store.reputation[rec.PeerID] = &recCopy
	return nil
}

func (r *ReputationStore) Get(ctx context.Context, peerID string) (*storage.ReputationRecord, error) {
	r.store.reputationMu.RLock()
	defer r.store.reputationMu.RUnlock()

	rec, exists := r.store.reputation[peerID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, peerID)
	}
	recCopy := *rec
	return &recCopy, nil
}

func (r *ReputationStore) Delete(ctx context.Context, peerID string) error {
	r.store.reputationMu.Lock()
	defer r.store.reputationMu.Unlock()

	if _, exists := r.store.reputation[peerID]; !exists {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, peerID)
	}
	delete(r.store.reputation, peerID)
	return nil
}

func (r *ReputationStore) List(ctx context.Context) ([]*storage.ReputationRecord, error) {
	r.store.reputationMu.RLock()
	defer r.store.reputationMu.RUnlock()

	out := make([]*storage.ReputationRecord, 0, len(r.store.reputation))
	for _, rec := range r.store.reputation {
		recCopy := *rec
		out = append(out, &recCopy)
	}
	return out, nil
}
