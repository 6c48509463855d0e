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
	"time"

	"github.com/snapetech/slskdn-sub011/pkg/storage"
)

// ReplayStore implements storage.ReplayStore.
type ReplayStore struct {
	store *Store
}

func (r *ReplayStore) CheckAndStore(ctx context.Context, peerID, messageID string, expiresAt time.Time) error {
	r.store.replayMu.Lock()
	defer r.store.replayMu.Unlock()

	key := replayKey(peerID, messageID)
	if existing, exists := r.store.replay[key]; exists && time.Now().Before(existing.ExpiresAt) {
		return fmt.Errorf("message already seen: peer=%s message=%s", peerID, messageID)
	}

	r.store.replay[key] = &storage.ReplayRecord{
		PeerID:    peerID,
		MessageID: messageID,
		SeenAt:    time.Now(),
		ExpiresAt: expiresAt,
	}

	return nil
}

func (r *ReplayStore) IsUsed(ctx context.Context, peerID, messageID string) (bool, error) {
	r.store.replayMu.RLock()
	defer r.store.replayMu.RUnlock()

	rec, exists := r.store.replay[replayKey(peerID, messageID)]
	if !exists {
		return false, nil
	}
	if time.Now().After(rec.ExpiresAt) {
		return false, nil
	}
	return true, nil
}

func (r *ReplayStore) DeleteExpired(ctx context.Context) (int64, error) {
	r.store.replayMu.Lock()
	defer r.store.replayMu.Unlock()

	now := time.Now()
	var count int64
	for key, rec := range r.store.replay {
		if now.After(rec.ExpiresAt) {
			delete(r.store.replay, key)
			count++
		}
	}
	return count, nil
}

func (r *ReplayStore) Count(ctx context.Context) (int64, error) {
	r.store.replayMu.RLock()
	defer r.store.replayMu.RUnlock()

	now := time.Now()
	var count int64
	for _, rec := range r.store.replay {
		if now.Before(rec.ExpiresAt) {
			count++
		}
	}
	return count, nil
}
