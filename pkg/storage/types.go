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

package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned by ReputationStore.Get (and Delete) when no record
// exists for the given peer id.
var ErrNotFound = errors.New("storage: record not found")

// ReplayRecord is a durably stored replay-cache entry, keyed by the
// composite (peer id, message id) pair rather than a bare nonce string.
type ReplayRecord struct {
	PeerID    string    `json:"peer_id"`
	MessageID string    `json:"message_id"`
	SeenAt    time.Time `json:"seen_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReputationRecord is a durably stored per-peer reputation entry. EventLog
// carries an opaque, caller-encoded event history so this package has no
// dependency on the reputation scoring rules themselves.
type ReputationRecord struct {
	PeerID      string    `json:"peer_id"`
	Score       int       `json:"score"`
	LastUpdated time.Time `json:"last_updated"`
	EventLog    []byte    `json:"event_log,omitempty"`
}
