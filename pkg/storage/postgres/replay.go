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

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/snapetech/slskdn-sub011/pkg/storage"
)

// ReplayStore implements storage.ReplayStore for PostgreSQL.
type ReplayStore struct {
	db *pgxpool.Pool
}

// CheckAndStore atomically checks if (peerID, messageID) has been seen and
// records it if not.
func (r *ReplayStore) CheckAndStore(ctx context.Context, peerID, messageID string, expiresAt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	checkQuery := `SELECT EXISTS(SELECT 1 FROM replay_records WHERE peer_id = $1 AND message_id = $2 AND expires_at > NOW())`
	if err := tx.QueryRow(ctx, checkQuery, peerID, messageID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check replay record: %w", err)
	}
	if exists {
		return fmt.Errorf("message already seen: peer=%s message=%s", peerID, messageID)
	}

	insertQuery := `
		INSERT INTO replay_records (peer_id, message_id, seen_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (peer_id, message_id) DO UPDATE SET seen_at = $3, expires_at = $4
	`
	if _, err := tx.Exec(ctx, insertQuery, peerID, messageID, time.Now(), expiresAt); err != nil {
		return fmt.Errorf("failed to store replay record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsUsed checks if (peerID, messageID) has already been recorded.
func (r *ReplayStore) IsUsed(ctx context.Context, peerID, messageID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM replay_records WHERE peer_id = $1 AND message_id = $2 AND expires_at > NOW())`

	var used bool
	if err := r.db.QueryRow(ctx, query, peerID, messageID).Scan(&used); err != nil {
		return false, fmt.Errorf("failed to check replay record: %w", err)
	}
	return used, nil
}

// DeleteExpired deletes all expired replay records.
func (r *ReplayStore) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM replay_records WHERE expires_at <= NOW()`

	result, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired replay records: %w", err)
	}
	return result.RowsAffected(), nil
}

// Count returns the number of live replay records.
func (r *ReplayStore) Count(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM replay_records WHERE expires_at > NOW()`

	var count int64
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count replay records: %w", err)
	}
	return count, nil
}

// get retrieves a single replay record by key.
func (r *ReplayStore) get(ctx context.Context, peerID, messageID string) (*storage.ReplayRecord, error) {
	query := `
		SELECT peer_id, message_id, seen_at, expires_at
		FROM replay_records
		WHERE peer_id = $1 AND message_id = $2
	`

	var rec storage.ReplayRecord
	err := r.db.QueryRow(ctx, query, peerID, messageID).Scan(&rec.PeerID, &rec.MessageID, &rec.SeenAt, &rec.ExpiresAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("replay record not found: peer=%s message=%s", peerID, messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get replay record: %w", err)
	}
	return &rec, nil
}
