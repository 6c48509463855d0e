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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/snapetech/slskdn-sub011/pkg/storage"
)

// ReputationStore implements storage.ReputationStore for PostgreSQL.
type ReputationStore struct {
	db *pgxpool.Pool
}

func (r *ReputationStore) Upsert(ctx context.Context, rec *storage.ReputationRecord) error {
	query := `
		INSERT INTO reputation_records (peer_id, score, last_updated, event_log)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (peer_id) DO UPDATE SET
			score = $2, last_updated = $3, event_log = $4
	`
	_, err := r.db.Exec(ctx, query, rec.PeerID, rec.Score, rec.LastUpdated, rec.EventLog)
	if err != nil {
		return fmt.Errorf("failed to upsert reputation record: %w", err)
	}
	return nil
}

func (r *ReputationStore) Get(ctx context.Context, peerID string) (*storage.ReputationRecord, error) {
	query := `SELECT peer_id, score, last_updated, event_log FROM reputation_records WHERE peer_id = $1`

	var rec storage.ReputationRecord
	err := r.db.QueryRow(ctx, query, peerID).Scan(&rec.PeerID, &rec.Score, &rec.LastUpdated, &rec.EventLog)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, peerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reputation record: %w", err)
	}
	return &rec, nil
}

func (r *ReputationStore) Delete(ctx context.Context, peerID string) error {
	query := `DELETE FROM reputation_records WHERE peer_id = $1`

	result, err := r.db.Exec(ctx, query, peerID)
	if err != nil {
		return fmt.Errorf("failed to delete reputation record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, peerID)
	}
	return nil
}

func (r *ReputationStore) List(ctx context.Context) ([]*storage.ReputationRecord, error) {
	query := `SELECT peer_id, score, last_updated, event_log FROM reputation_records`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list reputation records: %w", err)
	}
	defer rows.Close()

	var out []*storage.ReputationRecord
	for rows.Next() {
		var rec storage.ReputationRecord
		if err := rows.Scan(&rec.PeerID, &rec.Score, &rec.LastUpdated, &rec.EventLog); err != nil {
			return nil, fmt.Errorf("failed to scan reputation record: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reputation records: %w", err)
	}
	return out, nil
}
