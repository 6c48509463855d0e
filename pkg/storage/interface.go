package storage

import (
	"context"
	"time"
)

// ReplayStore defines the interface for durable replay-record persistence
// across process restarts or across a cluster of nodes sharing one
// database. internal/overlay/replay.Cache does not use it; that cache is
// in-memory only.
type ReplayStore interface {
	// CheckAndStore atomically checks whether (peerID, messageID) has been
	// seen and records it if not.
	CheckAndStore(ctx context.Context, peerID, messageID string, expiresAt time.Time) error

	// IsUsed reports whether (peerID, messageID) has already been recorded
	// and has not yet expired.
	IsUsed(ctx context.Context, peerID, messageID string) (bool, error)

	// DeleteExpired deletes all expired replay records.
	DeleteExpired(ctx context.Context) (int64, error)

	// Count returns the number of live (non-expired) replay records.
	Count(ctx context.Context) (int64, error)
}

// ReputationStore defines the interface for durable peer-reputation
// persistence, backing internal/overlay/reputation.Tracker.
type ReputationStore interface {
	// Upsert creates or replaces the reputation record for a peer.
	Upsert(ctx context.Context, rec *ReputationRecord) error

	// Get retrieves the reputation record for a peer.
	Get(ctx context.Context, peerID string) (*ReputationRecord, error)

	// Delete removes the reputation record for a peer.
	Delete(ctx context.Context, peerID string) error

	// List returns all stored reputation records, for warm-start recovery.
	List(ctx context.Context) ([]*ReputationRecord, error)
}

// Store combines all storage interfaces exposed by a backend (memory or
// postgres).
type Store interface {
	ReplayStore() ReplayStore
	ReputationStore() ReputationStore

	// Close closes the storage connection.
	Close() error

	// Ping checks the storage connection.
	Ping(ctx context.Context) error
}
