package collab

import (
	"context"
	"sync"
	"time"

	"github.com/snapetech/slskdn-sub011/internal/overlay/errs"
)

type dhtEntry struct {
	value     []byte
	expiresAt time.Time
}

// LocalDHT is an in-process, single-node IDhtClient: a plain map guarded by
// a mutex, with no routing table and no peer traffic. Kademlia internals
// are out of scope for the overlay (spec.md §1), so this is the safe
// startup default for a single node or for tests; a real deployment
// supplies its own IDhtClient backed by an actual DHT implementation.
type LocalDHT struct {
	mu   sync.RWMutex
	data map[string]dhtEntry
}

// NewLocalDHT builds an empty LocalDHT.
func NewLocalDHT() *LocalDHT {
	return &LocalDHT{data: make(map[string]dhtEntry)}
}

// GetRaw returns the value stored under key, or a Storage error if absent
// or expired.
func (d *LocalDHT) GetRaw(ctx context.Context, key string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.data[key]
	if !ok {
		return nil, errs.New(errs.Storage, "key not found: "+key)
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return nil, errs.New(errs.Storage, "key expired: "+key)
	}
	return entry.value, nil
}

// Put stores value under key. ttl of zero means no expiry.
func (d *LocalDHT) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	d.data[key] = dhtEntry{value: value, expiresAt: expiresAt}
	return nil
}

// FindNode always returns an empty result: a single-node stand-in has no
// routing table to walk.
func (d *LocalDHT) FindNode(ctx context.Context, target string) ([]string, error) {
	return nil, nil
}

// Ping always succeeds: there is no remote peer to actually reach.
func (d *LocalDHT) Ping(ctx context.Context, peer string) error {
	return nil
}
