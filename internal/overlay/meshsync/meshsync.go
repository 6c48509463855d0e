// Package meshsync implements the L12 guard path in front of gossip-based
// mesh synchronization: every batch is signature-checked against its
// sender's descriptor keys, individually validated entry-by-entry, and a
// batch with too many malformed entries records a violation against its
// sender (a reputation debit). On repeated violation the sender is
// quarantined until the cooldown has passed and its reputation is above the
// ban threshold. No separate rate limit is applied to such senders
// (spec.md §4.12).
package meshsync

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/snapetech/slskdn-sub011/internal/metrics"
	"github.com/snapetech/slskdn-sub011/internal/overlay/collab"
	"github.com/snapetech/slskdn-sub011/internal/overlay/errs"
	"github.com/snapetech/slskdn-sub011/internal/overlay/reputation"
)

// Entry is one item of a gossip batch — a content hash paired with its
// storage key and size, per spec.md §4.12.
type Entry struct {
	Hash    []byte
	FlacKey string
	Size    int64
}

// Batch is a signed gossip message carrying zero or more entries.
type Batch struct {
	SenderPeerID string
	Entries      []Entry
	Signature    []byte
}

// Config bounds the guard's invalid-entry and quarantine behavior.
type Config struct {
	InvalidEntryThreshold      int // malformed entries in one batch that record a violation against the sender
	MinHashLen                 int
	ViolationWindow            time.Duration
	ViolationsBeforeQuarantine int
	QuarantineCooldown         time.Duration
}

// DefaultConfig matches spec.md §4.12's suggested thresholds.
func DefaultConfig() Config {
	return Config{
		InvalidEntryThreshold:      45,
		MinHashLen:                 20,
		ViolationWindow:            10 * time.Minute,
		ViolationsBeforeQuarantine: 3,
		QuarantineCooldown:         30 * time.Minute,
	}
}

type descriptorLookup interface {
	Descriptor(peerID string) (*collab.PeerDescriptor, bool)
}

type senderState struct {
	violations    []time.Time
	quarantinedAt time.Time
	quarantined   bool
}

// Guard is the entry point every received gossip batch passes through
// before its entries reach the mesh store.
type Guard struct {
	cfg   Config
	descs descriptorLookup
	rep   *reputation.Tracker
	log   collab.ISecurityEventLogger

	mu    sync.Mutex
	state map[string]*senderState
}

// New builds a Guard. descs resolves a sender's current descriptor for
// signature verification; rep and log may be nil to disable reputation
// feedback and security-event reporting respectively.
func New(cfg Config, descs descriptorLookup, rep *reputation.Tracker, log collab.ISecurityEventLogger) *Guard {
	return &Guard{cfg: cfg, descs: descs, rep: rep, log: log, state: make(map[string]*senderState)}
}

// Accept validates batch and reports which entries passed. An error means
// the whole batch is rejected (bad signature, or the sender is currently
// quarantined); a non-nil, possibly-empty entry slice is returned
// otherwise with invalid entries filtered out.
func (g *Guard) Accept(batch *Batch) ([]Entry, error) {
	if g.isQuarantined(batch.SenderPeerID) {
		return nil, errs.New(errs.Policy, fmt.Sprintf("sender %s is quarantined", batch.SenderPeerID))
	}

	if err := g.verifySignature(batch); err != nil {
		return nil, err
	}

	valid := make([]Entry, 0, len(batch.Entries))
	invalid := 0
	for _, e := range batch.Entries {
		if validEntry(e, g.cfg.MinHashLen) {
			valid = append(valid, e)
		} else {
			invalid++
		}
	}

	if invalid >= g.cfg.InvalidEntryThreshold {
		g.recordViolation(batch.SenderPeerID)
	}

	return valid, nil
}

func validEntry(e Entry, minHashLen int) bool {
	return len(e.Hash) >= minHashLen && e.FlacKey != "" && e.Size > 0
}

func (g *Guard) verifySignature(batch *Batch) error {
	if g.descs == nil {
		return nil
	}
	desc, ok := g.descs.Descriptor(batch.SenderPeerID)
	if !ok {
		return errs.New(errs.Auth, "unknown gossip sender descriptor")
	}

	base := signingBase(batch)
	for _, key := range desc.ControlSigningKeys {
		if len(key) != ed25519.PublicKeySize {
			continue
		}
		if ed25519.Verify(key, base, batch.Signature) {
			return nil
		}
	}
	return errs.New(errs.Auth, "gossip batch signature does not verify")
}

func signingBase(batch *Batch) []byte {
	buf := []byte(batch.SenderPeerID)
	for _, e := range batch.Entries {
		buf = append(buf, e.Hash...)
		buf = append(buf, []byte(e.FlacKey)...)
		buf = append(buf, []byte(fmt.Sprintf("%d", e.Size))...)
	}
	return buf
}

// recordViolation logs an invalid-batch violation for peerID and
// quarantines them once ViolationsBeforeQuarantine occur within
// ViolationWindow.
func (g *Guard) recordViolation(peerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.state[peerID]
	if !ok {
		st = &senderState{}
		g.state[peerID] = st
	}

	now := time.Now()
	cutoff := now.Add(-g.cfg.ViolationWindow)
	kept := st.violations[:0]
	for _, t := range st.violations {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	st.violations = append(kept, now)

	metrics.ReputationEvents.WithLabelValues("gossip-invalid-batch").Inc()
	if g.rep != nil {
		_ = g.rep.Record(context.Background(), peerID, "gossip-invalid-batch", -1, "invalid entry threshold exceeded")
	}

	if len(st.violations) >= g.cfg.ViolationsBeforeQuarantine {
		st.quarantined = true
		st.quarantinedAt = now
		metrics.MeshSyncQuarantines.Inc()
		if g.log != nil {
			g.log.Log("mesh-sync-quarantine", peerID, map[string]any{"violations": len(st.violations)})
		}
	}
}

// isQuarantined reports whether peerID is presently quarantined. A
// quarantine lifts automatically once QuarantineCooldown elapses and the
// peer's reputation score is above the ban threshold.
func (g *Guard) isQuarantined(peerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.state[peerID]
	if !ok || !st.quarantined {
		return false
	}

	if time.Since(st.quarantinedAt) < g.cfg.QuarantineCooldown {
		return true
	}

	if g.rep != nil {
		if banned, err := g.rep.IsBanned(context.Background(), peerID); err == nil && banned {
			return true
		}
	}

	st.quarantined = false
	st.violations = nil
	return false
}
