package reputation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/snapetech/slskdn-sub011/internal/metrics"
	pkgstorage "github.com/snapetech/slskdn-sub011/pkg/storage"
)

// Event is a single scoring event recorded against a peer.
type Event struct {
	Kind   string    `json:"kind"`
	Delta  int       `json:"delta"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Config controls scoring thresholds and decay behavior.
type Config struct {
	// BanThreshold is the score at or below which a peer is considered banned.
	BanThreshold int
	// HalfLife is the exponential decay half-life applied to scores on each
	// DecayAndCleanup sweep.
	HalfLife time.Duration
	// DecayInterval is how often the background sweep runs.
	DecayInterval time.Duration
	// RetentionDays: entries whose LastUpdated is older than this are
	// removed outright during a sweep, regardless of score.
	RetentionDays int
	// MaxEvents bounds the retained per-peer event history.
	MaxEvents int
}

// DefaultConfig matches spec.md's suggested starting values: a peer is
// quarantined at a score of -10, and scores decay toward zero with a
// 7-day half-life.
func DefaultConfig() Config {
	return Config{
		BanThreshold:  -10,
		HalfLife:      7 * 24 * time.Hour,
		DecayInterval: time.Minute,
		RetentionDays: 30,
		MaxEvents:     64,
	}
}

// Tracker maintains peer reputation scores, persisted (encrypted) via the
// supplied ReputationStore and Protector.
type Tracker struct {
	store     pkgstorage.ReputationStore
	protector Protector
	cfg       Config

	mu     sync.Mutex
	tick   *time.Ticker
	stop   chan struct{}
	closed bool
}

// New builds a Tracker. Call Close to stop its background decay loop.
func New(store pkgstorage.ReputationStore, protector Protector, cfg Config) *Tracker {
	t := &Tracker{
		store:     store,
		protector: protector,
		cfg:       cfg,
		tick:      time.NewTicker(cfg.DecayInterval),
		stop:      make(chan struct{}),
	}
	go t.decayLoop()
	return t
}

// Record applies a scoring delta for peerID, persisting the updated score
// and a bounded event history.
func (t *Tracker) Record(ctx context.Context, peerID string, kind string, delta int, reason string) error {
	rec, events, err := t.loadOrInit(ctx, peerID)
	if err != nil {
		return err
	}

	rec.Score += delta
	events = append(events, Event{Kind: kind, Delta: delta, At: time.Now(), Reason: reason})
	if len(events) > t.cfg.MaxEvents {
		events = events[len(events)-t.cfg.MaxEvents:]
	}

	metrics.ReputationEvents.WithLabelValues(kind).Inc()
	return t.save(ctx, rec, events)
}

// Score returns the peer's current score, or 0 if the peer has no record.
func (t *Tracker) Score(ctx context.Context, peerID string) (int, error) {
	rec, err := t.store.Get(ctx, peerID)
	if errors.Is(err, pkgstorage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reputation: get %s: %w", peerID, err)
	}
	return rec.Score, nil
}

// IsBanned reports whether peerID's current score is at or below the ban
// threshold.
func (t *Tracker) IsBanned(ctx context.Context, peerID string) (bool, error) {
	score, err := t.Score(ctx, peerID)
	if err != nil {
		return false, err
	}
	return score <= t.cfg.BanThreshold, nil
}

// Events returns the bounded event history recorded for peerID.
func (t *Tracker) Events(ctx context.Context, peerID string) ([]Event, error) {
	rec, err := t.store.Get(ctx, peerID)
	if errors.Is(err, pkgstorage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reputation: get %s: %w", peerID, err)
	}
	if len(rec.EventLog) == 0 {
		return nil, nil
	}
	plain, err := t.protector.Unprotect(rec.EventLog)
	if err != nil {
		return nil, fmt.Errorf("reputation: unprotect events for %s: %w", peerID, err)
	}
	return decodeEvents(plain), nil
}

// DecayAndCleanup exponentially decays every stored peer's score toward
// zero using the configured half-life, and removes records that have
// either decayed to exactly zero or gone stale beyond RetentionDays. It is
// called on every tick but is also exposed directly so callers can force
// an off-cycle sweep (e.g. in tests).
func (t *Tracker) DecayAndCleanup(ctx context.Context) error {
	records, err := t.store.List(ctx)
	if err != nil {
		return fmt.Errorf("reputation: list: %w", err)
	}

	now := time.Now()
	retention := time.Duration(t.cfg.RetentionDays) * 24 * time.Hour
	banned := 0

	for _, rec := range records {
		if t.cfg.RetentionDays > 0 && now.Sub(rec.LastUpdated) > retention {
			if err := t.store.Delete(ctx, rec.PeerID); err != nil {
				return fmt.Errorf("reputation: delete %s: %w", rec.PeerID, err)
			}
			continue
		}

		decayed := decayExponential(rec.Score, t.cfg.DecayInterval, t.cfg.HalfLife)
		if decayed == rec.Score {
			if decayed <= t.cfg.BanThreshold {
				banned++
			}
			continue
		}
		rec.Score = decayed
		rec.LastUpdated = now
		if decayed == 0 {
			if err := t.store.Delete(ctx, rec.PeerID); err != nil {
				return fmt.Errorf("reputation: delete %s: %w", rec.PeerID, err)
			}
			continue
		}
		if decayed <= t.cfg.BanThreshold {
			banned++
		}
		if err := t.store.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("reputation: upsert %s: %w", rec.PeerID, err)
		}
	}

	metrics.PeersBanned.Set(float64(banned))
	return nil
}

// Close stops the background decay loop.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.stop)
	t.tick.Stop()
}

func (t *Tracker) decayLoop() {
	for {
		select {
		case <-t.tick.C:
			_ = t.DecayAndCleanup(context.Background())
		case <-t.stop:
			return
		}
	}
}

func (t *Tracker) loadOrInit(ctx context.Context, peerID string) (*pkgstorage.ReputationRecord, []Event, error) {
	rec, err := t.store.Get(ctx, peerID)
	if errors.Is(err, pkgstorage.ErrNotFound) {
		return &pkgstorage.ReputationRecord{PeerID: peerID, LastUpdated: time.Now()}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reputation: get %s: %w", peerID, err)
	}

	var events []Event
	if len(rec.EventLog) > 0 {
		plain, err := t.protector.Unprotect(rec.EventLog)
		if err != nil {
			return nil, nil, fmt.Errorf("reputation: unprotect events for %s: %w", peerID, err)
		}
		events = decodeEvents(plain)
	}
	return rec, events, nil
}

func (t *Tracker) save(ctx context.Context, rec *pkgstorage.ReputationRecord, events []Event) error {
	encoded := encodeEvents(events)
	protected, err := t.protector.Protect(encoded)
	if err != nil {
		return fmt.Errorf("reputation: protect events for %s: %w", rec.PeerID, err)
	}
	rec.EventLog = protected
	rec.LastUpdated = time.Now()

	if err := t.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("reputation: upsert %s: %w", rec.PeerID, err)
	}
	return nil
}

// decayExponential multiplies score toward zero by 0.5^(interval/halfLife),
// rounding toward zero so a score never overshoots past zero or flips sign.
func decayExponential(score int, interval, halfLife time.Duration) int {
	if score == 0 || halfLife <= 0 {
		return score
	}
	factor := math.Pow(0.5, float64(interval)/float64(halfLife))
	decayed := float64(score) * factor
	if score > 0 {
		out := int(math.Floor(decayed))
		if out < 0 {
			out = 0
		}
		return out
	}
	out := int(math.Ceil(decayed))
	if out > 0 {
		out = 0
	}
	return out
}
