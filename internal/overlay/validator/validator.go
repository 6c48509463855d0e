// Package validator implements L7: the EnvelopeValidator. It orchestrates
// size, rate, timestamp, replay, and signature checks in one fixed order,
// short-circuiting on the first failure and returning a typed result, the
// same shape core/message/validator/validator.go uses for its own
// ordered pipeline.
package validator

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/snapetech/slskdn-sub011/internal/metrics"
	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
	"github.com/snapetech/slskdn-sub011/internal/overlay/errs"
)

// Descriptor is the subset of a peer's published descriptor the validator
// needs: the peer id and the keys an envelope's signature may be checked
// against. Quarantine state comes from the Quarantine collaborator instead.
type Descriptor struct {
	PeerID             string
	ControlSigningKeys []ed25519.PublicKey
}

// RateLimiter is the post-auth rate-limit collaborator (§4.4 tier 3),
// consulted as step 2, before any cryptographic work.
type RateLimiter interface {
	Allow(peerID, msgType string) bool
}

// Quarantine reports whether a peer is currently banned; consulted as part
// of step 2 so a quarantined peer incurs zero verification cost.
type Quarantine interface {
	IsBanned(peerID string) bool
}

// ReplayChecker is the ReplayCache collaborator (§4.3), consulted as step 5.
type ReplayChecker interface {
	CheckAndRecord(peerID, messageID string) (replay bool)
}

// Result is the outcome of validating one envelope.
type Result struct {
	Valid bool
	Err   *errs.Error
}

// Config bounds timestamp skew and payload size.
type Config struct {
	MaxPayload    int
	TimestampSkew time.Duration
}

// DefaultConfig matches spec.md §4.7/§3: ±120s clock skew, 1 MiB payload cap.
func DefaultConfig() Config {
	return Config{
		MaxPayload:    envelope.DefaultMaxPayload,
		TimestampSkew: 120 * time.Second,
	}
}

// Validator runs the fixed-order EnvelopeValidator pipeline.
type Validator struct {
	cfg        Config
	rateLimit  RateLimiter
	quarantine Quarantine
	replay     ReplayChecker
}

// New builds a Validator from its collaborators.
func New(cfg Config, rateLimit RateLimiter, quarantine Quarantine, replay ReplayChecker) *Validator {
	return &Validator{cfg: cfg, rateLimit: rateLimit, quarantine: quarantine, replay: replay}
}

// Validate runs the six-step pipeline from spec.md §4.7, in this exact
// order (later steps assume earlier ones passed):
//  1. presence: envelope, descriptor, peerId all non-empty.
//  2. post-auth rate limit / quarantine check.
//  3. payload.len ≤ maxPayload.
//  4. timestamp within the configured skew.
//  5. replay cache membership (atomic test-and-add).
//  6. signature verification against descriptor.controlSigningKeys.
//
// The replay entry from step 5 is committed regardless of whether step 6
// later fails — this is intentional and conservative: it protects against
// a signature-oracle scan that mixes one fresh messageId per guess.
func (v *Validator) Validate(e *envelope.ControlEnvelope, desc *Descriptor, peerID string) Result {
	start := time.Now()
	defer func() { metrics.ValidationDuration.Observe(time.Since(start).Seconds()) }()

	// Step 1: presence.
	if e == nil || desc == nil || peerID == "" {
		metrics.EnvelopesValidated.WithLabelValues("presence", "reject").Inc()
		return reject(errs.New(errs.Auth, "missing envelope, descriptor, or peer id"))
	}

	// Step 2: quarantine + post-auth rate limit, before any crypto work.
	if v.quarantine != nil && v.quarantine.IsBanned(peerID) {
		metrics.QuarantinedSources.Inc()
		metrics.EnvelopesValidated.WithLabelValues("quarantine", "reject").Inc()
		return reject(errs.New(errs.Policy, "peer quarantined"))
	}
	if v.rateLimit != nil && !v.rateLimit.Allow(peerID, e.Type) {
		metrics.EnvelopesValidated.WithLabelValues("ratelimit", "reject").Inc()
		return reject(errs.New(errs.Policy, "rate limit exceeded"))
	}

	// Step 3: size cap.
	if len(e.Payload) > v.cfg.MaxPayload {
		metrics.EnvelopesValidated.WithLabelValues("size", "reject").Inc()
		return reject(errs.New(errs.Decode, fmt.Sprintf("payload %d exceeds cap %d", len(e.Payload), v.cfg.MaxPayload)))
	}

	// Step 4: timestamp window.
	skew := time.Since(time.UnixMilli(e.TimestampUnixMs))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.cfg.TimestampSkew {
		metrics.EnvelopesValidated.WithLabelValues("timestamp", "reject").Inc()
		return reject(errs.New(errs.Auth, fmt.Sprintf("timestamp outside %s window", v.cfg.TimestampSkew)))
	}

	// Step 5: replay — committed even if step 6 later rejects.
	if v.replay != nil && v.replay.CheckAndRecord(peerID, e.MessageID) {
		metrics.ReplayRejections.Inc()
		metrics.EnvelopesValidated.WithLabelValues("replay", "reject").Inc()
		return reject(errs.New(errs.Auth, "replay detected"))
	}

	// Step 6: signature, against only the descriptor's allowed keys — the
	// envelope's self-asserted publicKey is never consulted.
	if !verifyAgainstKeys(e, desc.ControlSigningKeys) {
		metrics.EnvelopesValidated.WithLabelValues("signature", "reject").Inc()
		metrics.CryptoOperations.WithLabelValues("verify", "ed25519").Inc()
		return reject(errs.New(errs.Auth, "signature verification failed"))
	}

	metrics.EnvelopesValidated.WithLabelValues("signature", "accept").Inc()
	metrics.CryptoOperations.WithLabelValues("verify", "ed25519").Inc()
	return Result{Valid: true}
}

func verifyAgainstKeys(e *envelope.ControlEnvelope, keys []ed25519.PublicKey) bool {
	sig, err := decodeSignature(e.Signature)
	if err != nil {
		return false
	}

	canonical := envelope.CanonicalSigningBytes(e.Type, e.TimestampUnixMs, e.MessageID, e.Payload)
	legacy := envelope.LegacySigningBytes(e.Type, e.TimestampUnixMs, e.Payload)

	for _, key := range keys {
		if len(key) != ed25519.PublicKeySize {
			continue // malformed key: skipped, not fatal
		}
		if ed25519.Verify(key, canonical, sig) {
			return true
		}
		if ed25519.Verify(key, legacy, sig) {
			return true
		}
	}
	return false
}

func reject(e *errs.Error) Result {
	return Result{Valid: false, Err: e}
}
