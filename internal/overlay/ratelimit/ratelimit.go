// Package ratelimit implements L4: the three rate-limiting tiers that sit in
// front of the control plane — a pre-authentication per-source-address
// limiter (cheap, coarse, protects the unauthenticated decode/verify path),
// a post-authentication per-(peer, message type) limiter (fine-grained, once
// identity is known), and a coarse limit on concurrently in-flight
// connections. Per-key bookkeeping follows the map+mutex shape session.Manager
// uses for its own per-session state.
package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"
)

// SourceLimiter throttles by raw network source (e.g. "ip:port" or bare ip),
// before any signature has been verified.
type SourceLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
	lastSeen map[string]time.Time
	ttl      time.Duration
}

// NewSourceLimiter builds a per-source token-bucket limiter at rps with the
// given burst. Buckets idle longer than idleTTL are evicted on Allow calls.
func NewSourceLimiter(rps float64, burst int, idleTTL time.Duration) *SourceLimiter {
	return &SourceLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rps:      rate.Limit(rps),
		burst:    burst,
		ttl:      idleTTL,
	}
}

// Allow reports whether a message from source is permitted right now.
func (s *SourceLimiter) Allow(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked()

	lim, ok := s.limiters[source]
	if !ok {
		lim = rate.NewLimiter(s.rps, s.burst)
		s.limiters[source] = lim
	}
	s.lastSeen[source] = time.Now()
	return lim.Allow()
}

func (s *SourceLimiter) evictLocked() {
	if s.ttl <= 0 {
		return
	}
	now := time.Now()
	for source, seen := range s.lastSeen {
		if now.Sub(seen) > s.ttl {
			delete(s.lastSeen, source)
			delete(s.limiters, source)
		}
	}
}

// PeerTypeLimiter throttles by the resolved (peerId, messageType) pair; the
// validator consults it at step 2, before signature verification.
type PeerTypeLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewPeerTypeLimiter builds a per-(peer,type) token-bucket limiter.
func NewPeerTypeLimiter(rps float64, burst int) *PeerTypeLimiter {
	return &PeerTypeLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether a message of msgType from peerID is permitted now.
func (p *PeerTypeLimiter) Allow(peerID, msgType string) bool {
	key := peerID + "\x00" + msgType

	p.mu.Lock()
	lim, ok := p.limiters[key]
	if !ok {
		lim = rate.NewLimiter(p.rps, p.burst)
		p.limiters[key] = lim
	}
	p.mu.Unlock()

	return lim.Allow()
}

// Forget drops all limiter state for peerID, called when a peer is banned or
// its descriptor expires.
func (p *PeerTypeLimiter) Forget(peerID string) {
	prefix := peerID + "\x00"
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.limiters {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(p.limiters, key)
		}
	}
}

// ConcurrencyGate bounds how many connections/handshakes may be in flight at
// once across the whole node, independent of per-source or per-peer limits.
type ConcurrencyGate struct {
	limiter ratelimit.Limiter
	sem     chan struct{}
}

// NewConcurrencyGate builds a gate that admits at most maxConcurrent
// in-flight operations and additionally smooths admission to at most
// maxPerSecond takes per second.
func NewConcurrencyGate(maxConcurrent int, maxPerSecond int) *ConcurrencyGate {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	opts := []ratelimit.Option{}
	if maxPerSecond <= 0 {
		maxPerSecond = 1
	}
	return &ConcurrencyGate{
		limiter: ratelimit.New(maxPerSecond, opts...),
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// TryAcquire attempts to admit one operation without blocking on the
// concurrency bound; it still pays the smoothing cost of the rate limiter.
// It returns a release function and true on success, or false if the node is
// already at its concurrency cap.
func (g *ConcurrencyGate) TryAcquire() (release func(), ok bool) {
	select {
	case g.sem <- struct{}{}:
	default:
		return nil, false
	}
	g.limiter.Take()
	return func() { <-g.sem }, true
}
