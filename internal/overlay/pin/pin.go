// Package pin implements L6: the certificate pin cache backing transport
// authentication for QUIC/TLS connections. A peer's pin is authoritative
// when it comes from that peer's signed descriptor; absent a descriptor,
// the cache falls back to trust-on-first-use (TOFU), remembering whichever
// certificate hash it saw first and flagging any later mismatch.
package pin

import (
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"sync"
	"time"
)

// ErrPinMismatch is returned when a peer presents a certificate whose hash
// does not match its pinned value.
var ErrPinMismatch = errors.New("pin: certificate does not match pinned hash")

// Source records where a pin came from, so a later descriptor can always
// override an earlier TOFU guess, but a TOFU guess can never override a
// descriptor pin.
type Source int

const (
	SourceTOFU Source = iota
	SourceDescriptor
)

type entry struct {
	hash   [32]byte
	source Source
	seenAt time.Time
}

// Cache tracks the expected certificate hash per peer id.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
}

// New builds a pin cache. TOFU entries older than ttl are treated as absent
// so a peer that genuinely rotates its certificate can re-pin; ttl <= 0
// disables expiry.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

// HashCert computes the pin value for a certificate.
func HashCert(cert *x509.Certificate) [32]byte {
	return sha256.Sum256(cert.Raw)
}

// SetDescriptorPin installs an authoritative pin from a peer's signed
// descriptor, overriding any existing TOFU pin.
func (c *Cache) SetDescriptorPin(peerID string, hash [32]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[peerID] = entry{hash: hash, source: SourceDescriptor, seenAt: time.Now()}
}

// Check validates cert's hash against the pinned value for peerID. If no
// pin exists yet, it TOFU-pins cert and returns nil. A descriptor pin can
// never be silently overridden by a new TOFU observation.
func (c *Cache) Check(peerID string, cert *x509.Certificate) error {
	hash := HashCert(cert)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[peerID]
	if ok && e.source == SourceTOFU && c.ttl > 0 && time.Since(e.seenAt) > c.ttl {
		ok = false // expired TOFU pin: treat as unseen
	}

	if !ok {
		c.entries[peerID] = entry{hash: hash, source: SourceTOFU, seenAt: time.Now()}
		return nil
	}

	if e.hash != hash {
		return ErrPinMismatch
	}
	return nil
}

// Forget removes any pin for peerID, used when a peer is banned or its
// descriptor expires.
func (c *Cache) Forget(peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, peerID)
}

// Source reports how peerID's current pin was established, and whether one
// exists at all.
func (c *Cache) Source(peerID string) (Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[peerID]
	return e.source, ok
}
