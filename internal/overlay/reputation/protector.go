// Package reputation implements L5: tracking per-peer reputation scores,
// banning persistently abusive peers, and decaying scores back toward zero
// over time so a single bad episode does not follow a peer forever.
package reputation

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrKeyNotFound mirrors the data-protection service's own sentinel for a
// missing or rotated encryption key.
var ErrKeyNotFound = errors.New("reputation: protection key not found")

// Protector is the boundary to the node's data-protection service: spec.md
// treats the reputation store's encryption-at-rest key source as an opaque,
// out-of-scope dependency. Protect/Unprotect let the reputation tracker stay
// agnostic to how that key is actually managed.
type Protector interface {
	Protect(plaintext []byte) ([]byte, error)
	Unprotect(ciphertext []byte) ([]byte, error)
}

// chachaProtector is a concrete ChaCha20-Poly1305 Protector over a
// caller-supplied 32-byte key, so the reputation event log is encrypted at
// rest without requiring an external key-management service to exist for
// this implementation to run.
type chachaProtector struct {
	aead cipher.AEAD
}

// NewProtector builds a Protector from a 32-byte key.
func NewProtector(key []byte) (Protector, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("reputation: protector key must be %d bytes", chacha20poly1305.KeySize)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("reputation: init aead: %w", err)
	}
	return &chachaProtector{aead: aead}, nil
}

func (p *chachaProtector) Protect(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("reputation: nonce: %w", err)
	}
	return p.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (p *chachaProtector) Unprotect(ciphertext []byte) ([]byte, error) {
	ns := p.aead.NonceSize()
	if len(ciphertext) < ns {
		return nil, fmt.Errorf("reputation: ciphertext too short")
	}
	nonce, sealed := ciphertext[:ns], ciphertext[ns:]
	plaintext, err := p.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("reputation: decrypt: %w", err)
	}
	return plaintext, nil
}

// eventLog is the JSON shape stored (encrypted) in ReputationRecord.EventLog.
type eventLog struct {
	Events []Event `json:"events"`
}

func encodeEvents(events []Event) []byte {
	data, _ := json.Marshal(eventLog{Events: events})
	return data
}

func decodeEvents(data []byte) []Event {
	if len(data) == 0 {
		return nil
	}
	var el eventLog
	if err := json.Unmarshal(data, &el); err != nil {
		return nil
	}
	return el.Events
}
