// Package signer implements L2: signing outbound envelopes with the node's
// current identity key and verifying inbound envelopes against a peer's
// known public keys, trying the canonical signature base first and falling
// back to the legacy base for compatibility with older peers.
package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	sagecrypto "github.com/snapetech/slskdn-sub011/crypto"
	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
)

// ErrVerificationFailed is returned when no candidate key and no signature
// base combination validates the envelope.
var ErrVerificationFailed = errors.New("signer: signature verification failed")

// KeySource supplies the key pair used to sign, and the set of keys a
// counterparty's signature should be checked against.
type KeySource interface {
	Current() sagecrypto.KeyPair
	VerificationKeys() []sagecrypto.KeyPair
}

// Signer signs and verifies ControlEnvelope payloads.
type Signer struct {
	keys KeySource
}

// New builds a Signer bound to the given key source.
func New(keys KeySource) *Signer {
	return &Signer{keys: keys}
}

// Sign fills PublicKey/Signature on e using the canonical signature base and
// the current identity key. TimestampUnixMs and MessageID must already be set.
func (s *Signer) Sign(e *envelope.ControlEnvelope) error {
	kp := s.keys.Current()

	base := envelope.CanonicalSigningBytes(e.Type, e.TimestampUnixMs, e.MessageID, e.Payload)
	sig, err := kp.Sign(base)
	if err != nil {
		return fmt.Errorf("signer: sign: %w", err)
	}

	pub, ok := kp.PublicKey().(ed25519.PublicKey)
	if !ok {
		return fmt.Errorf("signer: unsupported identity key type %s", kp.Type())
	}

	e.PublicKey = base64.StdEncoding.EncodeToString(pub)
	e.Signature = base64.StdEncoding.EncodeToString(sig)
	return nil
}

// Verify checks e's signature against every known verification key, trying
// the canonical signature base first and the legacy base second. It returns
// the peer id derived from the first key that validates.
func (s *Signer) Verify(e *envelope.ControlEnvelope) (peerID string, err error) {
	sig, err := base64.StdEncoding.DecodeString(e.Signature)
	if err != nil {
		return "", fmt.Errorf("%w: malformed signature encoding", ErrVerificationFailed)
	}

	canonical := envelope.CanonicalSigningBytes(e.Type, e.TimestampUnixMs, e.MessageID, e.Payload)
	legacy := envelope.LegacySigningBytes(e.Type, e.TimestampUnixMs, e.Payload)

	for _, kp := range s.keys.VerificationKeys() {
		pub, ok := kp.PublicKey().(ed25519.PublicKey)
		if !ok {
			continue // malformed/unsupported key: skip, not fatal
		}

		if ed25519.Verify(pub, canonical, sig) {
			return envelope.DerivePeerID(pub), nil
		}
		if ed25519.Verify(pub, legacy, sig) {
			return envelope.DerivePeerID(pub), nil
		}
	}

	return "", ErrVerificationFailed
}

// VerifyAgainst checks e's signature against a single known Ed25519 public
// key, used once the envelope has claimed a peer id and the caller has
// already resolved that peer's descriptor key out-of-band.
func VerifyAgainst(pub ed25519.PublicKey, e *envelope.ControlEnvelope) error {
	sig, err := base64.StdEncoding.DecodeString(e.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature encoding", ErrVerificationFailed)
	}

	canonical := envelope.CanonicalSigningBytes(e.Type, e.TimestampUnixMs, e.MessageID, e.Payload)
	if ed25519.Verify(pub, canonical, sig) {
		return nil
	}

	legacy := envelope.LegacySigningBytes(e.Type, e.TimestampUnixMs, e.Payload)
	if ed25519.Verify(pub, legacy, sig) {
		return nil
	}

	return ErrVerificationFailed
}
