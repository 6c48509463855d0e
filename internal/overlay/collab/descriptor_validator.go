package collab

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	sagecrypto "github.com/snapetech/slskdn-sub011/crypto"
	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
)

// DescriptorValidator implements IDescriptorValidator: it checks that a
// descriptor's self-signature verifies under its own advertised identity
// key, that it has not expired, and that every controlSigningKeys entry has
// the correct length (spec.md §3 invariants).
type DescriptorValidator struct{}

// NewDescriptorValidator builds a stateless descriptor validator.
func NewDescriptorValidator() *DescriptorValidator {
	return &DescriptorValidator{}
}

// Validate checks desc against spec.md §3's PeerDescriptor invariants. The
// identity key used to verify SelfSignature is the first entry of
// ControlSigningKeys — a descriptor with an empty key list can never
// self-verify.
func (v *DescriptorValidator) Validate(desc *PeerDescriptor) (bool, string) {
	if desc == nil {
		return false, "nil descriptor"
	}
	if desc.PeerID == "" {
		return false, "empty peer id"
	}
	if len(desc.ControlSigningKeys) == 0 {
		return false, "no control signing keys"
	}
	for _, key := range desc.ControlSigningKeys {
		if len(key) != ed25519.PublicKeySize {
			return false, "malformed control signing key length"
		}
	}
	if !desc.Expiry.IsZero() && time.Now().After(desc.Expiry) {
		return false, "descriptor expired"
	}

	identityKey := desc.ControlSigningKeys[0]
	base := descriptorSigningBase(desc)
	if !ed25519.Verify(identityKey, base, desc.SelfSignature) {
		return false, "self-signature does not verify"
	}
	return true, ""
}

// descriptorSigningBase builds the deterministic byte form a descriptor's
// self-signature is computed over, reusing the envelope package's
// length-prefixed field encoding so descriptors and envelopes share one
// canonical-serialization idiom.
func descriptorSigningBase(desc *PeerDescriptor) []byte {
	buf := envelope.CanonicalSigningBytes(desc.PeerID, desc.Expiry.UnixMilli(), sequenceToken(desc.SequenceNumber), desc.ControlSPKISHA256)
	for _, ep := range desc.Endpoints {
		buf = append(buf, []byte(ep)...)
	}
	return buf
}

func sequenceToken(seq uint64) string {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return string(b)
}

// SelfSign fills in ControlSPKISHA256 and SelfSignature on desc using kp's
// identity key, the same descriptorSigningBase a DescriptorValidator checks
// against. desc.ControlSigningKeys must already contain kp's public key as
// its first entry.
func SelfSign(kp sagecrypto.KeyPair, desc *PeerDescriptor) error {
	pub, ok := kp.PublicKey().(ed25519.PublicKey)
	if !ok {
		return fmt.Errorf("collab: unsupported identity key type %s", kp.Type())
	}
	if len(desc.ControlSigningKeys) == 0 || string(desc.ControlSigningKeys[0]) != string(pub) {
		return fmt.Errorf("collab: desc.ControlSigningKeys[0] must be the signing key's own public key")
	}

	sum := sha256.Sum256(pub)
	desc.ControlSPKISHA256 = sum[:]

	sig, err := kp.Sign(descriptorSigningBase(desc))
	if err != nil {
		return fmt.Errorf("collab: sign descriptor: %w", err)
	}
	desc.SelfSignature = sig
	return nil
}
