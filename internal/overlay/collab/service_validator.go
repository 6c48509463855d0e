package collab

import (
	"crypto/ed25519"
	"time"

	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
)

// descriptorLookup resolves a peer id to its current PeerDescriptor, so a
// ServiceDescriptor's signature can be checked against that peer's current
// control signing keys rather than any key the descriptor itself carries.
type descriptorLookup interface {
	Descriptor(peerID string) (*PeerDescriptor, bool)
}

// ServiceDescriptorValidator implements directory.go's ValidateService
// contract: a ServiceDescriptor is only accepted if its advertising peer is
// known and one of that peer's current control signing keys verifies the
// signature.
type ServiceDescriptorValidator struct {
	peers descriptorLookup
}

// NewServiceDescriptorValidator builds a validator backed by peers, typically
// the same registry the transport listeners resolve peer identity against.
func NewServiceDescriptorValidator(peers descriptorLookup) *ServiceDescriptorValidator {
	return &ServiceDescriptorValidator{peers: peers}
}

// ValidateService checks desc's required fields, expiry, and signature.
func (v *ServiceDescriptorValidator) ValidateService(desc *ServiceDescriptor) (bool, string) {
	if desc == nil {
		return false, "nil descriptor"
	}
	if desc.ServiceName == "" || desc.PeerID == "" || desc.Endpoint == "" {
		return false, "missing required field"
	}
	if !desc.Expiry.IsZero() && time.Now().After(desc.Expiry) {
		return false, "service descriptor expired"
	}

	peerDesc, ok := v.peers.Descriptor(desc.PeerID)
	if !ok {
		return false, "unknown advertising peer"
	}

	base := serviceSigningBase(desc)
	for _, key := range peerDesc.ControlSigningKeys {
		if len(key) != ed25519.PublicKeySize {
			continue
		}
		if ed25519.Verify(key, base, desc.Signature) {
			return true, ""
		}
	}
	return false, "service descriptor signature does not verify"
}

func serviceSigningBase(desc *ServiceDescriptor) []byte {
	return envelope.CanonicalSigningBytes(desc.ServiceName, desc.Expiry.UnixMilli(), desc.PeerID, []byte(desc.Endpoint))
}
