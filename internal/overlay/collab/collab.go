// Package collab defines the overlay's collaborator contracts (spec.md
// §6.5): the boundaries to DHT storage, descriptor validation, an optional
// privacy layer, per-service call handlers, and security-event logging.
// None of these are implemented by the overlay itself — Kademlia internals,
// the privacy/mixnet layer, and the data-protection service are explicitly
// out of scope — so this package only defines the interfaces plus minimal
// in-memory stand-ins usable in tests and as safe startup defaults.
package collab

import (
	"context"
	"crypto/ed25519"
	"time"
)

// PeerDescriptor is the signed, DHT-published record describing a peer,
// per spec.md §3.
type PeerDescriptor struct {
	PeerID             string
	ControlSigningKeys []ed25519.PublicKey
	ControlSPKISHA256  []byte
	Endpoints          []string
	Expiry             time.Time
	SequenceNumber     uint64
	SelfSignature      []byte
}

// ServiceDescriptor is the signed, DHT-published record describing a
// service endpoint, per spec.md §4.11.
type ServiceDescriptor struct {
	ServiceName string
	PeerID      string
	Endpoint    string
	Expiry      time.Time
	Signature   []byte
}

// IDescriptorValidator checks a descriptor's self-signature, expiry, and
// structural well-formedness.
type IDescriptorValidator interface {
	Validate(desc *PeerDescriptor) (ok bool, reason string)
}

// IDhtClient is the boundary to the DHT. Kademlia internals (routing table,
// iterative lookup) are out of scope for the overlay and live entirely
// behind this interface.
type IDhtClient interface {
	GetRaw(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FindNode(ctx context.Context, target string) ([]string, error)
	Ping(ctx context.Context, peer string) error
}

// IPrivacyLayer is an optional collaborator that may rewrite, batch, and
// delay outbound payloads before the Overlay Client sends them.
type IPrivacyLayer interface {
	ProcessOutbound(payload []byte) (out []byte, queued bool)
	PendingBatches() [][]byte
	OutboundDelay() time.Duration
	RecordOutbound(payload []byte)
}

// IServiceHandler answers a single service call registered under a name.
type IServiceHandler interface {
	HandleCall(ctx context.Context, call []byte) (reply []byte, err error)
}

// ISecurityEventLogger records structured security events — auth failures,
// abuse-detection flags — distinct from ordinary operational logging.
type ISecurityEventLogger interface {
	Log(event string, peerID string, details map[string]any)
}
