// Package registry indexes known peer descriptors by peer id and by
// endpoint so the transport listeners can resolve an inbound source
// address to the identity the validator checks a signature against,
// following the same map-backed client-side lookup shape as
// registry/client.go and did/resolver.go's resolve-by-key idiom.
package registry

import (
	"sync"

	"github.com/snapetech/slskdn-sub011/internal/overlay/collab"
	"github.com/snapetech/slskdn-sub011/internal/overlay/errs"
	"github.com/snapetech/slskdn-sub011/internal/overlay/validator"
)

// Registry is a concurrency-safe, in-process directory of peer
// descriptors. It is not a DHT client: entries only arrive via Upsert,
// typically called by a handler reacting to a received descriptor
// envelope or gossip batch.
type Registry struct {
	validate collab.IDescriptorValidator

	mu         sync.RWMutex
	byPeerID   map[string]*collab.PeerDescriptor
	byEndpoint map[string]string // endpoint -> peerId
}

// New builds an empty Registry. validate may be nil to accept descriptors
// without a self-signature check (only appropriate for trusted seed data).
func New(validate collab.IDescriptorValidator) *Registry {
	return &Registry{
		validate:   validate,
		byPeerID:   make(map[string]*collab.PeerDescriptor),
		byEndpoint: make(map[string]string),
	}
}

// Upsert validates and indexes desc, replacing any prior record for the
// same peer id and re-pointing its endpoints.
func (r *Registry) Upsert(desc *collab.PeerDescriptor) error {
	if r.validate != nil {
		if ok, reason := r.validate.Validate(desc); !ok {
			return errs.New(errs.Auth, "descriptor rejected: "+reason)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.byPeerID[desc.PeerID]; ok {
		for _, ep := range prior.Endpoints {
			delete(r.byEndpoint, ep)
		}
	}

	r.byPeerID[desc.PeerID] = desc
	for _, ep := range desc.Endpoints {
		r.byEndpoint[ep] = desc.PeerID
	}
	return nil
}

// Descriptor returns the current descriptor for peerID, satisfying
// meshsync's descriptorLookup collaborator.
func (r *Registry) Descriptor(peerID string) (*collab.PeerDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.byPeerID[peerID]
	return desc, ok
}

// ResolveByEndpoint maps a transport source address to the peer id and
// validator-shaped descriptor, satisfying udpctl's and quicctl's
// PeerResolver collaborator.
func (r *Registry) ResolveByEndpoint(addr string) (string, *validator.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peerID, ok := r.byEndpoint[addr]
	if !ok {
		return "", nil, false
	}
	desc, ok := r.byPeerID[peerID]
	if !ok {
		return "", nil, false
	}
	return peerID, &validator.Descriptor{PeerID: desc.PeerID, ControlSigningKeys: desc.ControlSigningKeys}, true
}
