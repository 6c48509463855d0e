// Package dispatch implements L8: the ControlDispatcher. It routes an
// accepted envelope to the handler registered for its type. Registration is
// process-local and eager at startup; an unregistered type is rejected at
// dispatch time, not at decode time, matching spec.md §4.8/§9.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
	"github.com/snapetech/slskdn-sub011/internal/overlay/errs"
)

// Handler processes one accepted envelope from a known peer. Handlers must
// be idempotent: the mesh does not guarantee exactly-once delivery.
type Handler func(ctx context.Context, peerID string, e *envelope.ControlEnvelope) error

// Dispatcher routes envelopes by type to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New builds an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds a handler to an envelope type, overwriting any previous
// registration for that type.
func (d *Dispatcher) Register(msgType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[msgType] = h
}

// Unregister removes the handler for msgType, if any.
func (d *Dispatcher) Unregister(msgType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, msgType)
}

// Dispatch invokes the handler registered for e.Type and awaits its result.
// An unknown type is a dispatcher-level rejection, not a security error —
// callers should log it at debug level, not warn.
func (d *Dispatcher) Dispatch(ctx context.Context, peerID string, e *envelope.ControlEnvelope) error {
	d.mu.RLock()
	h, ok := d.handlers[e.Type]
	d.mu.RUnlock()

	if !ok {
		return errs.New(errs.Handler, fmt.Sprintf("no handler registered for type %q", e.Type))
	}

	if err := h(ctx, peerID, e); err != nil {
		return errs.Wrap(errs.Handler, fmt.Sprintf("handler for type %q failed", e.Type), err)
	}
	return nil
}
