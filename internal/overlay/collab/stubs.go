package collab

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ZapSecurityEventLogger implements ISecurityEventLogger on top of a zap
// logger, matching the overlay's stable tag-prefix logging convention.
type ZapSecurityEventLogger struct {
	log *zap.Logger
}

// NewZapSecurityEventLogger wraps log for security-event reporting.
func NewZapSecurityEventLogger(log *zap.Logger) *ZapSecurityEventLogger {
	return &ZapSecurityEventLogger{log: log}
}

func (z *ZapSecurityEventLogger) Log(event string, peerID string, details map[string]any) {
	fields := make([]zap.Field, 0, len(details)+2)
	fields = append(fields, zap.String("event", event), zap.String("peerId", peerID))
	for k, v := range details {
		fields = append(fields, zap.Any(k, v))
	}
	z.log.Warn("security event", fields...)
}

// MemorySecurityEventLogger records events in memory, for tests.
type MemorySecurityEventLogger struct {
	mu     sync.Mutex
	Events []SecurityEvent
}

// SecurityEvent is one recorded call to Log.
type SecurityEvent struct {
	Name    string
	PeerID  string
	Details map[string]any
	At      time.Time
}

func NewMemorySecurityEventLogger() *MemorySecurityEventLogger {
	return &MemorySecurityEventLogger{}
}

func (m *MemorySecurityEventLogger) Log(event string, peerID string, details map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, SecurityEvent{Name: event, PeerID: peerID, Details: details, At: time.Now()})
}

// NoopPrivacyLayer implements IPrivacyLayer as a pass-through: no batching,
// no delay, no rewriting. It is the default when no privacy layer is
// configured — the overlay sends control traffic directly.
type NoopPrivacyLayer struct{}

func (NoopPrivacyLayer) ProcessOutbound(payload []byte) ([]byte, bool) { return payload, false }
func (NoopPrivacyLayer) PendingBatches() [][]byte                      { return nil }
func (NoopPrivacyLayer) OutboundDelay() time.Duration                  { return 0 }
func (NoopPrivacyLayer) RecordOutbound(payload []byte)                 {}
