package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSourceLimiterEnforcesBurst(t *testing.T) {
	l := NewSourceLimiter(1, 2, time.Minute)

	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))

	// A distinct source has its own independent bucket.
	assert.True(t, l.Allow("5.6.7.8"))
}

func TestPeerTypeLimiterIsolatesByKeyAndType(t *testing.T) {
	l := NewPeerTypeLimiter(1, 1)

	assert.True(t, l.Allow("peer-1", "ping"))
	assert.False(t, l.Allow("peer-1", "ping"))
	assert.True(t, l.Allow("peer-1", "descriptor"))
	assert.True(t, l.Allow("peer-2", "ping"))
}

func TestPeerTypeLimiterForgetClearsState(t *testing.T) {
	l := NewPeerTypeLimiter(1, 1)

	assert.True(t, l.Allow("peer-1", "ping"))
	assert.False(t, l.Allow("peer-1", "ping"))

	l.Forget("peer-1")
	assert.True(t, l.Allow("peer-1", "ping"))
}

func TestConcurrencyGateBoundsInFlight(t *testing.T) {
	g := NewConcurrencyGate(1, 1000)

	release, ok := g.TryAcquire()
	assert.True(t, ok)

	_, ok = g.TryAcquire()
	assert.False(t, ok)

	release()

	_, ok = g.TryAcquire()
	assert.True(t, ok)
}
