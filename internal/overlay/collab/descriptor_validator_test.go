package collab

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedDescriptor(t *testing.T, pub ed25519.PublicKey, priv ed25519.PrivateKey, expiry time.Time) *PeerDescriptor {
	t.Helper()
	desc := &PeerDescriptor{
		PeerID:             "peer-1",
		ControlSigningKeys: []ed25519.PublicKey{pub},
		ControlSPKISHA256:  []byte("spki-hash"),
		Endpoints:          []string{"udp://1.2.3.4:9000"},
		Expiry:             expiry,
		SequenceNumber:     1,
	}
	desc.SelfSignature = ed25519.Sign(priv, descriptorSigningBase(desc))
	return desc
}

func TestDescriptorValidatorAcceptsValid(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	desc := signedDescriptor(t, pub, priv, time.Now().Add(time.Hour))

	v := NewDescriptorValidator()
	ok, reason := v.Validate(desc)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestDescriptorValidatorRejectsExpired(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	desc := signedDescriptor(t, pub, priv, time.Now().Add(-time.Hour))

	v := NewDescriptorValidator()
	ok, reason := v.Validate(desc)
	assert.False(t, ok)
	assert.Equal(t, "descriptor expired", reason)
}

func TestDescriptorValidatorRejectsTamperedSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	desc := signedDescriptor(t, pub, priv, time.Now().Add(time.Hour))
	desc.Endpoints = append(desc.Endpoints, "udp://5.6.7.8:9000")

	v := NewDescriptorValidator()
	ok, reason := v.Validate(desc)
	assert.False(t, ok)
	assert.Equal(t, "self-signature does not verify", reason)
}

func TestDescriptorValidatorRejectsMalformedKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	desc := signedDescriptor(t, pub, priv, time.Now().Add(time.Hour))
	desc.ControlSigningKeys = append(desc.ControlSigningKeys, []byte("short"))

	v := NewDescriptorValidator()
	ok, reason := v.Validate(desc)
	assert.False(t, ok)
	assert.Equal(t, "malformed control signing key length", reason)
}

func TestMemorySecurityEventLoggerRecords(t *testing.T) {
	logger := NewMemorySecurityEventLogger()
	logger.Log("scan-detected", "peer-1", map[string]any{"count": 42})

	require.Len(t, logger.Events, 1)
	assert.Equal(t, "scan-detected", logger.Events[0].Name)
	assert.Equal(t, "peer-1", logger.Events[0].PeerID)
}

func TestNoopPrivacyLayerPassesThrough(t *testing.T) {
	var p NoopPrivacyLayer
	out, queued := p.ProcessOutbound([]byte("data"))
	assert.Equal(t, []byte("data"), out)
	assert.False(t, queued)
	assert.Empty(t, p.PendingBatches())
	assert.Zero(t, p.OutboundDelay())
}
