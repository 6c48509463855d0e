package signer

import (
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
	"github.com/snapetech/slskdn-sub011/internal/overlay/keystore"
)

func newTestKeyStore(t *testing.T) *keystore.KeyStore {
	t.Helper()
	k, err := keystore.Open(filepath.Join(t.TempDir(), "identity.json"))
	require.NoError(t, err)
	return k
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	ks := newTestKeyStore(t)
	s := New(ks)

	e := &envelope.ControlEnvelope{
		Type:            "ping",
		Payload:         []byte("hello"),
		TimestampUnixMs: 1000,
		MessageID:       "abc123",
	}
	require.NoError(t, s.Sign(e))

	peerID, err := s.Verify(e)
	require.NoError(t, err)
	assert.NotEmpty(t, peerID)
}

func TestVerifyFailsOnTamperedPayload(t *testing.T) {
	ks := newTestKeyStore(t)
	s := New(ks)

	e := &envelope.ControlEnvelope{
		Type:            "ping",
		Payload:         []byte("hello"),
		TimestampUnixMs: 1000,
		MessageID:       "abc123",
	}
	require.NoError(t, s.Sign(e))

	e.Payload = []byte("tampered")
	_, err := s.Verify(e)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestVerifySucceedsAfterRotationUsingRetiredKey(t *testing.T) {
	ks := newTestKeyStore(t)
	s := New(ks)

	e := &envelope.ControlEnvelope{
		Type:            "ping",
		Payload:         []byte("hello"),
		TimestampUnixMs: 1000,
		MessageID:       "abc123",
	}
	require.NoError(t, s.Sign(e))

	_, err := ks.Rotate()
	require.NoError(t, err)

	peerID, err := s.Verify(e)
	require.NoError(t, err)
	assert.NotEmpty(t, peerID)
}

func TestVerifyAgainstLegacyBase(t *testing.T) {
	ks := newTestKeyStore(t)

	e := &envelope.ControlEnvelope{
		Type:            "ping",
		Payload:         []byte("hello"),
		TimestampUnixMs: 1000,
		MessageID:       "abc123",
	}

	kp := ks.Current()
	legacy := envelope.LegacySigningBytes(e.Type, e.TimestampUnixMs, e.Payload)
	sig, err := kp.Sign(legacy)
	require.NoError(t, err)

	e.Signature = base64.StdEncoding.EncodeToString(sig)
	s := New(ks)
	_, err = s.Verify(e)
	require.NoError(t, err)
}
