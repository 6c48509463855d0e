package envelope

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := &ControlEnvelope{
		Type:            "ping",
		Payload:         []byte("hello"),
		PublicKey:       "abc",
		Signature:       "def",
		TimestampUnixMs: 1234,
		MessageID:       "0011223344556677",
	}

	data, err := Encode(e)
	require.NoError(t, err)

	got, err := Decode(data, DefaultMaxPayload)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestDecodeRejectsOversize(t *testing.T) {
	e := &ControlEnvelope{Type: "ping", Payload: make([]byte, 100)}
	data, err := Encode(e)
	require.NoError(t, err)

	_, err = Decode(data, 10)
	assert.ErrorIs(t, err, ErrOversize)
}

func TestDecodeRejectsOversizeType(t *testing.T) {
	e := &ControlEnvelope{Type: string(make([]byte, MaxTypeLen+1))}
	data, err := Encode(e)
	require.NoError(t, err)

	_, err = Decode(data, DefaultMaxPayload)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCanonicalSigningBytesDeterministic(t *testing.T) {
	a := CanonicalSigningBytes("ping", 1000, "msg-1", []byte("payload"))
	b := CanonicalSigningBytes("ping", 1000, "msg-1", []byte("payload"))
	assert.Equal(t, a, b)

	c := CanonicalSigningBytes("ping", 1000, "msg-2", []byte("payload"))
	assert.NotEqual(t, a, c)
}

func TestCanonicalSigningBytesFieldBoundaryNotAmbiguous(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide once length-prefixed.
	a := CanonicalSigningBytes("ab", 0, "c", nil)
	b := CanonicalSigningBytes("a", 0, "bc", nil)
	assert.NotEqual(t, a, b)
}

func TestLegacySigningBytesFormat(t *testing.T) {
	got := LegacySigningBytes("ping", 42, []byte("hi"))
	assert.Equal(t, "ping|42|aGk=", string(got))
}

func TestDerivePeerIDDeterministicAndDistinct(t *testing.T) {
	pub1, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pub2, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	id1a := DerivePeerID(pub1)
	id1b := DerivePeerID(pub1)
	id2 := DerivePeerID(pub2)

	assert.Equal(t, id1a, id1b)
	assert.NotEqual(t, id1a, id2)
	assert.Len(t, id1a, 40) // 20 bytes hex-encoded
}
