package pin

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T) *x509.Certificate {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestTOFUPinsOnFirstSightAndRejectsMismatch(t *testing.T) {
	c := New(time.Hour)
	certA := selfSignedCert(t)
	certB := selfSignedCert(t)

	require.NoError(t, c.Check("peer-1", certA))
	assert.NoError(t, c.Check("peer-1", certA))
	assert.ErrorIs(t, c.Check("peer-1", certB), ErrPinMismatch)
}

func TestDescriptorPinOverridesTOFUAndCannotBeSilentlyReplaced(t *testing.T) {
	c := New(time.Hour)
	certA := selfSignedCert(t)
	certB := selfSignedCert(t)

	require.NoError(t, c.Check("peer-1", certA))

	hashB := HashCert(certB)
	c.SetDescriptorPin("peer-1", hashB)

	assert.ErrorIs(t, c.Check("peer-1", certA), ErrPinMismatch)
	assert.NoError(t, c.Check("peer-1", certB))

	src, ok := c.Source("peer-1")
	assert.True(t, ok)
	assert.Equal(t, SourceDescriptor, src)
}

func TestExpiredTOFUPinAllowsRepin(t *testing.T) {
	c := New(time.Millisecond)
	certA := selfSignedCert(t)
	certB := selfSignedCert(t)

	require.NoError(t, c.Check("peer-1", certA))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, c.Check("peer-1", certB))
}

func TestForgetRemovesPin(t *testing.T) {
	c := New(time.Hour)
	cert := selfSignedCert(t)

	require.NoError(t, c.Check("peer-1", cert))
	c.Forget("peer-1")

	_, ok := c.Source("peer-1")
	assert.False(t, ok)
}

func TestHashCertIsSHA256OfRawDER(t *testing.T) {
	cert := selfSignedCert(t)
	want := sha256.Sum256(cert.Raw)
	assert.Equal(t, want, HashCert(cert))
}
