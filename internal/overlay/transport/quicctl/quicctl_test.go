package quicctl

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/slskdn-sub011/internal/overlay/dispatch"
	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
	"github.com/snapetech/slskdn-sub011/internal/overlay/keystore"
	"github.com/snapetech/slskdn-sub011/internal/overlay/signer"
	"github.com/snapetech/slskdn-sub011/internal/overlay/validator"
)

type fixedResolver struct {
	peerID string
	desc   *validator.Descriptor
}

func (f *fixedResolver) ResolveByEndpoint(addr string) (string, *validator.Descriptor, bool) {
	return f.peerID, f.desc, true
}

type allowAllRelay struct{}

func (allowAllRelay) AllowRelay(peerID, host string, port int) bool { return true }

func newTestSigner(t *testing.T) (*signer.Signer, ed25519.PublicKey) {
	t.Helper()
	ks, err := keystore.Open(filepath.Join(t.TempDir(), "identity.json"))
	require.NoError(t, err)
	s := signer.New(ks)

	e := &envelope.ControlEnvelope{Type: "probe", TimestampUnixMs: time.Now().UnixMilli(), MessageID: "0000000000000000"}
	require.NoError(t, s.Sign(e))
	rawPub, err := base64.StdEncoding.DecodeString(e.PublicKey)
	require.NoError(t, err)
	return s, ed25519.PublicKey(rawPub)
}

func TestListenerStartBindsOnLoopback(t *testing.T) {
	resolver := &fixedResolver{peerID: "peer-1", desc: &validator.Descriptor{}}
	v := validator.New(validator.DefaultConfig(), nil, nil, nil)
	d := dispatch.New()

	l := New(DefaultConfig(), resolver, nil, v, d, allowAllRelay{}, nil)
	require.NoError(t, l.Start(context.Background(), "127.0.0.1:0"))
	defer l.Close()

	assert.NotNil(t, l.ln)
}

func TestListenerStartOnBadAddressDoesNotError(t *testing.T) {
	resolver := &fixedResolver{peerID: "peer-1"}
	v := validator.New(validator.DefaultConfig(), nil, nil, nil)
	d := dispatch.New()

	l := New(DefaultConfig(), resolver, nil, v, d, allowAllRelay{}, nil)
	err := l.Start(context.Background(), "not-an-address:::")
	assert.NoError(t, err)
	assert.Nil(t, l.ln)
}

func TestControlRoundTrip(t *testing.T) {
	s, pub := newTestSigner(t)

	e := &envelope.ControlEnvelope{Type: "ping", Payload: []byte("hi"), TimestampUnixMs: time.Now().UnixMilli(), MessageID: "0123456789abcdef"}
	require.NoError(t, s.Sign(e))

	resolver := &fixedResolver{peerID: "peer-1", desc: &validator.Descriptor{PeerID: "peer-1", ControlSigningKeys: []ed25519.PublicKey{pub}}}
	v := validator.New(validator.DefaultConfig(), nil, nil, nil)
	d := dispatch.New()

	received := make(chan string, 1)
	d.Register("ping", func(ctx context.Context, peerID string, env *envelope.ControlEnvelope) error {
		received <- peerID
		return nil
	})

	l := New(DefaultConfig(), resolver, nil, v, d, allowAllRelay{}, nil)
	require.NoError(t, l.Start(context.Background(), "127.0.0.1:0"))
	defer l.Close()

	addr := l.ln.Addr().String()
	client := NewClient(true)
	require.NoError(t, client.SendControl(context.Background(), addr, e))

	select {
	case peerID := <-received:
		assert.Equal(t, "peer-1", peerID)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestParseRelayPreamble(t *testing.T) {
	host, port, ok := parseRelayPreamble("RELAY_TCP example.local 8080\n")
	assert.True(t, ok)
	assert.Equal(t, "example.local", host)
	assert.Equal(t, 8080, port)

	_, _, ok = parseRelayPreamble("NOT_A_RELAY\n")
	assert.False(t, ok)

	_, _, ok = parseRelayPreamble("RELAY_TCP host notaport\n")
	assert.False(t, ok)
}

func TestProxyCopiesBothDirections(t *testing.T) {
	streamSide, streamTest := net.Pipe()
	targetSide, targetTest := net.Pipe()

	done := make(chan struct{})
	go func() {
		proxy(streamSide, targetSide)
		close(done)
	}()

	go func() {
		buf := make([]byte, 5)
		n, _ := targetTest.Read(buf)
		targetTest.Write(buf[:n])
	}()

	_, err := streamTest.Write([]byte("hello"))
	require.NoError(t, err)

	reply := make([]byte, 5)
	_, err = streamTest.Read(reply)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(reply))

	streamTest.Close()
	targetTest.Close()
}
