// Package quicctl implements the L9/L10 QUIC control and data transport.
// Two ALPN protocols share one listener: "slskdn-overlay" carries one
// signed ControlEnvelope per stream, and "slskdn-overlay-data" carries a
// `RELAY_TCP <host> <port>\n` preamble that, once policy-checked, turns the
// stream into a bidirectional proxy to a local TCP service. Like udpctl, a
// bind failure is logged and degrades the listener rather than the process
// (spec.md §6, §9).
package quicctl

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/snapetech/slskdn-sub011/internal/logging"
	"github.com/snapetech/slskdn-sub011/internal/metrics"
	"github.com/snapetech/slskdn-sub011/internal/overlay/dispatch"
	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
	"github.com/snapetech/slskdn-sub011/internal/overlay/ratelimit"
	"github.com/snapetech/slskdn-sub011/internal/overlay/validator"
)

// ALPN protocol identifiers the listener multiplexes on.
const (
	ALPNControl = "slskdn-overlay"
	ALPNData    = "slskdn-overlay-data"
)

// PeerResolver maps a QUIC connection's remote address to the peer
// identity and signature-verification descriptor the validator needs.
type PeerResolver interface {
	ResolveByEndpoint(addr string) (peerID string, desc *validator.Descriptor, ok bool)
}

// RelayPolicy decides whether a RELAY_TCP request from peerID to
// host:port is permitted.
type RelayPolicy interface {
	AllowRelay(peerID, host string, port int) bool
}

// Config bounds stream size and certificate lifetime.
type Config struct {
	MaxStreamBytes int
	CertValidFor   time.Duration
	CertPath       string
	KeyPath        string
}

// DefaultConfig matches spec.md §3's payload cap and a five-year
// self-signed certificate lifetime.
func DefaultConfig() Config {
	return Config{
		MaxStreamBytes: envelope.DefaultMaxPayload + 4096,
		CertValidFor:   5 * 365 * 24 * time.Hour,
	}
}

// Listener is the QUIC control/data listener.
type Listener struct {
	cfg        Config
	ln         *quic.Listener
	resolver   PeerResolver
	preAuth    *ratelimit.SourceLimiter
	validate   *validator.Validator
	dispatcher *dispatch.Dispatcher
	relay      RelayPolicy
	log        logging.Logger

	// Gate, if set, bounds how many streams may be in concurrent handling
	// at once across the whole listener. Left nil by New; callers that want
	// it set it directly.
	Gate *ratelimit.ConcurrencyGate
}

// New builds a Listener. relay may be nil to reject every RELAY_TCP
// request outright.
func New(cfg Config, resolver PeerResolver, preAuth *ratelimit.SourceLimiter, v *validator.Validator, d *dispatch.Dispatcher, relay RelayPolicy, log logging.Logger) *Listener {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Listener{
		cfg:        cfg,
		resolver:   resolver,
		preAuth:    preAuth,
		validate:   v,
		dispatcher: d,
		relay:      relay,
		log:        log.Named("Overlay-QUIC"),
	}
}

// Start binds addr with a self-signed (or persisted, if CertPath/KeyPath
// are set) certificate and launches the accept loop in the background,
// returning immediately. A bind failure is logged, never fatal.
func (l *Listener) Start(ctx context.Context, addr string) error {
	tlsConf, err := l.tlsConfig()
	if err != nil {
		l.log.Warn("failed to prepare tls certificate, running degraded", logging.Error(err))
		return nil
	}

	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{MaxIdleTimeout: 2 * time.Minute})
	if err != nil {
		l.log.Warn("failed to bind quic listener, running degraded", logging.String("addr", addr), logging.Error(err))
		return nil
	}
	l.ln = ln

	go l.acceptLoop(ctx)
	return nil
}

// Close stops the accept loop and releases the socket.
func (l *Listener) Close() error {
	if l.ln == nil {
		return nil
	}
	return l.ln.CloseWithError(0, "shutting down")
}

func (l *Listener) acceptLoop(ctx context.Context) {
	for {
		conn, err := l.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Warn("quic accept error", logging.Error(err))
			return
		}

		remote := conn.RemoteAddr().String()
		if l.preAuth != nil && !l.preAuth.Allow(remote) {
			conn.CloseWithError(0, "rate limited")
			continue
		}

		go l.handleConnection(ctx, conn)
	}
}

func (l *Listener) handleConnection(ctx context.Context, conn quic.Connection) {
	remote := conn.RemoteAddr().String()
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}

		alpn := conn.ConnectionState().TLS.NegotiatedProtocol

		if l.preAuth != nil && !l.preAuth.Allow(remote) {
			metrics.StreamsAccepted.WithLabelValues(alpn, "rate_limited").Inc()
			stream.Close()
			continue
		}

		var release func()
		if l.Gate != nil {
			var ok bool
			release, ok = l.Gate.TryAcquire()
			if !ok {
				metrics.StreamsAccepted.WithLabelValues(alpn, "rate_limited").Inc()
				stream.Close()
				continue
			}
		}

		switch alpn {
		case ALPNControl:
			metrics.StreamsAccepted.WithLabelValues(alpn, "accepted").Inc()
			go l.runControlStream(ctx, remote, stream, release)
		case ALPNData:
			metrics.StreamsAccepted.WithLabelValues(alpn, "accepted").Inc()
			go l.runDataStream(ctx, remote, stream, release)
		default:
			metrics.StreamsAccepted.WithLabelValues(alpn, "denied").Inc()
			if release != nil {
				release()
			}
			stream.Close()
		}
	}
}

// runControlStream wraps handleControlStream with the concurrency gate's
// release, so a gated slot is always returned once the stream finishes.
func (l *Listener) runControlStream(ctx context.Context, remote string, stream quic.Stream, release func()) {
	if release != nil {
		defer release()
	}
	l.handleControlStream(ctx, remote, stream)
}

// runDataStream wraps handleDataStream the same way runControlStream wraps
// handleControlStream.
func (l *Listener) runDataStream(ctx context.Context, remote string, stream quic.Stream, release func()) {
	if release != nil {
		defer release()
	}
	l.handleDataStream(ctx, remote, stream)
}

func (l *Listener) handleControlStream(ctx context.Context, remote string, stream quic.Stream) {
	defer stream.Close()

	raw, err := io.ReadAll(io.LimitReader(stream, int64(l.cfg.MaxStreamBytes)+1))
	if err != nil || len(raw) > l.cfg.MaxStreamBytes {
		l.log.Debug("control stream read failed or oversize", logging.String("source", remote))
		return
	}

	e, err := envelope.Decode(raw, l.cfg.MaxStreamBytes)
	if err != nil {
		l.log.Debug("malformed envelope", logging.String("source", remote), logging.Error(err))
		return
	}

	peerID, desc, ok := l.resolver.ResolveByEndpoint(remote)
	if !ok {
		l.log.Debug("unknown source endpoint", logging.String("source", remote))
		return
	}

	result := l.validate.Validate(e, desc, peerID)
	if !result.Valid {
		l.log.Debug("envelope rejected", logging.String("peerId", peerID), logging.Error(result.Err))
		return
	}

	dispatchStart := time.Now()
	err = l.dispatcher.Dispatch(ctx, peerID, e)
	metrics.DispatchDuration.WithLabelValues(e.Type).Observe(time.Since(dispatchStart).Seconds())
	if err != nil {
		l.log.Warn("dispatch failed", logging.String("peerId", peerID), logging.Error(err))
	}
}

func (l *Listener) handleDataStream(ctx context.Context, remote string, stream quic.Stream) {
	defer stream.Close()

	peerID, _, ok := l.resolver.ResolveByEndpoint(remote)
	if !ok {
		return
	}

	reader := bufio.NewReader(stream)
	line, err := reader.ReadString('\n')
	if err != nil {
		return
	}

	host, port, ok := parseRelayPreamble(line)
	if !ok {
		return
	}

	if l.relay == nil || !l.relay.AllowRelay(peerID, host, port) {
		l.log.Debug("relay denied", logging.String("peerId", peerID), logging.String("host", host))
		return
	}

	target, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 10*time.Second)
	if err != nil {
		l.log.Debug("relay dial failed", logging.String("peerId", peerID), logging.Error(err))
		return
	}
	defer target.Close()

	metrics.ActiveRelays.Inc()
	defer metrics.ActiveRelays.Dec()
	proxy(stream, target)
}

// parseRelayPreamble parses "RELAY_TCP <host> <port>\n".
func parseRelayPreamble(line string) (host string, port int, ok bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) != 3 || fields[0] != "RELAY_TCP" {
		return "", 0, false
	}
	p, err := strconv.Atoi(fields[2])
	if err != nil || p <= 0 || p > 65535 {
		return "", 0, false
	}
	return fields[1], p, true
}

// proxy copies bytes bidirectionally between stream and target until
// either side closes.
func proxy(stream io.ReadWriteCloser, target net.Conn) {
	done := make(chan struct{}, 2)
	go func() {
		n, _ := io.Copy(target, stream)
		metrics.RelayBytesTransferred.WithLabelValues("upstream").Add(float64(n))
		done <- struct{}{}
	}()
	go func() {
		n, _ := io.Copy(stream, target)
		metrics.RelayBytesTransferred.WithLabelValues("downstream").Add(float64(n))
		done <- struct{}{}
	}()
	<-done
}

func (l *Listener) tlsConfig() (*tls.Config, error) {
	cert, err := l.loadOrGenerateCert()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPNControl, ALPNData},
	}, nil
}

func (l *Listener) loadOrGenerateCert() (tls.Certificate, error) {
	if l.cfg.CertPath != "" && l.cfg.KeyPath != "" {
		if cert, err := tls.LoadX509KeyPair(l.cfg.CertPath, l.cfg.KeyPath); err == nil {
			return cert, nil
		}
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("quicctl: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("quicctl: generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "overlay-node"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(l.cfg.CertValidFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("quicctl: create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("quicctl: marshal key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("quicctl: load generated pair: %w", err)
	}

	if l.cfg.CertPath != "" && l.cfg.KeyPath != "" {
		_ = os.WriteFile(l.cfg.CertPath, certPEM, 0o600)
		_ = os.WriteFile(l.cfg.KeyPath, keyPEM, 0o600)
	}

	return cert, nil
}

// Client is the L10 QUIC client half: it dials addr, opens one stream per
// control envelope, and closes the stream after writing.
type Client struct {
	tlsConf *tls.Config

	// PinCheck, if set, is called with the peer's leaf certificate right
	// after dialing and before anything is written. TLS itself never
	// verifies the server's identity here (InsecureSkipVerify is typically
	// true); PinCheck is where the overlay's own TOFU/descriptor pin cache
	// does that job instead.
	PinCheck func(cert *x509.Certificate) error
}

// NewClient builds a Client. insecureSkipVerify disables TLS certificate
// verification, appropriate for pinned-certificate peers where the
// overlay's own pin cache — not the TLS stack — does trust verification.
func NewClient(insecureSkipVerify bool) *Client {
	return &Client{tlsConf: &tls.Config{
		NextProtos:         []string{ALPNControl, ALPNData},
		InsecureSkipVerify: insecureSkipVerify,
	}}
}

// SendControl dials addr, checks the peer's certificate against PinCheck
// (if set), opens a control stream, writes e, and closes the stream. It
// returns once the write completes; it does not wait for the peer to read
// or acknowledge the envelope.
func (c *Client) SendControl(ctx context.Context, addr string, e *envelope.ControlEnvelope) error {
	conn, err := quic.DialAddr(ctx, addr, c.tlsConf, nil)
	if err != nil {
		return fmt.Errorf("quicctl: dial %s: %w", addr, err)
	}
	defer conn.CloseWithError(0, "done")

	if c.PinCheck != nil {
		certs := conn.ConnectionState().TLS.PeerCertificates
		if len(certs) == 0 {
			return fmt.Errorf("quicctl: peer presented no certificate")
		}
		if err := c.PinCheck(certs[0]); err != nil {
			return fmt.Errorf("quicctl: pin check failed: %w", err)
		}
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("quicctl: open stream: %w", err)
	}
	defer stream.Close()

	raw, err := envelope.Encode(e)
	if err != nil {
		return err
	}
	_, err = stream.Write(raw)
	return err
}
