// Package udpctl implements the L9/L10 UDP control transport: a listener
// that reads one envelope per datagram and a client half that writes one.
// The listener never turns a local failure into a process exit — a bind
// failure is logged and the accept loop simply never starts, following the
// degraded-start contract the rest of the overlay's listeners share
// (spec.md §6, §9).
package udpctl

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/snapetech/slskdn-sub011/internal/logging"
	"github.com/snapetech/slskdn-sub011/internal/metrics"
	"github.com/snapetech/slskdn-sub011/internal/overlay/dispatch"
	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
	"github.com/snapetech/slskdn-sub011/internal/overlay/ratelimit"
	"github.com/snapetech/slskdn-sub011/internal/overlay/validator"
)

// PeerResolver maps a UDP source address to the peer identity and
// signature-verification descriptor the validator needs. Implementations
// typically consult a descriptor cache populated from the DHT.
type PeerResolver interface {
	ResolveByEndpoint(addr string) (peerID string, desc *validator.Descriptor, ok bool)
}

// Config bounds datagram size and the socket read buffer.
type Config struct {
	MaxDatagramSize int
	ReadBufferSize  int
}

// DefaultConfig matches spec.md §3's 1 MiB payload cap plus CBOR/signature
// overhead headroom.
func DefaultConfig() Config {
	return Config{MaxDatagramSize: envelope.DefaultMaxPayload + 4096, ReadBufferSize: 1 << 20}
}

// Listener is the UDP control-plane listener.
type Listener struct {
	cfg        Config
	conn       *net.UDPConn
	resolver   PeerResolver
	preAuth    *ratelimit.SourceLimiter
	validate   *validator.Validator
	dispatcher *dispatch.Dispatcher
	log        logging.Logger

	// Gate, if set, bounds how many datagrams may be in concurrent dispatch
	// at once across the whole listener, independent of preAuth's per-source
	// throttle. Left nil by New; callers that want it set it directly.
	Gate *ratelimit.ConcurrencyGate

	closeOnce sync.Once
	done      chan struct{}
}

// New builds a Listener. It does not bind a socket — call Start for that.
func New(cfg Config, resolver PeerResolver, preAuth *ratelimit.SourceLimiter, v *validator.Validator, d *dispatch.Dispatcher, log logging.Logger) *Listener {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Listener{
		cfg:        cfg,
		resolver:   resolver,
		preAuth:    preAuth,
		validate:   v,
		dispatcher: d,
		log:        log.Named("Overlay-UDP"),
		done:       make(chan struct{}),
	}
}

// Start binds addr and launches the accept loop in the background,
// returning immediately. A bind failure is logged and Start returns nil —
// it is not a fatal condition for the process hosting the listener.
func (l *Listener) Start(ctx context.Context, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		l.log.Warn("failed to resolve udp address", logging.String("addr", addr), logging.Error(err))
		return nil
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		l.log.Warn("failed to bind udp listener, running degraded", logging.String("addr", addr), logging.Error(err))
		return nil
	}
	if l.cfg.ReadBufferSize > 0 {
		_ = conn.SetReadBuffer(l.cfg.ReadBufferSize)
	}
	l.conn = conn

	go l.acceptLoop(ctx)
	return nil
}

// Close stops the accept loop and releases the socket.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

func (l *Listener) acceptLoop(ctx context.Context) {
	buf := make([]byte, l.cfg.MaxDatagramSize+1)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		default:
		}

		n, srcAddr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			l.log.Warn("udp read error", logging.Error(err))
			continue
		}

		if n > l.cfg.MaxDatagramSize {
			metrics.DatagramsReceived.WithLabelValues("oversize").Inc()
			continue // dropped: oversize
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		go l.handleDatagram(ctx, srcAddr.String(), datagram)
	}
}

func (l *Listener) handleDatagram(ctx context.Context, src string, datagram []byte) {
	if l.preAuth != nil && !l.preAuth.Allow(src) {
		metrics.DatagramsReceived.WithLabelValues("rate_limited").Inc()
		l.log.Debug("pre-auth rate limit dropped datagram", logging.String("source", src))
		return
	}

	if l.Gate != nil {
		release, ok := l.Gate.TryAcquire()
		if !ok {
			metrics.DatagramsReceived.WithLabelValues("rate_limited").Inc()
			l.log.Debug("concurrency gate dropped datagram", logging.String("source", src))
			return
		}
		defer release()
	}

	e, err := envelope.Decode(datagram, l.cfg.MaxDatagramSize)
	if err != nil {
		metrics.DatagramsReceived.WithLabelValues("malformed").Inc()
		l.log.Debug("malformed envelope", logging.String("source", src), logging.Error(err))
		return
	}

	peerID, desc, ok := l.resolver.ResolveByEndpoint(src)
	if !ok {
		metrics.DatagramsReceived.WithLabelValues("unknown_source").Inc()
		l.log.Debug("unknown source endpoint", logging.String("source", src))
		return
	}

	result := l.validate.Validate(e, desc, peerID)
	if !result.Valid {
		metrics.DatagramsReceived.WithLabelValues("rejected").Inc()
		l.log.Debug("envelope rejected", logging.String("peerId", peerID), logging.Error(result.Err))
		return
	}
	metrics.DatagramsReceived.WithLabelValues("accepted").Inc()

	dispatchStart := time.Now()
	err = l.dispatcher.Dispatch(ctx, peerID, e)
	metrics.DispatchDuration.WithLabelValues(e.Type).Observe(time.Since(dispatchStart).Seconds())
	if err != nil {
		l.log.Warn("dispatch failed", logging.String("peerId", peerID), logging.Error(err))
	}
}

// Client is the L10 UDP client half: it signs nothing itself (the caller
// is expected to have produced a fully-signed envelope via
// internal/overlay/signer); it CBOR-encodes the envelope and writes it to a
// remote UDP endpoint.
type Client struct {
	timeout time.Duration
}

// NewClient builds a Client with the given write deadline.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{timeout: timeout}
}

// Send marshals e as CBOR and writes it as a single UDP datagram to addr.
func (c *Client) Send(ctx context.Context, addr string, e *envelope.ControlEnvelope) error {
	raw, err := cbor.Marshal(e)
	if err != nil {
		return err
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}

	_, err = conn.Write(raw)
	return err
}
