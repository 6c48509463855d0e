// Command slskdn-overlayd runs the overlay control-plane daemon: it loads
// configuration, opens the node's identity keystore, wires the L1-L12
// collaborators (replay, rate limiting, reputation, pin cache, descriptor
// validation, dispatch, directory, mesh-sync guard) and starts the UDP and
// QUIC control listeners plus the optional Prometheus exposition endpoint.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/snapetech/slskdn-sub011/health"
	"github.com/snapetech/slskdn-sub011/internal/config"
	"github.com/snapetech/slskdn-sub011/internal/logging"
	"github.com/snapetech/slskdn-sub011/internal/metrics"
	"github.com/snapetech/slskdn-sub011/internal/overlay/collab"
	"github.com/snapetech/slskdn-sub011/internal/overlay/directory"
	"github.com/snapetech/slskdn-sub011/internal/overlay/dispatch"
	"github.com/snapetech/slskdn-sub011/internal/overlay/envelope"
	"github.com/snapetech/slskdn-sub011/internal/overlay/keystore"
	"github.com/snapetech/slskdn-sub011/internal/overlay/meshsync"
	"github.com/snapetech/slskdn-sub011/internal/overlay/pin"
	"github.com/snapetech/slskdn-sub011/internal/overlay/ratelimit"
	"github.com/snapetech/slskdn-sub011/internal/overlay/registry"
	"github.com/snapetech/slskdn-sub011/internal/overlay/replay"
	"github.com/snapetech/slskdn-sub011/internal/overlay/reputation"
	"github.com/snapetech/slskdn-sub011/internal/overlay/signer"
	"github.com/snapetech/slskdn-sub011/internal/overlay/transport/quicctl"
	"github.com/snapetech/slskdn-sub011/internal/overlay/transport/udpctl"
	"github.com/snapetech/slskdn-sub011/internal/overlay/validator"
	"github.com/snapetech/slskdn-sub011/pkg/storage"
	pkgmemory "github.com/snapetech/slskdn-sub011/pkg/storage/memory"
	pkgpostgres "github.com/snapetech/slskdn-sub011/pkg/storage/postgres"
	"github.com/snapetech/slskdn-sub011/pkg/version"
)

var (
	configPath string
	envFile    string
	bootstrap  []string
)

var rootCmd = &cobra.Command{
	Use:   "slskdn-overlayd",
	Short: "Overlay control-plane daemon",
	Long: `slskdn-overlayd is the secure overlay control-plane node: it
authenticates inbound envelopes, enforces replay and rate-limit policy,
tracks peer reputation, pins QUIC certificates on first sight, and serves
the directory and mesh-sync gossip guard over UDP and QUIC.`,
	Version: version.String(),
	RunE:    runDaemon,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "optional .env file to seed the process environment")
	rootCmd.Flags().StringSliceVar(&bootstrap, "bootstrap", nil, "QUIC addresses of bootstrap peers to announce to on startup")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "slskdn-overlayd: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := logging.Level(0)
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		level = logging.Level(0)
	}
	log := logging.New(os.Stdout, level).Named("overlayd")

	ks, err := keystore.Open(cfg.Identity.KeyStoreDir, keystore.WithMaxRetainedKeys(cfg.Identity.MaxRetainedKeys))
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}
	sgn := signer.New(ks)

	store, err := openStore(context.Background(), cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage backend: %w", err)
	}
	defer store.Close()

	replayCache := replay.New(cfg.Replay.TTL, cfg.Replay.MaxPeers)
	defer replayCache.Close()

	preAuth := ratelimit.NewSourceLimiter(cfg.RateLimit.PreAuthPerSecond, cfg.RateLimit.PreAuthBurst, cfg.RateLimit.SourceIdleTTL)
	perPeerType := ratelimit.NewPeerTypeLimiter(cfg.RateLimit.PerPeerTypePerSec, cfg.RateLimit.PerPeerTypeBurst)
	gate := ratelimit.NewConcurrencyGate(cfg.RateLimit.MaxConcurrent, cfg.RateLimit.MaxConcurrent)

	protectorKey := []byte(os.Getenv(cfg.Reputation.ProtectorKeyEnv))
	if len(protectorKey) != 32 {
		protectorKey = make([]byte, 32)
	}
	protector, err := reputation.NewProtector(protectorKey)
	if err != nil {
		return fmt.Errorf("build reputation protector: %w", err)
	}
	repCfg := reputation.Config{
		BanThreshold:  cfg.Reputation.BanThreshold,
		HalfLife:      cfg.Reputation.HalfLife,
		DecayInterval: cfg.Reputation.DecayInterval,
		RetentionDays: cfg.Reputation.RetentionDays,
		MaxEvents:     cfg.Reputation.MaxEvents,
	}
	rep := reputation.New(store.ReputationStore(), protector, repCfg)
	defer rep.Close()

	pinCache := pin.New(cfg.TLS.PinCacheTTL)

	securityLog, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build security event logger: %w", err)
	}
	defer securityLog.Sync()
	events := collab.NewZapSecurityEventLogger(securityLog)

	descValidator := collab.NewDescriptorValidator()
	peers := registry.New(descValidator)

	dht := collab.NewLocalDHT()
	serviceValidator := collab.NewServiceDescriptorValidator(peers)
	dirCfg := directory.DefaultConfig()
	dirCfg.MaxDescriptorsPerLookup = cfg.Directory.MaxDescriptorsPerLookup
	dirCfg.CacheSize = cfg.Directory.CacheSize
	dirCfg.CacheTTL = cfg.Directory.CacheTTL
	dir := directory.New(dirCfg, dht, serviceValidator, events)

	guard := meshsync.New(meshsync.DefaultConfig(), peers, rep, events)

	self, err := selfDescriptor(ks, cfg.Listeners.QUICAddr)
	if err != nil {
		return fmt.Errorf("build self descriptor: %w", err)
	}
	if err := peers.Upsert(self); err != nil {
		return fmt.Errorf("register self descriptor: %w", err)
	}
	selfRaw, err := cbor.Marshal(self)
	if err != nil {
		return fmt.Errorf("marshal self descriptor: %w", err)
	}
	if err := dht.Put(context.Background(), "peer:"+self.PeerID, selfRaw, cfg.TLS.ValidFor); err != nil {
		return fmt.Errorf("publish self descriptor: %w", err)
	}
	log.Info("published self descriptor", logging.String("peer_id", self.PeerID))

	v := validator.New(validator.DefaultConfig(), perPeerType, reputationQuarantine{rep}, replayCache)

	d := dispatch.New()
	registerHandlers(d, log, dir, guard)

	udpListener := udpctl.New(udpctl.DefaultConfig(), peers, preAuth, v, d, log)
	quicListener := quicctl.New(quicctl.Config{
		MaxStreamBytes: envelope.DefaultMaxPayload + 4096,
		CertValidFor:   cfg.TLS.ValidFor,
		CertPath:       cfg.TLS.CertPath,
		KeyPath:        cfg.TLS.KeyPath,
	}, peers, preAuth, v, d, denyAllRelay{}, log)
	udpListener.Gate = gate
	quicListener.Gate = gate

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := udpListener.Start(ctx, cfg.Listeners.UDPAddr); err != nil {
		return fmt.Errorf("start udp listener: %w", err)
	}
	if err := quicListener.Start(ctx, cfg.Listeners.QUICAddr); err != nil {
		return fmt.Errorf("start quic listener: %w", err)
	}

	checker := health.NewHealthChecker(0)
	checker.SetLogger(log)
	checker.RegisterCheck("keystore", health.KeyStoreHealthCheck(func() error {
		_ = ks.Current()
		return nil
	}))
	checker.RegisterCheck("dht", health.DHTHealthCheck(func(ctx context.Context) error {
		return dht.Ping(ctx, "")
	}))

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Addr); err != nil {
				log.Error("metrics server stopped", logging.Error(err))
			}
		}()
	}

	log.Info("overlay daemon started",
		logging.String("udp_addr", cfg.Listeners.UDPAddr),
		logging.String("quic_addr", cfg.Listeners.QUICAddr),
		logging.String("environment", cfg.Environment),
	)

	for _, addr := range bootstrap {
		if err := announce(ctx, sgn, pinCache, self.PeerID, addr); err != nil {
			log.Warn("bootstrap announce failed", logging.String("addr", addr), logging.Error(err))
		} else {
			log.Info("announced to bootstrap peer", logging.String("addr", addr))
		}
	}

	<-ctx.Done()
	log.Info("shutting down")
	udpListener.Close()
	quicListener.Close()
	return nil
}

// reputationQuarantine adapts reputation.Tracker's context-taking IsBanned
// to validator.Quarantine's synchronous shape.
type reputationQuarantine struct {
	rep *reputation.Tracker
}

func (q reputationQuarantine) IsBanned(peerID string) bool {
	banned, err := q.rep.IsBanned(context.Background(), peerID)
	return err == nil && banned
}

// denyAllRelay is the daemon's RELAY_TCP policy: it refuses every relay
// request. The daemon has no configuration option for an allow-list.
type denyAllRelay struct{}

func (denyAllRelay) AllowRelay(peerID, host string, port int) bool { return false }

// openStore builds the configured replay/reputation persistence backend.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return pkgpostgres.NewStore(ctx, &pkgpostgres.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Database,
			SSLMode:  cfg.SSLMode,
		})
	default:
		return pkgmemory.NewStore(), nil
	}
}

// registerHandlers wires every control-plane message type this node
// understands. The transports never wait for a reply (SendControl closes the
// stream once the write completes), so every handler here is one-way: a
// query like "find_service" answers by logging and leaving cache/metrics
// side effects for the requester's own subsequent lookups, not a return
// envelope.
func registerHandlers(d *dispatch.Dispatcher, log logging.Logger, dir *directory.Directory, guard *meshsync.Guard) {
	d.Register("ping", func(ctx context.Context, peerID string, e *envelope.ControlEnvelope) error {
		log.Debug("ping received", logging.String("peer_id", peerID))
		return nil
	})

	d.Register("find_service", func(ctx context.Context, peerID string, e *envelope.ControlEnvelope) error {
		services, err := dir.FindByName(ctx, string(e.Payload), peerID)
		if err != nil {
			log.Debug("find_service failed", logging.String("peer_id", peerID), logging.Error(err))
			return err
		}
		log.Debug("find_service resolved",
			logging.String("peer_id", peerID),
			logging.String("service", string(e.Payload)),
			logging.Int("count", len(services)),
		)
		return nil
	})

	d.Register("gossip", func(ctx context.Context, peerID string, e *envelope.ControlEnvelope) error {
		var batch meshsync.Batch
		if err := cbor.Unmarshal(e.Payload, &batch); err != nil {
			return fmt.Errorf("overlayd: decode gossip batch: %w", err)
		}
		accepted, err := guard.Accept(&batch)
		if err != nil {
			log.Debug("gossip batch rejected", logging.String("peer_id", peerID), logging.Error(err))
			return err
		}
		log.Debug("gossip batch accepted",
			logging.String("peer_id", peerID),
			logging.Int("accepted_entries", len(accepted)),
		)
		return nil
	})
}

// selfDescriptor builds and self-signs this node's own PeerDescriptor using
// its current identity key, so it can be published into the DHT and
// registered locally for the validator's own pin/signature checks.
func selfDescriptor(ks *keystore.KeyStore, quicAddr string) (*collab.PeerDescriptor, error) {
	kp := ks.Current()
	pub, ok := kp.PublicKey().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("overlayd: unsupported identity key type %s", kp.Type())
	}

	desc := &collab.PeerDescriptor{
		PeerID:             envelope.DerivePeerID(pub),
		ControlSigningKeys: []ed25519.PublicKey{pub},
		Endpoints:          []string{quicAddr},
		Expiry:             time.Now().Add(5 * 365 * 24 * time.Hour),
		SequenceNumber:     1,
	}
	if err := collab.SelfSign(kp, desc); err != nil {
		return nil, err
	}
	return desc, nil
}

// announce signs a "ping" envelope with the node's identity key and sends
// it to addr over QUIC, pinning the peer's certificate on first contact —
// TOFU-by-address, since a bootstrap peer's descriptor (and therefore its
// real peer id) is not yet known.
func announce(ctx context.Context, sgn *signer.Signer, pinCache *pin.Cache, selfPeerID, addr string) error {
	id := uuid.New()
	e := &envelope.ControlEnvelope{
		Type:            "ping",
		Payload:         []byte(selfPeerID),
		TimestampUnixMs: time.Now().UnixMilli(),
		MessageID:       hex.EncodeToString(id[:]),
	}
	if err := sgn.Sign(e); err != nil {
		return fmt.Errorf("sign announce envelope: %w", err)
	}

	client := quicctl.NewClient(true)
	client.PinCheck = func(cert *x509.Certificate) error {
		return pinCache.Check(addr, cert)
	}
	return client.SendControl(ctx, addr, e)
}
