// Package config loads and validates the overlay node's configuration:
// identity/keystore paths, listener bind addresses, TLS cert material,
// and the rate-limit/reputation/replay thresholds the control plane runs
// with. Files are YAML, ${VAR} / ${VAR:default} placeholders are expanded
// against the process environment, and an optional .env file (loaded via
// godotenv) can seed that environment before expansion runs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the overlay node's full runtime configuration.
type Config struct {
	Environment string           `yaml:"environment"`
	Identity    IdentityConfig   `yaml:"identity"`
	Listeners   ListenersConfig  `yaml:"listeners"`
	TLS         TLSConfig        `yaml:"tls"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
	Reputation  ReputationConfig `yaml:"reputation"`
	Replay      ReplayConfig     `yaml:"replay"`
	Directory   DirectoryConfig  `yaml:"directory"`
	Logging     LoggingConfig    `yaml:"logging"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Storage     StorageConfig    `yaml:"storage"`
}

// IdentityConfig locates the node's long-lived Ed25519 identity.
type IdentityConfig struct {
	KeyStoreDir     string `yaml:"keystore_dir"`
	MaxRetainedKeys int    `yaml:"max_retained_keys"`
}

// ListenersConfig configures the L9 UDP and QUIC control listeners.
type ListenersConfig struct {
	UDPAddr  string `yaml:"udp_addr"`
	QUICAddr string `yaml:"quic_addr"`
}

// TLSConfig configures the QUIC listener's certificate material.
type TLSConfig struct {
	CertPath    string        `yaml:"cert_path"`
	KeyPath     string        `yaml:"key_path"`
	ValidFor    time.Duration `yaml:"valid_for"`
	PinCacheTTL time.Duration `yaml:"pin_cache_ttl"`
}

// RateLimitConfig configures the three-tier limiter.
type RateLimitConfig struct {
	PreAuthPerSecond  float64       `yaml:"pre_auth_per_second"`
	PreAuthBurst      int           `yaml:"pre_auth_burst"`
	PerPeerTypePerSec float64       `yaml:"per_peer_type_per_second"`
	PerPeerTypeBurst  int           `yaml:"per_peer_type_burst"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	SourceIdleTTL     time.Duration `yaml:"source_idle_ttl"`
}

// ReputationConfig mirrors reputation.Config in YAML form.
type ReputationConfig struct {
	BanThreshold    int           `yaml:"ban_threshold"`
	HalfLife        time.Duration `yaml:"half_life"`
	DecayInterval   time.Duration `yaml:"decay_interval"`
	RetentionDays   int           `yaml:"retention_days"`
	MaxEvents       int           `yaml:"max_events"`
	ProtectorKeyEnv string        `yaml:"protector_key_env"`
}

// ReplayConfig mirrors replay.Cache's bounds in YAML form.
type ReplayConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	MaxPeers int           `yaml:"max_peers"`
}

// DirectoryConfig mirrors directory.Config's lookup and abuse thresholds.
type DirectoryConfig struct {
	MaxDescriptorsPerLookup int           `yaml:"max_descriptors_per_lookup"`
	CacheSize               int           `yaml:"cache_size"`
	CacheTTL                time.Duration `yaml:"cache_ttl"`
}

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// StorageConfig selects and configures the replay/reputation persistence
// backend. Backend "memory" (the default) keeps no state across restarts;
// "postgres" shares durable state across a cluster of nodes.
type StorageConfig struct {
	Backend  string `yaml:"backend"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DefaultConfig returns the overlay's baked-in defaults, applied before a
// config file is loaded and for any field a loaded file leaves zero.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Identity: IdentityConfig{
			KeyStoreDir:     ".overlay/keys",
			MaxRetainedKeys: 2,
		},
		Listeners: ListenersConfig{
			UDPAddr:  ":9100",
			QUICAddr: ":9101",
		},
		TLS: TLSConfig{
			CertPath:    ".overlay/tls/cert.pem",
			KeyPath:     ".overlay/tls/key.pem",
			ValidFor:    5 * 365 * 24 * time.Hour,
			PinCacheTTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			PreAuthPerSecond:  20,
			PreAuthBurst:      40,
			PerPeerTypePerSec: 10,
			PerPeerTypeBurst:  20,
			MaxConcurrent:     256,
			SourceIdleTTL:     10 * time.Minute,
		},
		Reputation: ReputationConfig{
			BanThreshold:    -10,
			HalfLife:        7 * 24 * time.Hour,
			DecayInterval:   time.Minute,
			RetentionDays:   30,
			MaxEvents:       64,
			ProtectorKeyEnv: "OVERLAY_REPUTATION_KEY",
		},
		Replay: ReplayConfig{
			TTL:      5 * time.Minute,
			MaxPeers: 10000,
		},
		Directory: DirectoryConfig{
			MaxDescriptorsPerLookup: 16,
			CacheSize:               512,
			CacheTTL:                5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9102", Path: "/metrics"},
		Storage: StorageConfig{
			Backend: "memory",
			Port:    5432,
			SSLMode: "prefer",
		},
	}
}

// Load reads path (YAML), expands ${VAR}/${VAR:default} placeholders
// against the process environment, and fills any zero field from
// DefaultConfig. If envFile is non-empty it is loaded into the process
// environment (without overwriting variables already set) before
// expansion, via godotenv.
func Load(path string, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load env file %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		expanded := SubstituteEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that DefaultConfig's zero-value fallback
// cannot repair on its own — the things a malformed file can still get
// wrong.
func Validate(cfg *Config) error {
	if cfg.Reputation.BanThreshold > 0 {
		return fmt.Errorf("config: reputation.ban_threshold must be <= 0, got %d", cfg.Reputation.BanThreshold)
	}
	if cfg.Reputation.HalfLife <= 0 {
		return fmt.Errorf("config: reputation.half_life must be positive")
	}
	if cfg.RateLimit.MaxConcurrent <= 0 {
		return fmt.Errorf("config: rate_limit.max_concurrent must be positive")
	}
	if cfg.Replay.MaxPeers <= 0 {
		return fmt.Errorf("config: replay.max_peers must be positive")
	}
	switch cfg.Storage.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("config: storage.backend must be %q or %q, got %q", "memory", "postgres", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "postgres" && cfg.Storage.Database == "" {
		return fmt.Errorf("config: storage.database is required when storage.backend is \"postgres\"")
	}
	return nil
}
