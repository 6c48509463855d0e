// Package keystore implements L1: the node's own signing identity. It wraps
// sagecrypto.KeyPair/KeyStorage with file-backed persistence so that a
// node's identity survives process restarts, and tracks a bounded history
// of prior public keys so in-flight signatures from just before a rotation
// still verify.
package keystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sagecrypto "github.com/snapetech/slskdn-sub011/crypto"
	"github.com/snapetech/slskdn-sub011/crypto/formats"
	"github.com/snapetech/slskdn-sub011/crypto/keys"
	storage "github.com/snapetech/slskdn-sub011/crypto/storage"
)

const identityKeyID = "node-identity"

// KeyStore manages the node's current signing key and a bounded set of
// recently retired keys kept around only so in-flight messages signed just
// before a rotation still verify.
type KeyStore struct {
	mu   sync.RWMutex
	path string

	store    sagecrypto.KeyStorage
	exporter sagecrypto.KeyExporter
	importer sagecrypto.KeyImporter

	current   sagecrypto.KeyPair
	retired   []sagecrypto.KeyPair
	maxRetain int

	rotatedAt time.Time
}

// Option configures a KeyStore at construction time.
type Option func(*KeyStore)

// WithMaxRetainedKeys bounds how many retired keys are kept for verification.
func WithMaxRetainedKeys(n int) Option {
	return func(k *KeyStore) { k.maxRetain = n }
}

// persistedFile is the on-disk JSON envelope: current key plus retired keys,
// all exported as JWK.
type persistedFile struct {
	Current       json.RawMessage   `json:"current"`
	Retired       []json.RawMessage `json:"retired,omitempty"`
	LastRotatedAt time.Time         `json:"lastRotatedAt"`
}

// Open loads the identity key from path, generating and persisting a fresh
// Ed25519 key pair if the file does not exist.
func Open(path string, opts ...Option) (*KeyStore, error) {
	k := &KeyStore{
		path:      path,
		store:     storage.NewMemoryKeyStorage(),
		exporter:  formats.NewJWKExporter(),
		importer:  formats.NewJWKImporter(),
		maxRetain: 2,
	}
	for _, opt := range opts {
		opt(k)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		kp, genErr := keys.GenerateEd25519KeyPair()
		if genErr != nil {
			return nil, fmt.Errorf("keystore: generate identity key: %w", genErr)
		}
		k.current = kp
		k.rotatedAt = time.Now()
		if err := k.persist(); err != nil {
			return nil, err
		}
		return k, nil
	} else if err != nil {
		return nil, fmt.Errorf("keystore: stat %s: %w", path, err)
	}

	if err := k.load(); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *KeyStore) load() error {
	raw, err := os.ReadFile(k.path)
	if err != nil {
		return fmt.Errorf("keystore: read %s: %w", k.path, err)
	}

	var pf persistedFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return fmt.Errorf("keystore: parse %s: %w", k.path, err)
	}

	current, err := k.importer.Import(pf.Current, sagecrypto.KeyFormatJWK)
	if err != nil {
		return fmt.Errorf("keystore: import current key: %w", err)
	}

	retired := make([]sagecrypto.KeyPair, 0, len(pf.Retired))
	for _, r := range pf.Retired {
		kp, err := k.importer.Import(r, sagecrypto.KeyFormatJWK)
		if err != nil {
			return fmt.Errorf("keystore: import retired key: %w", err)
		}
		retired = append(retired, kp)
	}

	k.current = current
	k.retired = retired
	k.rotatedAt = pf.LastRotatedAt
	return nil
}

func (k *KeyStore) persist() error {
	currentJWK, err := k.exporter.Export(k.current, sagecrypto.KeyFormatJWK)
	if err != nil {
		return fmt.Errorf("keystore: export current key: %w", err)
	}

	retiredJWK := make([]json.RawMessage, 0, len(k.retired))
	for _, kp := range k.retired {
		raw, err := k.exporter.Export(kp, sagecrypto.KeyFormatJWK)
		if err != nil {
			return fmt.Errorf("keystore: export retired key: %w", err)
		}
		retiredJWK = append(retiredJWK, raw)
	}

	pf := persistedFile{
		Current:       currentJWK,
		Retired:       retiredJWK,
		LastRotatedAt: k.rotatedAt,
	}

	data, err := json.MarshalIndent(&pf, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: marshal: %w", err)
	}

	if dir := filepath.Dir(k.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("keystore: mkdir %s: %w", dir, err)
		}
	}

	tmp := k.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("keystore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, k.path); err != nil {
		return fmt.Errorf("keystore: rename %s: %w", tmp, err)
	}
	return nil
}

// Current returns the node's active signing key pair.
func (k *KeyStore) Current() sagecrypto.KeyPair {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current
}

// VerificationKeys returns the current key plus any retired keys still kept
// around for verifying in-flight signatures from before the last rotation.
func (k *KeyStore) VerificationKeys() []sagecrypto.KeyPair {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make([]sagecrypto.KeyPair, 0, 1+len(k.retired))
	out = append(out, k.current)
	out = append(out, k.retired...)
	return out
}

// Rotate generates a fresh Ed25519 identity key, retires the previous
// current key (bounded by maxRetain), and persists the new state to disk.
func (k *KeyStore) Rotate() (sagecrypto.KeyPair, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	newKey, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("keystore: rotate: generate: %w", err)
	}

	k.retired = append([]sagecrypto.KeyPair{k.current}, k.retired...)
	if len(k.retired) > k.maxRetain {
		k.retired = k.retired[:k.maxRetain]
	}
	k.current = newKey
	k.rotatedAt = time.Now()

	if err := k.persist(); err != nil {
		return nil, err
	}
	return newKey, nil
}

// RotatedAt reports when the current key was installed.
func (k *KeyStore) RotatedAt() time.Time {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.rotatedAt
}
