package main

import (
	"crypto/ed25519"
	"fmt"
	"os"

	"github.com/snapetech/slskdn-sub011/internal/overlay/keystore"
)

// identityPublicKey extracts ks's current Ed25519 public key, the only
// identity key type the overlay's control-plane signing scheme supports.
func identityPublicKey(ks *keystore.KeyStore) (ed25519.PublicKey, error) {
	kp := ks.Current()
	pub, ok := kp.PublicKey().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("overlayctl: unsupported identity key type %s", kp.Type())
	}
	return pub, nil
}

// writeDescriptorFile writes raw CBOR bytes to path.
func writeDescriptorFile(path string, raw []byte) error {
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("descriptor written to %s (%d bytes)\n", path, len(raw))
	return nil
}
