package validator

import (
	"encoding/base64"
	"fmt"

	"crypto/ed25519"
)

// decodeSignature parses e.Signature, requiring exactly ed25519.SignatureSize
// raw bytes once base64-decoded, per spec.md §4.2 step 1.
func decodeSignature(b64 string) ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("malformed signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig))
	}
	return sig, nil
}
