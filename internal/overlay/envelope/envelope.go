// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package envelope defines the ControlEnvelope wire type, its CBOR codec,
// and the two signature-base forms (canonical and legacy).
package envelope

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/sha3"
)

const (
	// MaxTypeLen bounds the envelope type string.
	MaxTypeLen = 64
	// DefaultMaxPayload is the mesh-level effective payload cap.
	DefaultMaxPayload = 1 << 20 // 1 MiB
	// MessageIDLen is the length in bytes of a messageId (hex-encoded to 32 chars).
	MessageIDLen = 16
)

// ControlEnvelope is the wire message exchanged between overlay peers.
// Field order matches spec §6.1: type, payload, publicKey, signature,
// timestampUnixMs, messageId.
type ControlEnvelope struct {
	Type            string `cbor:"type"`
	Payload         []byte `cbor:"payload"`
	PublicKey       string `cbor:"publicKey"` // base64, advisory only — never used for identity
	Signature       string `cbor:"signature"` // base64 of 64 raw bytes
	TimestampUnixMs int64  `cbor:"timestampUnixMs"`
	MessageID       string `cbor:"messageId"` // hex string, 32 chars
}

// Encode serializes the envelope to its wire form (CBOR).
func Encode(e *ControlEnvelope) ([]byte, error) {
	return cbor.Marshal(e)
}

// Decode deserializes an envelope from its wire form, rejecting anything
// larger than maxBytes before attempting to parse it.
func Decode(data []byte, maxBytes int) (*ControlEnvelope, error) {
	if len(data) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds cap %d", ErrOversize, len(data), maxBytes)
	}

	var e ControlEnvelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(e.Type) > MaxTypeLen {
		return nil, fmt.Errorf("%w: type exceeds %d bytes", ErrMalformed, MaxTypeLen)
	}
	return &e, nil
}

// CanonicalSigningBytes returns the deterministic byte serialization of
// (type, timestamp, messageId, payload) used for signing, per spec §3.
// Field order is fixed and lengths are explicit (length-prefixed) so that no
// two distinct tuples ever produce the same byte string.
func CanonicalSigningBytes(envType string, timestampUnixMs int64, messageID string, payload []byte) []byte {
	buf := make([]byte, 0, len(envType)+len(messageID)+len(payload)+24)

	buf = appendLenPrefixed(buf, []byte(envType))

	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], uint64(timestampUnixMs))
	buf = append(buf, tsBytes[:]...)

	buf = appendLenPrefixed(buf, []byte(messageID))
	buf = appendLenPrefixed(buf, payload)

	return buf
}

// LegacySigningBytes returns the legacy signature base, kept only for
// backward-compatible verification: "{type}|{ts}|{base64(payload)}".
func LegacySigningBytes(envType string, timestampUnixMs int64, payload []byte) []byte {
	return []byte(fmt.Sprintf("%s|%d|%s", envType, timestampUnixMs, base64.StdEncoding.EncodeToString(payload)))
}

func appendLenPrefixed(buf []byte, field []byte) []byte {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(field)))
	buf = append(buf, lenBytes[:]...)
	return append(buf, field...)
}

// DerivePeerID derives the 20-byte peer id from an Ed25519 identity public
// key, following the same Keccak-then-last-20-bytes idiom used for Ethereum
// address derivation: Keccak256(pubkey)[12:].
func DerivePeerID(pub ed25519.PublicKey) string {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(pub)
	sum := hash.Sum(nil)
	return hex.EncodeToString(sum[len(sum)-20:])
}
