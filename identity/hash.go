// Package identity provides the node keypair, peer-id derivation, and the
// signing/verifying/hashing primitives the rest of the node treats as black
// boxes (spec §4.A). Ed25519 for signatures, BLAKE2b-256 for content
// hashing.
package identity

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash256 is a fixed 256-bit cryptographic hash.
type Hash256 [32]byte

// String returns the lowercase hex encoding of h.
func (h Hash256) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero sentinel used for "no previous
// hash" (genesis height).
func (h Hash256) IsZero() bool {
	return h == Hash256{}
}

// Hash returns the BLAKE2b-256 hash of data.
func Hash(data []byte) Hash256 {
	return blake2b.Sum256(data)
}

// HashList returns a deterministic hash over an ordered sequence of ids,
// each length-prefixed to avoid boundary-ambiguity between different id
// sets that would otherwise concatenate to the same bytes.
func HashList(ids []string) Hash256 {
	var buf []byte
	for _, id := range ids {
		var lenPrefix [4]byte
		b := []byte(id)
		lenPrefix[0] = byte(len(b) >> 24)
		lenPrefix[1] = byte(len(b) >> 16)
		lenPrefix[2] = byte(len(b) >> 8)
		lenPrefix[3] = byte(len(b))
		buf = append(buf, lenPrefix[:]...)
		buf = append(buf, b...)
	}
	return Hash(buf)
}

// HashFromHex decodes a hex-encoded hash string.
func HashFromHex(s string) (Hash256, error) {
	var h Hash256
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return h, ErrUnknownKey
	}
	copy(h[:], b)
	return h, nil
}
