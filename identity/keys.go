package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"

	"github.com/mr-tron/base58"
)

// PrivateKey wraps ed25519 private key bytes.
type PrivateKey []byte

// PublicKey wraps ed25519 public key bytes.
type PublicKey []byte

// PeerID is a stable, base58-encoded fingerprint of a public key (spec
// §4.A). Two peers with the same public key always derive the same PeerID.
type PeerID string

// GenerateKeyPair generates a new ed25519 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PrivateKey(priv), PublicKey(pub), nil
}

// Public derives the ed25519 public key from the private key.
func (priv PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
}

// Hex returns the hex-encoded private key, used only for keystore export.
func (priv PrivateKey) Hex() string {
	return hex.EncodeToString(priv)
}

// Hex returns the full hex-encoded public key.
func (pub PublicKey) Hex() string {
	return hex.EncodeToString(pub)
}

// PeerID derives this public key's stable base58 fingerprint: the BLAKE2b-256
// hash of the raw key bytes, base58-encoded.
func (pub PublicKey) PeerID() PeerID {
	h := Hash(pub)
	return PeerID(base58.Encode(h[:]))
}

// PubKeyFromHex decodes a hex-encoded public key.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return nil, ErrUnknownKey
	}
	return PublicKey(b), nil
}

// PrivKeyFromHex decodes a hex-encoded private key.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != ed25519.PrivateKeySize {
		return nil, ErrUnknownKey
	}
	return PrivateKey(b), nil
}
