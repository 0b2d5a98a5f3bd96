// Package core defines Ephemera's wire-level data model: client messages,
// block headers and blocks, and quorum certificates (spec §3). Types here
// are plain data plus the pure validation/hashing functions the rest of the
// node builds on; no I/O happens in this package.
package core

import (
	"encoding/json"
	"errors"

	"github.com/nymtech/ephemera/identity"
)

// ErrNotFound is returned by storage lookups for a missing key.
var ErrNotFound = errors.New("core: not found")

// Message is a client-submitted message (spec §3). Data is opaque to the
// core; only the application hook interprets it.
type Message struct {
	Label            string `json:"label"`
	Data             []byte `json:"data"`
	CreatorPublicKey string `json:"creator_public_key"` // hex-encoded ed25519 pubkey
	Nonce            uint64 `json:"nonce"`
	Signature        string `json:"signature"`
}

// signingBody holds the fields covered by Message.Signature.
type signingBody struct {
	Label            string `json:"label"`
	Data             []byte `json:"data"`
	CreatorPublicKey string `json:"creator_public_key"`
	Nonce            uint64 `json:"nonce"`
}

// signableBytes returns the canonical bytes signed/verified for m.
func (m *Message) signableBytes() ([]byte, error) {
	return json.Marshal(signingBody{
		Label:            m.Label,
		Data:             m.Data,
		CreatorPublicKey: m.CreatorPublicKey,
		Nonce:            m.Nonce,
	})
}

// RequestID returns the dedup key hash(creator_public_key ‖ nonce) (spec
// §3). Two messages with the same creator and nonce collide on this id
// regardless of their payload, which is the intended idempotency key.
func (m *Message) RequestID() (identity.Hash256, error) {
	pub, err := identity.PubKeyFromHex(m.CreatorPublicKey)
	if err != nil {
		return identity.Hash256{}, err
	}
	buf := make([]byte, 0, len(pub)+8)
	buf = append(buf, pub...)
	buf = appendUint64(buf, m.Nonce)
	return identity.Hash(buf), nil
}

func appendUint64(buf []byte, v uint64) []byte {
	for i := 7; i >= 0; i-- {
		buf = append(buf, byte(v>>(8*uint(i))))
	}
	return buf
}

// Sign signs m with priv and sets m.CreatorPublicKey/m.Signature.
func (m *Message) Sign(priv identity.PrivateKey) error {
	m.CreatorPublicKey = priv.Public().Hex()
	body, err := m.signableBytes()
	if err != nil {
		return err
	}
	m.Signature = identity.Sign(priv, body)
	return nil
}

// Verify checks m.Signature against m.CreatorPublicKey.
func (m *Message) Verify() error {
	pub, err := identity.PubKeyFromHex(m.CreatorPublicKey)
	if err != nil {
		return identity.ErrUnknownKey
	}
	body, err := m.signableBytes()
	if err != nil {
		return err
	}
	return identity.Verify(pub, body, m.Signature)
}
