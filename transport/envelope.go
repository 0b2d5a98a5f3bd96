// Package transport implements the gossip/direct peer-to-peer transport
// (spec §6 "Wire protocol", "Transport") and the mTLS it optionally runs
// over. Grounded on teacher's network package: length-prefixed framing
// (network/peer.go) and an accept-loop + per-peer read-loop node
// (network/node.go), generalized from chain tx/block messages to
// ProtocolEnvelope phase topics.
package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/nymtech/ephemera/broadcast"
	"github.com/nymtech/ephemera/core"
	"github.com/nymtech/ephemera/identity"
)

// maxEnvelopeBytes bounds a single frame, matching teacher's 32MB safety
// limit in network/peer.go.
const maxEnvelopeBytes = 32 * 1024 * 1024

// Envelope is the wire form of spec §6's ProtocolEnvelope: block_hash,
// phase, sender_peer_id, a signature over the preceding fields (plus the
// block body for PrePrepare), and the body itself.
type Envelope struct {
	BlockHash identity.Hash256     `json:"block_hash"`
	Phase     broadcast.BroadcastPhase `json:"phase"`
	Sender    identity.PeerID      `json:"sender_peer_id"`
	Signature string               `json:"envelope_signature"`
	Block     *core.Block          `json:"body,omitempty"`
}

// Sign computes and sets Signature as the sender's signature over the
// block hash alone (spec §3 "Protocol envelope": "for Prepare and Commit,
// only the hash plus the sender's signature over the hash"). PrePrepare
// reuses the same convention so the one envelope-signature check the
// coordinator requires before enqueueing (spec §4.F) covers all three
// phases uniformly; the block body's own integrity is separately covered
// by Block.CreatorSignature.
func (e *Envelope) Sign(priv identity.PrivateKey) error {
	e.Signature = identity.Sign(priv, e.BlockHash[:])
	return nil
}

// Verify checks Signature against pub, the claimed Sender's public key.
func (e Envelope) Verify(pub identity.PublicKey) error {
	return identity.Verify(pub, e.BlockHash[:], e.Signature)
}

// Encode serializes e as a 4-byte big-endian length prefix followed by its
// JSON body (spec §6 "length-prefixed ... schema").
func Encode(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	if len(data) > maxEnvelopeBytes {
		return nil, fmt.Errorf("envelope too large: %d bytes", len(data))
	}
	out := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(out[:4], uint32(len(data)))
	copy(out[4:], data)
	return out, nil
}

// Decode parses a length-prefixed frame previously produced by Encode,
// given the already-read length prefix's payload bytes.
func Decode(payload []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// Topic returns the gossip topic string for hash/phase (spec §4.F, §6).
func Topic(hash identity.Hash256, phase broadcast.BroadcastPhase) string {
	return fmt.Sprintf("ephemera/broadcast/%s/%s", hash.String(), phase.String())
}
