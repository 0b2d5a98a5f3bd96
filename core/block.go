package core

import (
	"encoding/json"

	"github.com/nymtech/ephemera/identity"
)

// BlockHeader contains the block metadata that is hashed and signed (spec
// §3). PreviousHash is the zero hash only for a genesis (height 1) block.
type BlockHeader struct {
	Height        uint64           `json:"height"`
	TimestampMs   int64            `json:"timestamp_ms"`
	CreatorPeerID identity.PeerID  `json:"creator_peer_id"`
	PreviousHash  identity.Hash256 `json:"previous_hash"`
	MessageRoot   identity.Hash256 `json:"message_root"`
}

// Equal reports whether h and other have identical fields (spec §3: "Two
// headers are equal iff all fields are").
func (h BlockHeader) Equal(other BlockHeader) bool {
	return h.Height == other.Height &&
		h.TimestampMs == other.TimestampMs &&
		h.CreatorPeerID == other.CreatorPeerID &&
		h.PreviousHash == other.PreviousHash &&
		h.MessageRoot == other.MessageRoot
}

// Block is an ordered batch of client messages plus a signed header (spec
// §3). Order is fixed at production time.
type Block struct {
	Header           BlockHeader `json:"header"`
	Messages         []Message   `json:"messages"`
	CreatorSignature string      `json:"creator_signature"`
}

// ComputeMessageRoot returns the deterministic root hash over the ordered
// request ids of msgs (spec §3: message_root = hash_list(messages[*].request_id)).
func ComputeMessageRoot(msgs []Message) (identity.Hash256, error) {
	ids := make([]string, len(msgs))
	for i := range msgs {
		id, err := msgs[i].RequestID()
		if err != nil {
			return identity.Hash256{}, err
		}
		ids[i] = id.String()
	}
	return identity.HashList(ids), nil
}

// NewBlock builds an unsigned block with a freshly computed message root.
func NewBlock(height uint64, timestampMs int64, creator identity.PeerID, previousHash identity.Hash256, msgs []Message) (*Block, error) {
	root, err := ComputeMessageRoot(msgs)
	if err != nil {
		return nil, err
	}
	return &Block{
		Header: BlockHeader{
			Height:        height,
			TimestampMs:   timestampMs,
			CreatorPeerID: creator,
			PreviousHash:  previousHash,
			MessageRoot:   root,
		},
		Messages: msgs,
	}, nil
}

// HeaderBytes returns the canonical bytes that are hashed and signed.
func (b *Block) HeaderBytes() ([]byte, error) {
	return json.Marshal(b.Header)
}

// Hash returns the block's canonical identifier, hash(header) (spec §3).
func (b *Block) Hash() (identity.Hash256, error) {
	data, err := b.HeaderBytes()
	if err != nil {
		return identity.Hash256{}, err
	}
	return identity.Hash(data), nil
}

// Sign computes the header hash and signs it with priv, setting
// CreatorSignature. The caller is responsible for priv belonging to
// Header.CreatorPeerID.
func (b *Block) Sign(priv identity.PrivateKey) error {
	hash, err := b.Hash()
	if err != nil {
		return err
	}
	b.CreatorSignature = identity.Sign(priv, hash[:])
	return nil
}

// VerifyCreatorSignature checks CreatorSignature against pub, and that pub
// derives Header.CreatorPeerID (spec §3 invariants).
func (b *Block) VerifyCreatorSignature(pub identity.PublicKey) error {
	if pub.PeerID() != b.Header.CreatorPeerID {
		return identity.ErrBadSignature
	}
	hash, err := b.Hash()
	if err != nil {
		return err
	}
	return identity.Verify(pub, hash[:], b.CreatorSignature)
}

// VerifyMessageRoot recomputes the message root from Messages and compares
// it against Header.MessageRoot.
func (b *Block) VerifyMessageRoot() (bool, error) {
	root, err := ComputeMessageRoot(b.Messages)
	if err != nil {
		return false, err
	}
	return root == b.Header.MessageRoot, nil
}

// Certificate is a set of signatures over a block hash, keyed by the
// distinct signing peer (spec §3).
type Certificate struct {
	BlockHash identity.Hash256           `json:"block_hash"`
	Signers   map[identity.PeerID]string `json:"signers"` // peer id -> hex signature
}

// NewCertificate creates an empty certificate for hash.
func NewCertificate(hash identity.Hash256) *Certificate {
	return &Certificate{BlockHash: hash, Signers: make(map[identity.PeerID]string)}
}

// Add records signer's signature, first-wins on duplicate (equivocation-silent).
func (c *Certificate) Add(signer identity.PeerID, sig string) {
	if _, exists := c.Signers[signer]; exists {
		return
	}
	if c.Signers == nil {
		c.Signers = make(map[identity.PeerID]string)
	}
	c.Signers[signer] = sig
}

// Size returns the number of distinct signers.
func (c *Certificate) Size() int {
	return len(c.Signers)
}

// Clone returns a deep copy of c.
func (c *Certificate) Clone() *Certificate {
	cp := NewCertificate(c.BlockHash)
	for k, v := range c.Signers {
		cp.Signers[k] = v
	}
	return cp
}
