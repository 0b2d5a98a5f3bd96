package api

import (
	"github.com/nymtech/ephemera/core"
	"github.com/nymtech/ephemera/identity"
)

// errorResponse is the structured body spec §7 requires on every non-2xx
// HTTP response: "{code, reason}".
type errorResponse struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// submitMessageRequest is the POST /broadcast/submit_message body.
type submitMessageRequest struct {
	Label            string `json:"label"`
	Data             []byte `json:"data"`
	CreatorPublicKey string `json:"creator_public_key"`
	Nonce            uint64 `json:"nonce"`
	Signature        string `json:"signature"`
}

func (r submitMessageRequest) toMessage() core.Message {
	return core.Message{
		Label:            r.Label,
		Data:             r.Data,
		CreatorPublicKey: r.CreatorPublicKey,
		Nonce:            r.Nonce,
		Signature:        r.Signature,
	}
}

type submitMessageResponse struct {
	RequestID string `json:"request_id"`
}

// blockResponse bundles a block with its certificate, if one is known.
type blockResponse struct {
	Block       *core.Block       `json:"block"`
	Certificate *core.Certificate `json:"certificate,omitempty"`
}

type healthResponse struct {
	Status            string `json:"status"`
	PeerID            string `json:"peer_id"`
	MembersKnown      int    `json:"members_known"`
	MessagesCertified int    `json:"messages_certified"`
}

type configResponse struct {
	PeerID            string  `json:"peer_id"`
	ThresholdFraction float64 `json:"threshold_fraction"`
	BlockIntervalMs   int64   `json:"block_interval_ms"`
	TickIntervalMs    int64   `json:"tick_interval_ms"`
	StaleTimeoutMs    int64   `json:"stale_timeout_ms"`
}

func requestIDOf(msg core.Message) (identity.Hash256, error) {
	return msg.RequestID()
}
