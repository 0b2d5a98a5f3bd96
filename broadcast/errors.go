package broadcast

import "errors"

// Sentinel failure reasons reported by Step but never fatal (spec §7
// ProtocolError / CryptoError / MembershipError.UnknownPeer).
var (
	ErrBadSignature         = errors.New("broadcast: bad signature")
	ErrUnknownSender        = errors.New("broadcast: sender not in broadcast group")
	ErrWrongGroup           = errors.New("broadcast: creator not in broadcast group")
	ErrAppRejectedBlock     = errors.New("broadcast: application rejected block")
	ErrEquivocatingPrePrepare = errors.New("broadcast: equivocating pre-prepare for existing hash")
	ErrInsufficientMembership = errors.New("broadcast: insufficient membership for block")
)
