package identity

import "errors"

// Sentinel errors for the identity/crypto component (spec §7 CryptoError).
var (
	ErrBadSignature = errors.New("identity: bad signature")
	ErrUnknownKey   = errors.New("identity: unknown key encoding")
)
