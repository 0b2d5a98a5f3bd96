package broadcast

import (
	"github.com/nymtech/ephemera/core"
	"github.com/nymtech/ephemera/identity"
	"github.com/nymtech/ephemera/membership"
)

// Phase is a per-block-hash lifecycle stage (spec §4.E).
type Phase int

const (
	Unknown Phase = iota
	Pending
	Prepared
	Committed
	Delivered
)

func (p Phase) String() string {
	switch p {
	case Unknown:
		return "unknown"
	case Pending:
		return "pending"
	case Prepared:
		return "prepared"
	case Committed:
		return "committed"
	case Delivered:
		return "delivered"
	default:
		return "invalid"
	}
}

// PerBlockState is the state the machine carries for a single block hash
// (spec §3 "Per-block state"). The zero value is Unknown with no block.
type PerBlockState struct {
	Phase       Phase
	Block       *core.Block
	Group       membership.Snapshot
	HasGroup    bool
	Prepares    map[identity.PeerID]string
	Commits     map[identity.PeerID]string
	FirstSeenMs int64
	// GC is set by Step on a Tick that finds this entry stale; the
	// coordinator deletes the map entry and emits no further events for
	// the hash (spec §4.E "GC the entry with no outbound action").
	GC bool
}

func newPerBlockState(nowMs int64) PerBlockState {
	return PerBlockState{
		Phase:       Unknown,
		Prepares:    make(map[identity.PeerID]string),
		Commits:     make(map[identity.PeerID]string),
		FirstSeenMs: nowMs,
	}
}

// clone returns a deep-enough copy so Step never mutates the caller's state
// in place; the coordinator owns replacing its map entry with the result.
func (s PerBlockState) clone() PerBlockState {
	prepares := make(map[identity.PeerID]string, len(s.Prepares))
	for k, v := range s.Prepares {
		prepares[k] = v
	}
	commits := make(map[identity.PeerID]string, len(s.Commits))
	for k, v := range s.Commits {
		commits[k] = v
	}
	cp := s
	cp.Prepares = prepares
	cp.Commits = commits
	return cp
}

// Event is one of the five inputs Step accepts (spec §4.E).
type Event interface {
	isEvent()
}

// LocalSubmit is produced by the block producer submitting its own block.
// Group is the membership snapshot the coordinator took via current() when
// it first allocated this block's state (spec §4.B "the coordinator calls
// current() once per new block").
type LocalSubmit struct {
	Block *core.Block
	Group membership.Snapshot
}

// InboundPrePrepare is a decoded, envelope-signature-verified PrePrepare
// received from the transport. Group is the coordinator's freshly taken
// membership snapshot, used only if this hash is still Unknown.
type InboundPrePrepare struct {
	Block  *core.Block
	Sender identity.PeerID
	Group  membership.Snapshot
}

// InboundPrepare is a decoded Prepare vote.
type InboundPrepare struct {
	Hash      identity.Hash256
	Sender    identity.PeerID
	Signature string
}

// InboundCommit is a decoded Commit vote.
type InboundCommit struct {
	Hash      identity.Hash256
	Sender    identity.PeerID
	Signature string
}

// Tick drives GC of stale, non-terminal per-block state (spec §4.E, §4.F).
type Tick struct {
	NowMs int64
}

func (LocalSubmit) isEvent()       {}
func (InboundPrePrepare) isEvent() {}
func (InboundPrepare) isEvent()    {}
func (InboundCommit) isEvent()     {}
func (Tick) isEvent()              {}

// Action is one outbound effect Step asks the coordinator to perform. The
// coordinator executes actions against the transport, storage, and
// application hook (spec §4.F); Step itself has no side effects.
type Action interface {
	isAction()
}

// BroadcastPhase identifies which envelope phase to send.
type BroadcastPhase int

const (
	PhasePrePrepare BroadcastPhase = iota
	PhasePrepare
	PhaseCommit
)

func (p BroadcastPhase) String() string {
	switch p {
	case PhasePrePrepare:
		return "pre_prepare"
	case PhasePrepare:
		return "prepare"
	case PhaseCommit:
		return "commit"
	default:
		return "invalid"
	}
}

// BroadcastAction asks the coordinator to publish an envelope for the given
// phase. Block is only non-nil for PhasePrePrepare.
type BroadcastAction struct {
	Hash  identity.Hash256
	Phase BroadcastPhase
	Block *core.Block
}

// PersistAction asks the coordinator to durably store block and certificate
// together (spec §4.G atomicity).
type PersistAction struct {
	Block       *core.Block
	Certificate *core.Certificate
}

// DeliverToAppAction asks the coordinator to invoke the application hook's
// deliver_block and notify WebSocket subscribers.
type DeliverToAppAction struct {
	Block       *core.Block
	Certificate *core.Certificate
}

// DropAction records a non-fatal rejection reason for the audit trail
// (spec §4.E "Failure modes (reported, not fatal)").
type DropAction struct {
	Hash   identity.Hash256
	Reason error
}

// RecertifyAction asks the coordinator to overwrite the durable certificate
// for a hash that was already delivered, without repeating persistence of
// the block itself or a second delivery to the application (spec §8 "late
// commit after delivery grows the certificate, no second delivery").
type RecertifyAction struct {
	Hash        identity.Hash256
	Certificate *core.Certificate
}

func (BroadcastAction) isAction()    {}
func (PersistAction) isAction()      {}
func (DeliverToAppAction) isAction() {}
func (DropAction) isAction()         {}
func (RecertifyAction) isAction()    {}
