// Package broadcast implements the per-block-hash reliable-broadcast state
// machine (spec §4.E, the dominant share of the core) and the coordinator
// that drives it from a single-consumer event queue (spec §4.F). Step is
// the deterministic heart: it never touches a clock, a socket, or a disk —
// every side effect is expressed as a returned Action and carried out by
// the coordinator.
package broadcast

import (
	"github.com/nymtech/ephemera/apphook"
	"github.com/nymtech/ephemera/core"
	"github.com/nymtech/ephemera/identity"
	"github.com/nymtech/ephemera/membership"
)

// StepDeps are the injected, otherwise-deterministic collaborators Step
// needs to do its job without reaching for global state: the application's
// block-admissibility hook, this node's identity for emitting its own
// Prepare/Commit signatures, and the quorum/staleness parameters from
// configuration. Two nodes fed the same event sequence with equivalent
// deps reach the same per-block outcome (spec §4.E "Determinism").
type StepDeps struct {
	Hook              apphook.Hook
	LocalPeerID       identity.PeerID
	LocalPublicKey    identity.PublicKey
	Sign              func(hash identity.Hash256) string
	ThresholdFraction float64
	StaleTimeoutMs    int64
}

// NewState returns the zero per-block state, Unknown, timestamped at
// nowMs. The coordinator calls this once, the first time it sees a hash,
// before routing any event to Step.
func NewState(nowMs int64) PerBlockState {
	return newPerBlockState(nowMs)
}

// Step advances state by event, per spec §4.E's transition table.
func Step(state PerBlockState, event Event, deps StepDeps) (PerBlockState, []Action) {
	switch ev := event.(type) {
	case LocalSubmit:
		return stepLocalSubmit(state, ev, deps)
	case InboundPrePrepare:
		return stepInboundPrePrepare(state, ev, deps)
	case InboundPrepare:
		return stepInboundPrepare(state, ev, deps)
	case InboundCommit:
		return stepInboundCommit(state, ev, deps)
	case Tick:
		return stepTick(state, ev, deps)
	default:
		return state, nil
	}
}

func stepLocalSubmit(state PerBlockState, ev LocalSubmit, deps StepDeps) (PerBlockState, []Action) {
	if state.Phase != Unknown {
		return state, nil
	}
	hash, err := ev.Block.Hash()
	if err != nil {
		return state, []Action{DropAction{Reason: err}}
	}
	if err := ev.Block.VerifyCreatorSignature(deps.LocalPublicKey); err != nil {
		return state, []Action{DropAction{Hash: hash, Reason: ErrBadSignature}}
	}
	group, err := pinGroup(ev.Group, ev.Block.Header.CreatorPeerID)
	if err != nil {
		return state, []Action{DropAction{Hash: hash, Reason: err}}
	}

	next := state.clone()
	next.Phase = Pending
	next.Block = ev.Block
	next.Group = group
	next.HasGroup = true
	next.Prepares[deps.LocalPeerID] = deps.Sign(hash)

	return next, []Action{
		BroadcastAction{Hash: hash, Phase: PhasePrePrepare, Block: ev.Block},
		BroadcastAction{Hash: hash, Phase: PhasePrepare},
	}
}

func stepInboundPrePrepare(state PerBlockState, ev InboundPrePrepare, deps StepDeps) (PerBlockState, []Action) {
	hash, err := ev.Block.Hash()
	if err != nil {
		return state, []Action{DropAction{Reason: err}}
	}

	if state.Phase != Unknown {
		if state.Block != nil && blocksEqual(state.Block, ev.Block) {
			return state, nil
		}
		return state, []Action{DropAction{Hash: hash, Reason: ErrEquivocatingPrePrepare}}
	}

	group, err := pinGroup(ev.Group, ev.Block.Header.CreatorPeerID)
	if err != nil {
		return state, []Action{DropAction{Hash: hash, Reason: err}}
	}
	if !group.Contains(ev.Sender) {
		return state, []Action{DropAction{Hash: hash, Reason: ErrUnknownSender}}
	}
	creator, ok := group.Get(ev.Block.Header.CreatorPeerID)
	if !ok {
		return state, []Action{DropAction{Hash: hash, Reason: ErrWrongGroup}}
	}
	if err := ev.Block.VerifyCreatorSignature(creator.PublicKey); err != nil {
		return state, []Action{DropAction{Hash: hash, Reason: ErrBadSignature}}
	}
	if deps.Hook != nil && !deps.Hook.CheckBlock(ev.Block) {
		return state, []Action{DropAction{Hash: hash, Reason: ErrAppRejectedBlock}}
	}

	next := state.clone()
	next.Phase = Pending
	next.Block = ev.Block
	next.Group = group
	next.HasGroup = true
	next.Prepares[deps.LocalPeerID] = deps.Sign(hash)

	return next, []Action{BroadcastAction{Hash: hash, Phase: PhasePrepare}}
}

func stepInboundPrepare(state PerBlockState, ev InboundPrepare, deps StepDeps) (PerBlockState, []Action) {
	next, ok := insertPrepare(state, ev.Hash, ev.Sender, ev.Signature)
	if !ok {
		return state, nil
	}
	if next.Phase != Pending || !next.HasGroup {
		return next, nil
	}
	quorum := membership.Quorum(next.Group.Len(), deps.ThresholdFraction)
	if len(next.Prepares) < quorum {
		return next, nil
	}
	next.Phase = Prepared
	next.Commits[deps.LocalPeerID] = deps.Sign(ev.Hash)
	return next, []Action{BroadcastAction{Hash: ev.Hash, Phase: PhaseCommit}}
}

func stepInboundCommit(state PerBlockState, ev InboundCommit, deps StepDeps) (PerBlockState, []Action) {
	next, ok := insertCommit(state, ev.Hash, ev.Sender, ev.Signature)
	if !ok {
		return state, nil
	}
	if next.Phase == Delivered {
		// A commit arriving after delivery still widens the durable
		// certificate (spec §8 "certificate completion after delivery, no
		// second delivery"); the block itself was already persisted.
		return next, []Action{RecertifyAction{Hash: ev.Hash, Certificate: certificateFrom(ev.Hash, next.Commits)}}
	}
	if next.Phase != Prepared || !next.HasGroup {
		return next, nil
	}
	quorum := membership.Quorum(next.Group.Len(), deps.ThresholdFraction)
	if len(next.Commits) < quorum {
		return next, nil
	}

	cert := certificateFrom(ev.Hash, next.Commits)
	next.Phase = Delivered
	return next, []Action{
		PersistAction{Block: next.Block, Certificate: cert},
		DeliverToAppAction{Block: next.Block, Certificate: cert},
	}
}

func certificateFrom(hash identity.Hash256, commits map[identity.PeerID]string) *core.Certificate {
	cert := core.NewCertificate(hash)
	for peer, sig := range commits {
		cert.Add(peer, sig)
	}
	return cert
}

// stepTick GCs stale per-block state, including Delivered entries once the
// same staleness window has elapsed since the block was first seen (spec §3
// "destroyed ... upon delivery, kept only as certified record in G"). The
// durable certificate in storage stays authoritative; late commits arriving
// before GC still widen it via stepInboundCommit's RecertifyAction.
func stepTick(state PerBlockState, ev Tick, deps StepDeps) (PerBlockState, []Action) {
	if ev.NowMs-state.FirstSeenMs <= deps.StaleTimeoutMs {
		return state, nil
	}
	next := state.clone()
	next.GC = true
	return next, nil
}

// insertPrepare and insertCommit are the shared first-wins, out-of-order-
// tolerant vote insertion used by InboundPrepare/InboundCommit: votes are
// recorded regardless of phase (spec §4.E "Out-of-order events ... are
// stored in the maps regardless of state"), verified against the group
// only once a snapshot is pinned.

func insertPrepare(state PerBlockState, hash identity.Hash256, sender identity.PeerID, sig string) (PerBlockState, bool) {
	if _, exists := state.Prepares[sender]; exists {
		return state, false
	}
	if !verifyVote(state, hash, sender, sig) {
		return state, false
	}
	next := state.clone()
	next.Prepares[sender] = sig
	return next, true
}

func insertCommit(state PerBlockState, hash identity.Hash256, sender identity.PeerID, sig string) (PerBlockState, bool) {
	if _, exists := state.Commits[sender]; exists {
		return state, false
	}
	if !verifyVote(state, hash, sender, sig) {
		return state, false
	}
	next := state.clone()
	next.Commits[sender] = sig
	return next, true
}

func verifyVote(state PerBlockState, hash identity.Hash256, sender identity.PeerID, sig string) bool {
	if !state.HasGroup {
		return true
	}
	peer, ok := state.Group.Get(sender)
	if !ok {
		return false
	}
	return identity.Verify(peer.PublicKey, hash[:], sig) == nil
}

func blocksEqual(a, b *core.Block) bool {
	if !a.Header.Equal(b.Header) {
		return false
	}
	if len(a.Messages) != len(b.Messages) {
		return false
	}
	for i := range a.Messages {
		if string(a.Messages[i].Data) != string(b.Messages[i].Data) ||
			a.Messages[i].Nonce != b.Messages[i].Nonce ||
			string(a.Messages[i].CreatorPublicKey) != string(b.Messages[i].CreatorPublicKey) {
			return false
		}
	}
	return true
}

func pinGroup(group membership.Snapshot, creator identity.PeerID) (membership.Snapshot, error) {
	if err := group.Validate(); err != nil {
		return group, ErrInsufficientMembership
	}
	if !group.Contains(creator) {
		return group, ErrWrongGroup
	}
	return group, nil
}
