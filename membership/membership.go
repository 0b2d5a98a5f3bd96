// Package membership maintains the current peer set and the quorum
// arithmetic the protocol state machine uses (spec §4.B). A Snapshot taken
// by the coordinator at first PrePrepare for a block is pinned to that
// block's lifetime (spec §3 BroadcastGroup, §9).
package membership

import (
	"errors"
	"sync"

	"github.com/nymtech/ephemera/identity"
)

// ErrInsufficientMembership is returned when a snapshot contains no peers
// at all, which can never satisfy quorum (spec §4.B).
var ErrInsufficientMembership = errors.New("membership: snapshot has no peers")

// DefaultThresholdFraction is the default quorum fraction (spec §4.B).
const DefaultThresholdFraction = 0.67

// Peer describes one member of the broadcast group.
type Peer struct {
	ID        identity.PeerID
	PublicKey identity.PublicKey
	Address   string
}

// Snapshot is an immutable view of the membership set at a point in time.
// It doubles as the spec's "BroadcastGroup" once pinned to a block hash.
type Snapshot struct {
	peers map[identity.PeerID]Peer
}

// NewSnapshot builds an immutable Snapshot from peers. Later mutation of
// the input slice does not affect the snapshot.
func NewSnapshot(peers []Peer) Snapshot {
	m := make(map[identity.PeerID]Peer, len(peers))
	for _, p := range peers {
		m[p.ID] = p
	}
	return Snapshot{peers: m}
}

// Contains reports whether id is a member of the snapshot.
func (s Snapshot) Contains(id identity.PeerID) bool {
	_, ok := s.peers[id]
	return ok
}

// Get returns the peer with id, if present.
func (s Snapshot) Get(id identity.PeerID) (Peer, bool) {
	p, ok := s.peers[id]
	return p, ok
}

// Len returns the number of peers in the snapshot.
func (s Snapshot) Len() int {
	return len(s.peers)
}

// Peers returns the member peers in no particular order.
func (s Snapshot) Peers() []Peer {
	out := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// Validate returns ErrInsufficientMembership if the snapshot has no peers
// (spec §4.B: "must contain at least one entry (the local node)").
func (s Snapshot) Validate() error {
	if len(s.peers) == 0 {
		return ErrInsufficientMembership
	}
	return nil
}

// Quorum returns max(1, ceil(fraction * n)) (spec §4.B, §8 GLOSSARY).
func Quorum(n int, fraction float64) int {
	if n <= 0 {
		return 1
	}
	q := int(fraction * float64(n))
	if float64(q) < fraction*float64(n) {
		q++
	}
	if q < 1 {
		q = 1
	}
	return q
}

// Provider supplies the current peer set and notifies subscribers of
// changes (spec §4.B).
type Provider interface {
	Current() (Snapshot, error)
	OnChange(func(Snapshot))
}

// baseProvider implements the shared subscriber bookkeeping used by both
// StaticProvider and HTTPProvider.
type baseProvider struct {
	mu        sync.RWMutex
	current   Snapshot
	listeners []func(Snapshot)
}

func (b *baseProvider) Current() (Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current, nil
}

func (b *baseProvider) OnChange(cb func(Snapshot)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, cb)
	b.mu.Unlock()
}

// set replaces the current snapshot and notifies listeners if it changed.
func (b *baseProvider) set(snap Snapshot) {
	b.mu.Lock()
	changed := !sameMembers(b.current, snap)
	b.current = snap
	listeners := append([]func(Snapshot){}, b.listeners...)
	b.mu.Unlock()

	if changed {
		for _, l := range listeners {
			l(snap)
		}
	}
}

func sameMembers(a, b Snapshot) bool {
	if len(a.peers) != len(b.peers) {
		return false
	}
	for id, pa := range a.peers {
		pb, ok := b.peers[id]
		if !ok || pa.Address != pb.Address {
			return false
		}
	}
	return true
}
