package transport

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/nymtech/ephemera/broadcast"
	"github.com/nymtech/ephemera/core"
	"github.com/nymtech/ephemera/identity"
	"github.com/nymtech/ephemera/membership"
)

// DefaultMaxPeers caps simultaneous connections, matching teacher's
// network.DefaultMaxPeers.
const DefaultMaxPeers = 50

// Inbound is the subset of broadcast.Coordinator the transport dispatches
// decoded, envelope-signature-verified events into (spec §4.F).
type Inbound interface {
	EnqueuePrePrepare(block *core.Block, sender identity.PeerID) error
	EnqueuePrepare(hash identity.Hash256, sender identity.PeerID, sig string)
	EnqueueCommit(hash identity.Hash256, sender identity.PeerID, sig string)
}

// Node listens for incoming peers, manages outgoing connections, and
// implements broadcast.Transport. Grounded on teacher's network.Node:
// mutex-guarded peer map, accept loop, per-peer read loop.
type Node struct {
	localPeerID identity.PeerID
	localKey    identity.PrivateKey
	members     membership.Provider
	coordinator Inbound
	tlsConfig   *tls.Config
	maxPeers    int

	mu    sync.RWMutex
	peers map[identity.PeerID]*Peer

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node bound to localPeerID, ready to Start listening.
func NewNode(localPeerID identity.PeerID, localKey identity.PrivateKey, members membership.Provider, coordinator Inbound, tlsConfig *tls.Config) *Node {
	return &Node{
		localPeerID: localPeerID,
		localKey:    localKey,
		members:     members,
		coordinator: coordinator,
		tlsConfig:   tlsConfig,
		maxPeers:    DefaultMaxPeers,
		peers:       make(map[identity.PeerID]*Peer),
		stopCh:      make(chan struct{}),
	}
}

// Start begins accepting connections on listenAddr.
func (n *Node) Start(listenAddr string) error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop shuts the node down and closes every connection.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// Connect dials addr and registers it under peerID.
func (n *Node) Connect(peerID identity.PeerID, addr string) error {
	peer, err := Dial(string(peerID), addr, n.tlsConfig)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.peers[peerID] = peer
	n.mu.Unlock()
	go n.readLoop(peerID, peer)
	return nil
}

// Broadcast implements broadcast.Transport: it signs and fans an envelope
// out to every connected peer (spec §4.F "transport publish ... plus
// direct send to known group members").
func (n *Node) Broadcast(hash identity.Hash256, phase broadcast.BroadcastPhase, block *core.Block) error {
	env := Envelope{BlockHash: hash, Phase: phase, Sender: n.localPeerID, Block: block}
	if err := env.Sign(n.localKey); err != nil {
		return fmt.Errorf("sign envelope: %w", err)
	}

	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()

	var lastErr error
	for _, p := range peers {
		if err := p.Send(env); err != nil {
			log.Printf("[transport] publish %s to %s failed: %v", Topic(hash, phase), p.ID, err)
			lastErr = err
		}
	}
	return lastErr
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("[transport] accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		count := len(n.peers)
		n.mu.RUnlock()
		if count >= n.maxPeers {
			log.Printf("[transport] max peers (%d) reached, rejecting %s", n.maxPeers, conn.RemoteAddr())
			conn.Close()
			continue
		}
		remoteAddr := conn.RemoteAddr().String()
		peer := NewPeer(remoteAddr, remoteAddr, conn)
		peerID := identity.PeerID(remoteAddr)
		n.mu.Lock()
		n.peers[peerID] = peer
		n.mu.Unlock()
		go n.readLoop(peerID, peer)
	}
}

func (n *Node) readLoop(peerID identity.PeerID, peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[transport] readLoop panic from %s: %v", peer.ID, r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peerID)
		n.mu.Unlock()
	}()
	for {
		env, err := peer.Receive()
		if err != nil {
			return
		}
		n.dispatch(env)
	}
}

func (n *Node) dispatch(env Envelope) {
	group, err := n.members.Current()
	if err != nil {
		log.Printf("[transport] membership unavailable, dropping envelope: %v", err)
		return
	}
	sender, ok := group.Get(env.Sender)
	if !ok {
		log.Printf("[transport] dropping envelope from unknown peer %s", env.Sender)
		return
	}
	if err := env.Verify(sender.PublicKey); err != nil {
		log.Printf("[transport] dropping envelope with bad signature from %s: %v", env.Sender, err)
		return
	}

	switch env.Phase {
	case broadcast.PhasePrePrepare:
		if env.Block == nil {
			log.Printf("[transport] pre_prepare envelope from %s missing body", env.Sender)
			return
		}
		if err := n.coordinator.EnqueuePrePrepare(env.Block, env.Sender); err != nil {
			log.Printf("[transport] enqueue pre_prepare: %v", err)
		}
	case broadcast.PhasePrepare:
		n.coordinator.EnqueuePrepare(env.BlockHash, env.Sender, env.Signature)
	case broadcast.PhaseCommit:
		n.coordinator.EnqueueCommit(env.BlockHash, env.Sender, env.Signature)
	}
}
