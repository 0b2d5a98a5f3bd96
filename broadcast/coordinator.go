package broadcast

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nymtech/ephemera/apphook"
	"github.com/nymtech/ephemera/core"
	"github.com/nymtech/ephemera/identity"
	"github.com/nymtech/ephemera/membership"
	"github.com/nymtech/ephemera/metrics"
)

// Transport is the outbound half of the network collaborator the
// coordinator drives on a BroadcastAction (spec §4.F, §6). block is only
// non-nil when phase is PhasePrePrepare.
type Transport interface {
	Broadcast(hash identity.Hash256, phase BroadcastPhase, block *core.Block) error
}

// Storage is the subset of the durable store the coordinator needs to
// execute a PersistAction or RecertifyAction (spec §4.G).
type Storage interface {
	PutBlock(block *core.Block, cert *core.Certificate) error
	UpdateCertificate(hash identity.Hash256, cert *core.Certificate) error
}

// Subscriber is notified of every delivery, in commit order, after the
// application hook has run (spec §4.F "notify WebSocket subscribers").
type Subscriber interface {
	OnDelivery(block *core.Block, cert *core.Certificate)
}

// AuditEntry records a non-fatal drop for operator visibility (spec §4.E
// "Failure modes (reported, not fatal)"). Grounded on teacher's events
// package style of structured, timestamped records, generalized with a
// uuid so entries are individually addressable by an operator-facing API.
type AuditEntry struct {
	ID     uuid.UUID
	Hash   identity.Hash256
	Reason string
	AtMs   int64
}

type queuedEvent struct {
	hash  identity.Hash256
	event Event
}

// Coordinator owns the single-consumer inbound event queue and the live
// per-block state map (spec §4.F). All network, HTTP, WS, and producer
// goroutines communicate with it only through its exported Submit*/Enqueue*
// methods and never touch per-block state directly — this is the explicit
// replacement for locking around the protocol state machine (spec §5).
type Coordinator struct {
	deps       StepDeps
	clock      Clock
	membership membership.Provider
	transport  Transport
	storage    Storage
	hook       apphook.Hook

	tickInterval time.Duration
	mempoolSize  func() int

	queue chan queuedEvent

	states map[identity.Hash256]PerBlockState

	subMu       sync.Mutex
	subscribers []Subscriber

	auditMu sync.Mutex
	audit   []AuditEntry
}

// Config bundles everything Coordinator needs beyond its collaborators.
type Config struct {
	LocalPeerID       identity.PeerID
	LocalPublicKey    identity.PublicKey
	Sign              func(hash identity.Hash256) string
	ThresholdFraction float64
	StaleTimeoutMs    int64
	TickInterval      time.Duration
	QueueSize         int
	// MempoolSize, if set, is sampled into metrics.MempoolSize on every
	// Tick (spec §4.F).
	MempoolSize func() int
}

// NewCoordinator builds a Coordinator ready to Run.
func NewCoordinator(cfg Config, clock Clock, members membership.Provider, transport Transport, storage Storage, hook apphook.Hook) *Coordinator {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	return &Coordinator{
		deps: StepDeps{
			Hook:              hook,
			LocalPeerID:       cfg.LocalPeerID,
			LocalPublicKey:    cfg.LocalPublicKey,
			Sign:              cfg.Sign,
			ThresholdFraction: cfg.ThresholdFraction,
			StaleTimeoutMs:    cfg.StaleTimeoutMs,
		},
		clock:        clock,
		membership:   members,
		transport:    transport,
		storage:      storage,
		hook:         hook,
		tickInterval: cfg.TickInterval,
		mempoolSize:  cfg.MempoolSize,
		queue:        make(chan queuedEvent, cfg.QueueSize),
		states:       make(map[identity.Hash256]PerBlockState),
	}
}

// Subscribe registers sub to receive every future delivery.
func (c *Coordinator) Subscribe(sub Subscriber) {
	c.subMu.Lock()
	c.subscribers = append(c.subscribers, sub)
	c.subMu.Unlock()
}

// AuditTrail returns a snapshot of recorded non-fatal drops, most recent last.
func (c *Coordinator) AuditTrail() []AuditEntry {
	c.auditMu.Lock()
	defer c.auditMu.Unlock()
	out := make([]AuditEntry, len(c.audit))
	copy(out, c.audit)
	return out
}

// SubmitBlock is the block producer's entry point (spec §4.D step 5,
// §4.F "submit_block"). It snapshots membership once, before the event
// ever reaches the single consumer, per spec §4.B.
func (c *Coordinator) SubmitBlock(block *core.Block) error {
	hash, err := block.Hash()
	if err != nil {
		return err
	}
	group, err := c.membership.Current()
	if err != nil {
		return err
	}
	c.queue <- queuedEvent{hash: hash, event: LocalSubmit{Block: block, Group: group}}
	return nil
}

// EnqueuePrePrepare is called by the transport after decoding and verifying
// an inbound PrePrepare envelope's signature (spec §4.F).
func (c *Coordinator) EnqueuePrePrepare(block *core.Block, sender identity.PeerID) error {
	hash, err := block.Hash()
	if err != nil {
		return err
	}
	group, err := c.membership.Current()
	if err != nil {
		return err
	}
	c.queue <- queuedEvent{hash: hash, event: InboundPrePrepare{Block: block, Sender: sender, Group: group}}
	return nil
}

// EnqueuePrepare is called by the transport for a decoded Prepare envelope.
func (c *Coordinator) EnqueuePrepare(hash identity.Hash256, sender identity.PeerID, sig string) {
	c.queue <- queuedEvent{hash: hash, event: InboundPrepare{Hash: hash, Sender: sender, Signature: sig}}
}

// EnqueueCommit is called by the transport for a decoded Commit envelope.
func (c *Coordinator) EnqueueCommit(hash identity.Hash256, sender identity.PeerID, sig string) {
	c.queue <- queuedEvent{hash: hash, event: InboundCommit{Hash: hash, Sender: sender, Signature: sig}}
}

// Run drives the event loop until ctx is cancelled, then drains whatever is
// already queued and returns (spec §5 "Shutdown signals the event loop to
// drain pending events ... then exit").
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain()
			return
		case qe := <-c.queue:
			c.process(qe.hash, qe.event)
		case now := <-ticker.C:
			c.tickAll(now.UnixMilli())
		}
	}
}

func (c *Coordinator) drain() {
	for {
		select {
		case qe := <-c.queue:
			c.process(qe.hash, qe.event)
		default:
			return
		}
	}
}

func (c *Coordinator) tickAll(nowMs int64) {
	if c.mempoolSize != nil {
		metrics.MempoolSize.Set(float64(c.mempoolSize()))
	}
	for hash, state := range c.states {
		next, _ := Step(state, Tick{NowMs: nowMs}, c.deps)
		if next.GC {
			delete(c.states, hash)
			metrics.BlocksGCed.Inc()
			continue
		}
		c.states[hash] = next
	}
}

func (c *Coordinator) process(hash identity.Hash256, event Event) {
	state, ok := c.states[hash]
	if !ok {
		state = NewState(c.clock.NowMs())
	}
	next, actions := Step(state, event, c.deps)
	if next.GC {
		delete(c.states, hash)
		metrics.BlocksGCed.Inc()
		return
	}
	c.states[hash] = next
	for _, action := range actions {
		c.execute(hash, action)
		// A failed persist drops the state; stop so the block is not
		// delivered to the application without being durable.
		if _, ok := c.states[hash]; !ok {
			return
		}
	}
}

func (c *Coordinator) execute(hash identity.Hash256, action Action) {
	switch act := action.(type) {
	case BroadcastAction:
		if err := c.transport.Broadcast(act.Hash, act.Phase, act.Block); err != nil {
			log.Printf("[broadcast] publish %s for %s failed: %v", act.Phase, act.Hash, err)
		}
	case PersistAction:
		if err := c.storage.PutBlock(act.Block, act.Certificate); err != nil {
			log.Printf("[broadcast] FATAL: persist block %s after commit failed: %v", hash, err)
			delete(c.states, hash)
			return
		}
	case DeliverToAppAction:
		metrics.BlocksDelivered.Inc()
		metrics.CertificateSize.Observe(float64(act.Certificate.Size()))
		c.hook.DeliverBlock(act.Block, act.Certificate)
		c.subMu.Lock()
		subs := append([]Subscriber{}, c.subscribers...)
		c.subMu.Unlock()
		for _, sub := range subs {
			sub.OnDelivery(act.Block, act.Certificate)
		}
	case DropAction:
		c.recordAudit(act.Hash, act.Reason)
	case RecertifyAction:
		if err := c.storage.UpdateCertificate(act.Hash, act.Certificate); err != nil {
			log.Printf("[broadcast] update certificate for %s after late commit failed: %v", act.Hash, err)
		}
	}
}

func (c *Coordinator) recordAudit(hash identity.Hash256, reason error) {
	reasonText := "unknown"
	if reason != nil {
		reasonText = reason.Error()
	}
	log.Printf("[broadcast] drop %s: %s", hash, reasonText)
	c.auditMu.Lock()
	c.audit = append(c.audit, AuditEntry{
		ID:     uuid.New(),
		Hash:   hash,
		Reason: reasonText,
		AtMs:   c.clock.NowMs(),
	})
	if len(c.audit) > 1000 {
		c.audit = c.audit[len(c.audit)-1000:]
	}
	c.auditMu.Unlock()
}
