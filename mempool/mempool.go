// Package mempool is the deduplicated, admission-filtered buffer of pending
// client messages awaiting a block producer (spec §4.C).
package mempool

import (
	"errors"
	"sync"

	"github.com/nymtech/ephemera/core"
)

// Sentinel rejection reasons (spec §4.C, §7 MempoolError).
var (
	ErrFull             = errors.New("mempool: full")
	ErrRejectedByApp    = errors.New("mempool: rejected by application hook")
	ErrBadSignature     = errors.New("mempool: bad signature")
)

// Hook is the subset of the application hook the mempool consults on
// admission (spec §4.H check_message).
type Hook interface {
	CheckMessage(core.Message) bool
}

// Mempool is a thread-safe, FIFO, deduplicated buffer of core.Message,
// grounded on teacher's core/mempool.go (sync.RWMutex + map + insertion-
// ordered id slice). Overflow rejects the newcomer; eviction of existing
// entries is forbidden (spec §4.C) to preserve client ack semantics.
type Mempool struct {
	mu       sync.Mutex
	maxSize  int
	hook     Hook
	messages map[string]core.Message
	order    []string // insertion-ordered request ids
}

// New creates an empty Mempool bounded at maxSize, consulting hook on
// every Submit.
func New(maxSize int, hook Hook) *Mempool {
	return &Mempool{
		maxSize:  maxSize,
		hook:     hook,
		messages: make(map[string]core.Message),
	}
}

// Submit validates msg's signature, consults the application admission
// hook, and enqueues it. Duplicates (same request id) are idempotent: a
// resubmission of an already-queued message succeeds without changing
// FIFO order (spec §8 invariant 5).
func (mp *Mempool) Submit(msg core.Message) error {
	if err := msg.Verify(); err != nil {
		return ErrBadSignature
	}
	id, err := msg.RequestID()
	if err != nil {
		return ErrBadSignature
	}
	key := id.String()

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.messages[key]; exists {
		return nil
	}
	if mp.hook != nil && !mp.hook.CheckMessage(msg) {
		return ErrRejectedByApp
	}
	if len(mp.messages) >= mp.maxSize {
		return ErrFull
	}
	mp.messages[key] = msg
	mp.order = append(mp.order, key)
	return nil
}

// Drain removes and returns up to maxN messages in insertion order.
func (mp *Mempool) Drain(maxN int) []core.Message {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	n := maxN
	if n > len(mp.order) {
		n = len(mp.order)
	}
	out := make([]core.Message, 0, n)
	for i := 0; i < n; i++ {
		key := mp.order[i]
		out = append(out, mp.messages[key])
		delete(mp.messages, key)
	}
	mp.order = mp.order[n:]
	return out
}

// ReinsertAtHead puts msgs back at the front of the queue, preserving their
// relative order. Used when the block producer's candidate block is
// rejected by the application hook (spec §4.D, §9 Open Question: re-insert
// rather than silently drop).
func (mp *Mempool) ReinsertAtHead(msgs []core.Message) {
	if len(msgs) == 0 {
		return
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()

	newOrder := make([]string, 0, len(msgs)+len(mp.order))
	for _, msg := range msgs {
		id, err := msg.RequestID()
		if err != nil {
			continue
		}
		key := id.String()
		if _, exists := mp.messages[key]; exists {
			continue
		}
		mp.messages[key] = msg
		newOrder = append(newOrder, key)
	}
	mp.order = append(newOrder, mp.order...)
}

// Size returns the current number of pending messages.
func (mp *Mempool) Size() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return len(mp.order)
}
