// Package apphook defines the embedding application's three synchronous
// callbacks (spec §4.H). The core never interprets message payloads or
// block admissibility itself; it always defers to a Hook implementation.
package apphook

import "github.com/nymtech/ephemera/core"

// Hook is implemented by the embedding application. All three callbacks
// must do bounded work: they run synchronously on the coordinator's single
// consumer goroutine (spec §5), and a slow or blocking implementation
// stalls the whole node.
type Hook interface {
	// CheckMessage is the mempool admission filter (spec §4.C).
	CheckMessage(msg core.Message) bool
	// CheckBlock is the block-body admissibility filter, e.g. size or
	// schema checks (spec §4.E InboundPrePrepare / local producer).
	CheckBlock(block *core.Block) bool
	// DeliverBlock is called exactly once per block hash, after the block
	// reaches Committed and has been durably persisted (spec §4.E, §4.H).
	DeliverBlock(block *core.Block, cert *core.Certificate)
}

// AcceptAll is a permissive Hook useful for tests and for applications that
// do not need admission filtering.
type AcceptAll struct{}

func (AcceptAll) CheckMessage(core.Message) bool                      { return true }
func (AcceptAll) CheckBlock(*core.Block) bool                         { return true }
func (AcceptAll) DeliverBlock(*core.Block, *core.Certificate)         {}
