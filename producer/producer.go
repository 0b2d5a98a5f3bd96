// Package producer runs the periodic block-assembly task (spec §4.D).
// Grounded on teacher's consensus.PoA.ProduceBlock/.Run ticker loop, with
// the round-robin proposer gate removed: Ephemera allows multiple
// concurrent producers at overlapping heights by design (spec §1 Non-goals,
// §4.D "If two producers are active, both produce concurrently").
package producer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nymtech/ephemera/apphook"
	"github.com/nymtech/ephemera/core"
	"github.com/nymtech/ephemera/identity"
)

// Mempool is the subset of mempool.Mempool the producer drains from.
type Mempool interface {
	Drain(maxN int) []core.Message
	ReinsertAtHead(msgs []core.Message)
	Size() int
}

// BlockSource supplies the previous block a new candidate must chain from
// (spec §4.D step 1). LastBlock returns (nil, nil) for a still-empty chain.
type BlockSource interface {
	LastBlock() (*core.Block, error)
}

// Coordinator is the subset of broadcast.Coordinator the producer hands
// its candidate blocks to (spec §4.D step 5, "Calls F.submit_block").
type Coordinator interface {
	SubmitBlock(block *core.Block) error
}

// Config parameterizes a Producer.
type Config struct {
	LocalPeerID        identity.PeerID
	PrivateKey         identity.PrivateKey
	BlockInterval      time.Duration // default 1s, spec §4.D
	MaxMessagesPerBlock int
	// ProduceEmptyBlocks, when true, submits a block even if the mempool
	// is empty (spec §4.D "or empty-blocks flag is on").
	ProduceEmptyBlocks bool
}

// Producer periodically drains a Mempool into signed candidate blocks and
// hands them to a Coordinator.
type Producer struct {
	cfg         Config
	mempool     Mempool
	blocks      BlockSource
	coordinator Coordinator
	hook        apphook.Hook
}

// New builds a Producer. hook may be nil, in which case candidate blocks
// are never rejected at the local check_block stage.
func New(cfg Config, mempool Mempool, blocks BlockSource, coordinator Coordinator, hook apphook.Hook) *Producer {
	if cfg.BlockInterval <= 0 {
		cfg.BlockInterval = time.Second
	}
	if cfg.MaxMessagesPerBlock <= 0 {
		cfg.MaxMessagesPerBlock = 500
	}
	return &Producer{cfg: cfg, mempool: mempool, blocks: blocks, coordinator: coordinator, hook: hook}
}

// Run ticks every cfg.BlockInterval until ctx is cancelled, producing one
// candidate block per tick when there is work to do.
func (p *Producer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.BlockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.mempool.Size() == 0 && !p.cfg.ProduceEmptyBlocks {
				continue
			}
			if _, err := p.ProduceBlock(); err != nil {
				log.Printf("[producer] produce block error: %v", err)
			}
		}
	}
}

// ProduceBlock assembles, signs, and submits one candidate block (spec
// §4.D steps 1-5). On local rejection by the application hook, drained
// messages are reinserted at the mempool head, preserving FIFO order.
func (p *Producer) ProduceBlock() (*core.Block, error) {
	previousHash, nextHeight, err := p.previousLinkage()
	if err != nil {
		return nil, fmt.Errorf("resolve previous block: %w", err)
	}

	msgs := p.mempool.Drain(p.cfg.MaxMessagesPerBlock)

	block, err := core.NewBlock(nextHeight, time.Now().UnixMilli(), p.cfg.LocalPeerID, previousHash, msgs)
	if err != nil {
		p.mempool.ReinsertAtHead(msgs)
		return nil, fmt.Errorf("assemble block: %w", err)
	}

	if p.hook != nil && !p.hook.CheckBlock(block) {
		p.mempool.ReinsertAtHead(msgs)
		return nil, fmt.Errorf("application rejected candidate block at height %d", nextHeight)
	}

	if err := block.Sign(p.cfg.PrivateKey); err != nil {
		p.mempool.ReinsertAtHead(msgs)
		return nil, fmt.Errorf("sign block: %w", err)
	}

	if err := p.coordinator.SubmitBlock(block); err != nil {
		p.mempool.ReinsertAtHead(msgs)
		return nil, fmt.Errorf("submit block: %w", err)
	}

	return block, nil
}

func (p *Producer) previousLinkage() (identity.Hash256, uint64, error) {
	last, err := p.blocks.LastBlock()
	if err != nil {
		return identity.Hash256{}, 0, err
	}
	if last == nil {
		return identity.Hash256{}, 1, nil
	}
	hash, err := last.Hash()
	if err != nil {
		return identity.Hash256{}, 0, err
	}
	return hash, last.Header.Height + 1, nil
}
