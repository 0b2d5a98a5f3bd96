// Package example provides a reference apphook.Hook: a metrics aggregator
// that accepts every message and block, and records delivered blocks'
// sizes via the node's prometheus registry (spec §4.H is deliberately
// silent on what an embedding application does with delivery — this is one
// legitimate answer, grounded on sage's internal/metrics counters).
package example

import (
	"github.com/nymtech/ephemera/core"
	"github.com/nymtech/ephemera/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsAggregator is an apphook.Hook that admits everything and tracks
// per-creator block counts and total delivered message volume.
type MetricsAggregator struct {
	blocksByCreator *prometheus.CounterVec
	messagesTotal   prometheus.Counter
}

// NewMetricsAggregator registers its collectors on metrics.Registry and
// returns the ready-to-use hook.
func NewMetricsAggregator() *MetricsAggregator {
	a := &MetricsAggregator{
		blocksByCreator: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ephemera_app_blocks_by_creator_total",
			Help: "Delivered blocks, labeled by creator peer id.",
		}, []string{"creator"}),
		messagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ephemera_app_messages_delivered_total",
			Help: "Total client messages contained in delivered blocks.",
		}),
	}
	metrics.Registry.MustRegister(a.blocksByCreator, a.messagesTotal)
	return a
}

// CheckMessage always admits.
func (a *MetricsAggregator) CheckMessage(core.Message) bool { return true }

// CheckBlock always admits.
func (a *MetricsAggregator) CheckBlock(*core.Block) bool { return true }

// DeliverBlock records the delivery in the aggregator's own counters.
func (a *MetricsAggregator) DeliverBlock(block *core.Block, cert *core.Certificate) {
	a.blocksByCreator.WithLabelValues(string(block.Header.CreatorPeerID)).Inc()
	a.messagesTotal.Add(float64(len(block.Messages)))
}
