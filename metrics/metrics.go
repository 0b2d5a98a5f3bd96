// Package metrics exposes the node's Prometheus counters and gauges,
// grounded on sage's internal/metrics package shape (package-level
// Registry, promhttp handler, standalone server helper).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the node's dedicated Prometheus registry, kept separate from
// the global default registry so embedding applications can run their own
// collectors without collision.
var Registry = prometheus.NewRegistry()

var (
	// MessagesAdmitted counts mempool.Submit successes.
	MessagesAdmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ephemera_messages_admitted_total",
		Help: "Total client messages admitted into the mempool.",
	})
	// MessagesRejected counts mempool.Submit rejections by reason.
	MessagesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ephemera_messages_rejected_total",
		Help: "Total client messages rejected, labeled by reason.",
	}, []string{"reason"})
	// BlocksProduced counts locally produced candidate blocks.
	BlocksProduced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ephemera_blocks_produced_total",
		Help: "Total candidate blocks produced by this node.",
	})
	// BlocksDelivered counts blocks that reached Delivered locally.
	BlocksDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ephemera_blocks_delivered_total",
		Help: "Total blocks delivered to the application hook.",
	})
	// BlocksGCed counts per-block state entries reclaimed by stale-age GC.
	BlocksGCed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ephemera_blocks_gc_total",
		Help: "Total in-flight blocks garbage collected for staleness.",
	})
	// CertificateSize observes the signer count of each delivered certificate.
	CertificateSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ephemera_certificate_signers",
		Help:    "Distinct signer count of delivered certificates.",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})
	// MempoolSize is a gauge sampled by the coordinator on each tick.
	MempoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ephemera_mempool_size",
		Help: "Current number of pending messages in the mempool.",
	})
)

func init() {
	Registry.MustRegister(
		MessagesAdmitted,
		MessagesRejected,
		BlocksProduced,
		BlocksDelivered,
		BlocksGCed,
		CertificateSize,
		MempoolSize,
	)
}

// Handler returns the HTTP handler serving this node's metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartServer starts a standalone metrics HTTP server on addr.
func StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
