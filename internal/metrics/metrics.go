// Package metrics exposes Prometheus collectors for the RPC layer, rate
// lookups, settlement transfers and ledger sync. A nil *Metrics is valid and
// records nothing, so packages can be used without a registry in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "splitton"

// Metrics holds every collector the service reports.
type Metrics struct {
	gatherer prometheus.Gatherer

	rpcRequests     *prometheus.CounterVec
	rpcDuration     *prometheus.HistogramVec
	rateFetches     *prometheus.CounterVec
	transfers       *prometheus.CounterVec
	ledgerMutations *prometheus.CounterVec
	pendingOps      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "RPC requests by procedure and result code.",
		}, []string{"procedure", "code"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "RPC handling latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		rateFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_fetches_total",
			Help:      "Exchange rate lookups by currency and outcome (fresh, fetched, stale, failed).",
		}, []string{"currency", "result"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_transfers_total",
			Help:      "Settlement transfers attempted, by result.",
		}, []string{"result"}),
		ledgerMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_mutations_total",
			Help:      "Ledger mutations by kind.",
		}, []string{"kind"}),
		pendingOps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_pending_ops",
			Help:      "Mutations waiting to be written to the durable store.",
		}),
	}
	reg.MustRegister(m.rpcRequests, m.rpcDuration, m.rateFetches, m.transfers, m.ledgerMutations, m.pendingOps)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRPC(procedure, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(procedure, code).Inc()
	m.rpcDuration.WithLabelValues(procedure).Observe(elapsed.Seconds())
}

func (m *Metrics) RateLookup(currency, result string) {
	if m == nil {
		return
	}
	m.rateFetches.WithLabelValues(currency, result).Inc()
}

func (m *Metrics) Transfer(success bool) {
	if m == nil {
		return
	}
	result := "failed"
	if success {
		result = "completed"
	}
	m.transfers.WithLabelValues(result).Inc()
}

func (m *Metrics) LedgerMutation(kind string) {
	if m == nil {
		return
	}
	m.ledgerMutations.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetPendingOps(n int) {
	if m == nil {
		return
	}
	m.pendingOps.Set(float64(n))
}
