package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics records escrow lifecycle activity for the /metrics endpoint.
type EscrowMetrics struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	leaseWaits  prometheus.Counter
}

var (
	escrowMetricsOnce sync.Once
	escrowRegistry    *EscrowMetrics
)

// Escrow returns the lazily-initialised metrics registry used to record
// lifecycle transitions.
func Escrow() *EscrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cataloro",
				Subsystem: "escrow",
				Name:      "transitions_total",
				Help:      "Accepted escrow transitions segmented by action.",
			}, []string{"action"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cataloro",
				Subsystem: "escrow",
				Name:      "rejections_total",
				Help:      "Rejected escrow actions segmented by action and reason.",
			}, []string{"action", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cataloro",
				Subsystem: "escrow",
				Name:      "transition_duration_seconds",
				Help:      "Latency distribution for escrow action handling.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"action"}),
			leaseWaits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cataloro",
				Subsystem: "escrow",
				Name:      "lease_contention_total",
				Help:      "Actions rejected because the per-escrow lease stayed busy past the wait budget.",
			}),
		}
		prometheus.MustRegister(
			escrowRegistry.transitions,
			escrowRegistry.rejections,
			escrowRegistry.latency,
			escrowRegistry.leaseWaits,
		)
	})
	return escrowRegistry
}

// ObserveTransition records an accepted transition and its handling latency.
func (m *EscrowMetrics) ObserveTransition(action string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action).Inc()
	m.latency.WithLabelValues(action).Observe(elapsed.Seconds())
}

// ObserveRejection records a rejected action by reason code.
func (m *EscrowMetrics) ObserveRejection(action, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(action, reason).Inc()
}

// ObserveLeaseContention counts wait-budget exhaustion on per-escrow leases.
func (m *EscrowMetrics) ObserveLeaseContention() {
	if m == nil {
		return
	}
	m.leaseWaits.Inc()
}
