// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the launch pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Preparer metrics
	Prepared     *prometheus.CounterVec
	FeeFallbacks *prometheus.CounterVec

	// Completion metrics
	Completed       *prometheus.CounterVec
	ReceiptWait     prometheus.Histogram
	SettlementSteps *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "launchpad"
	}
	factory := promauto.With(reg)

	return &Metrics{
		Prepared: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "prepared_total",
			Help:      "Total number of prepared creation transactions by factory method",
		}, []string{"method"}),
		FeeFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_fallbacks_total",
			Help:      "Total number of tier fee lookups answered from the fallback table",
		}, []string{"tier"}),
		Completed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "completed_total",
			Help:      "Total number of completion attempts by result",
		}, []string{"result"}),
		ReceiptWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "receipt_wait_seconds",
			Help:      "Time spent waiting for a creation receipt",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		SettlementSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_steps_total",
			Help:      "Total number of settlement sub-steps by step and status",
		}, []string{"step", "status"}),
	}
}

// Handler returns an HTTP handler serving g on /metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordPrepared counts a prepared transaction.
func (m *Metrics) RecordPrepared(method string) {
	if m == nil {
		return
	}
	m.Prepared.WithLabelValues(method).Inc()
}

// RecordFeeFallback counts a tier fee answered from configuration.
func (m *Metrics) RecordFeeFallback(tier string) {
	if m == nil {
		return
	}
	m.FeeFallbacks.WithLabelValues(tier).Inc()
}

// RecordCompleted counts a completion attempt.
func (m *Metrics) RecordCompleted(result string) {
	if m == nil {
		return
	}
	m.Completed.WithLabelValues(result).Inc()
}

// ObserveReceiptWait records receipt wait latency.
func (m *Metrics) ObserveReceiptWait(seconds float64) {
	if m == nil {
		return
	}
	m.ReceiptWait.Observe(seconds)
}

// RecordSettlementStep counts one settlement sub-step outcome.
func (m *Metrics) RecordSettlementStep(step, status string) {
	if m == nil {
		return
	}
	m.SettlementSteps.WithLabelValues(step, status).Inc()
}
