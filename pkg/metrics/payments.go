package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reconciliation sources.
const (
	SourceCallback = "callback"
	SourceVerify   = "verify"
	SourceSweep    = "sweep"
)

// PaymentMetrics tracks gateway reconciliation outcomes.
type PaymentMetrics struct {
	reconciliations *prometheus.CounterVec
	gatewayLatency  prometheus.Histogram
}

// NewPaymentMetrics registers the payment metrics. A nil registerer yields a
// no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_reconciliations_total",
		Help:      "Payment reconciliation attempts by source and outcome.",
	}, []string{"source", "outcome"})
	gatewayLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "payment_gateway_status_seconds",
		Help:      "Latency of gateway transaction status queries.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	reg.MustRegister(reconciliations, gatewayLatency)
	return &PaymentMetrics{
		reconciliations: reconciliations,
		gatewayLatency:  gatewayLatency,
	}
}

// RecordReconciliation counts one reconciliation attempt.
func (p *PaymentMetrics) RecordReconciliation(source, outcome string) {
	if p == nil || p.reconciliations == nil {
		return
	}
	p.reconciliations.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

// ObserveGatewayLatency records a status query duration.
func (p *PaymentMetrics) ObserveGatewayLatency(duration time.Duration) {
	if p == nil || p.gatewayLatency == nil {
		return
	}
	p.gatewayLatency.Observe(duration.Seconds())
}
