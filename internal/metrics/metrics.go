package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Module provides the process-wide payment metrics to Fx.
var Module = fx.Provide(Get)

// PaymentMetrics groups the counters emitted by reconciliation and fulfillment.
type PaymentMetrics struct {
	ReconcileTotal      *prometheus.CounterVec // by source and outcome
	TransitionsTotal    *prometheus.CounterVec // by source and transition kind
	GatewayErrorsTotal  *prometheus.CounterVec // by reason: unreachable, not_found
	GatewayDuration     prometheus.Histogram
	ThrottleTotal       *prometheus.CounterVec // by decision: run, skip
	TicketsActivated    prometheus.Counter
	QuotaExhaustedTotal prometheus.Counter
	EmailsTotal         *prometheus.CounterVec // by template and result
	SideEffectFailures  *prometheus.CounterVec // by step
	OrdersSwept         prometheus.Counter
	JobsTotal           *prometheus.CounterVec // by topic and result
}

var (
	once     sync.Once
	instance *PaymentMetrics
)

// Get returns the metrics registered on the default Prometheus registry.
// Registration happens once per process.
func Get() *PaymentMetrics {
	once.Do(func() {
		instance = newPaymentMetrics()
	})
	return instance
}

func newPaymentMetrics() *PaymentMetrics {
	return &PaymentMetrics{
		ReconcileTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_reconcile_total",
				Help: "Reconciliation attempts by trigger source and outcome",
			},
			[]string{"source", "outcome"},
		),
		TransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_status_transitions_total",
				Help: "Persisted order status changes by trigger source and transition kind",
			},
			[]string{"source", "transition"},
		),
		GatewayErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_gateway_errors_total",
				Help: "Gateway status lookups that did not return a status",
			},
			[]string{"reason"},
		),
		GatewayDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "payments_gateway_request_duration_seconds",
				Help:    "Duration of gateway status lookups",
				Buckets: prometheus.DefBuckets,
			},
		),
		ThrottleTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_throttle_decisions_total",
				Help: "Opportunistic sync gate decisions",
			},
			[]string{"decision"},
		),
		TicketsActivated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "payments_tickets_activated_total",
				Help: "Tickets moved to valid after a successful payment",
			},
		),
		QuotaExhaustedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "payments_discount_quota_exhausted_total",
				Help: "Paid orders whose discount code had no quota left",
			},
		),
		EmailsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_emails_total",
				Help: "Notification emails by template and result",
			},
			[]string{"template", "result"},
		),
		SideEffectFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_side_effect_failures_total",
				Help: "Fulfillment step failures",
			},
			[]string{"step"},
		),
		OrdersSwept: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "payments_abandoned_orders_deleted_total",
				Help: "Pending orders deleted by the expiry sweeper",
			},
		),
		JobsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_worker_jobs_total",
				Help: "Queued messages handled by the worker engine by topic and result",
			},
			[]string{"topic", "result"},
		),
	}
}
