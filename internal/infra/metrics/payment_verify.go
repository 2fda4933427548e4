package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ReconcileTotal,
		ReconcileDuration,
		WebhookAuthFailures,
		NotificationsTotal,
	)
}

var (
	// Reconciliation attempts grouped by trigger and bounded outcome.
	// source: webhook|client_callback|sweeper
	// outcome: granted|already_processed|payment_failed|rejected|error
	ReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconcile_total",
			Help: "Count of reconciliation attempts by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	ReconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_reconcile_duration_seconds",
			Help:    "Duration of payment reconciliation in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"source"},
	)

	WebhookAuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_auth_failures_total",
			Help: "Webhook deliveries rejected by signature verification.",
		},
		[]string{"provider"},
	)

	// kind: granted|suspicious ; status: sent|error|dropped
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_notifications_total",
			Help: "Operator notifications by kind and delivery status.",
		},
		[]string{"kind", "status"},
	)
)

func IncReconcile(source, outcome string) {
	ReconcileTotal.WithLabelValues(norm(source), norm(outcome)).Inc()
}

func IncWebhookAuthFailure(provider string) {
	WebhookAuthFailures.WithLabelValues(norm(provider)).Inc()
}

func IncNotification(kind, status string) {
	NotificationsTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}
