package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		checkoutRequestsTotal,
		providerCallDuration,
		circuitBreakerState,
	)
}

var (
	// result: created|unauthenticated|not_found|free_package|rate_limited|provider_unavailable|error
	checkoutRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_requests_total",
			Help: "Checkout initiations by provider and result.",
		},
		[]string{"provider", "result"},
	)

	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_provider_call_duration_seconds",
			Help:    "Latency of outbound payment provider API calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"provider", "operation", "success"},
	)

	circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payment_provider_circuit_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open).",
		},
		[]string{"provider"},
	)
)

func IncCheckout(provider, result string) {
	checkoutRequestsTotal.WithLabelValues(norm(provider), norm(result)).Inc()
}

func ObserveProviderCall(provider, operation string, d time.Duration, success bool) {
	s := "false"
	if success {
		s = "true"
	}
	providerCallDuration.WithLabelValues(norm(provider), norm(operation), s).Observe(d.Seconds())
}

func SetCircuitState(provider string, state int) {
	circuitBreakerState.WithLabelValues(norm(provider)).Set(float64(state))
}
