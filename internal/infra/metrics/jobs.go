package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sweeperSessionsTotal) }

var sweeperSessionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payment_sweeper_sessions_total",
		Help: "Stale pending sessions handled by the sweeper, labeled by result.",
	},
	[]string{"result"}, // 'reconciled', 'still_pending', 'expired', 'rejected', 'error'
)

func IncSweeper(result string) {
	sweeperSessionsTotal.WithLabelValues(norm(result)).Inc()
}
