package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(ledgerPoolConns, ledgerPoolEmptyAcquires) }

// PoolSnapshot is the slice of pgxpool.Stat the payments ledger reports.
type PoolSnapshot struct {
	Max, Total, Idle, Acquired int32
	EmptyAcquires              int64
}

var (
	// state: max|open|idle|acquired
	ledgerPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payments_ledger_pool_connections",
			Help: "Connections held by the entitlement ledger's postgres pool.",
		},
		[]string{"state"},
	)

	// a rising value means checkouts and webhooks are queueing for a connection
	ledgerPoolEmptyAcquires = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "payments_ledger_pool_empty_acquires",
		Help: "Cumulative acquires that had to wait because the ledger pool was empty.",
	})
)

func ObserveLedgerPool(s PoolSnapshot) {
	ledgerPoolConns.WithLabelValues("max").Set(float64(s.Max))
	ledgerPoolConns.WithLabelValues("open").Set(float64(s.Total))
	ledgerPoolConns.WithLabelValues("idle").Set(float64(s.Idle))
	ledgerPoolConns.WithLabelValues("acquired").Set(float64(s.Acquired))
	ledgerPoolEmptyAcquires.Set(float64(s.EmptyAcquires))
}
