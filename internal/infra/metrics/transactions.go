package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		transactionsTotal,
		transactionsRevenueTotal,
		transactionsExpiredTotal,
	)
}

var (
	transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transactions_total",
			Help: "Transactions by status (pending/paid/failed/cancelled/expired/refunded).",
		},
		[]string{"status"},
	)

	transactionsRevenueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transactions_revenue_total",
			Help: "The total monetary value of paid transactions.",
		},
	)

	transactionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transactions_expired_sweep_total",
			Help: "Transactions expired by the periodic sweep.",
		},
	)
)

func IncTransaction(status string) {
	transactionsTotal.WithLabelValues(norm(status)).Inc()
}

func AddRevenue(amount int64) {
	transactionsRevenueTotal.Add(float64(amount))
}

func AddExpiredSweep(n int) {
	transactionsExpiredTotal.Add(float64(n))
}
