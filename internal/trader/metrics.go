package trader

import "github.com/prometheus/client_golang/prometheus"

// Trader metrics, served at /metrics by the API server.
var (
	mtxTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_ticks_total",
			Help: "Poll cycles run",
		},
	)

	mtxTickFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_tick_failures_total",
			Help: "Poll cycles that ended in an error",
		},
	)

	mtxSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_skips_total",
			Help: "Poll cycles that selected no tier, by reason",
		},
		[]string{"reason"},
	)

	mtxTrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_trades_total",
			Help: "Verified buys",
		},
		[]string{"side", "source"}, // source: tier|manual
	)

	mtxBuyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_buy_failures_total",
			Help: "Buys that failed and left the tier armed",
		},
		[]string{"side"},
	)

	mtxUnwinds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_unwinds_total",
			Help: "Compensating sells by result",
		},
		[]string{"result"},
	)

	mtxRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_session_restarts_total",
			Help: "Session restarts by result",
		},
		[]string{"result"},
	)

	mtxConsecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_consecutive_failures",
			Help: "Current run of failed poll cycles",
		},
	)

	mtxRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_running",
			Help: "1 while the poll loop is running",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxTicks,
		mtxTickFailures,
		mtxSkips,
		mtxTrades,
		mtxBuyFailures,
		mtxUnwinds,
		mtxRestarts,
		mtxConsecutiveFailures,
		mtxRunning,
	)
}
