package stats

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stats_trades_recorded_total",
			Help: "Trade events counted into the store",
		},
	)

	mtxScans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stats_log_scans_total",
			Help: "Log tail reads by result",
		},
		[]string{"result"}, // ok|error
	)
)

func init() {
	prometheus.MustRegister(mtxRecorded, mtxScans)
}
