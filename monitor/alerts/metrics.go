package alerts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertStuckTransaction = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alert",
		Subsystem: "relayer",
		Name:      "stuck_transaction",
		Help:      "Shows relayer transactions which are still not mined, the value is the age in seconds.",
	}, []string{"chain_id", "tx_hash", "nonce", "message"})
	AlertFailedTransaction = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alert",
		Subsystem: "relayer",
		Name:      "failed_transaction",
		Help:      "Shows relayer transactions which were reverted, the value is the age in seconds.",
	}, []string{"chain_id", "block_number", "tx_hash", "message"})
)
