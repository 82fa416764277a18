package finalizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BridgeTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "finalizer",
		Name:      "bridge_transactions_total",
		Help:      "Number of canonical bridge transactions queued on L2.",
	}, []string{"chain_id"})
	FinalizationTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "finalizer",
		Name:      "finalization_transactions_total",
		Help:      "Number of L2 to L1 withdrawal finalizations queued on L1.",
	}, []string{"chain_id"})
)
