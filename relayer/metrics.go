package relayer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RelayDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "relayer",
		Name:      "decisions_total",
		Help:      "Number of profitability decisions made for pending deposits, by submit type.",
	}, []string{"chain_id", "type"})
	QueuedTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "relayer",
		Name:      "queued_transactions_total",
		Help:      "Number of relayer transactions queued for submission, by action.",
	}, []string{"chain_id", "action"})
)
