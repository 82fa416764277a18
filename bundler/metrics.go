package bundler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var TransactionsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "relayer",
	Subsystem: "bundler",
	Name:      "transactions_total",
	Help:      "Number of submitted transactions by kind and outcome.",
}, []string{"kind", "status"})
