package profitability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var PriceUpdateFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "relayer",
	Subsystem: "profitability",
	Name:      "price_update_failures_total",
	Help:      "Number of failed token price or decimals lookups.",
}, []string{"token"})
