package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Iterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "monitor",
		Name:      "iterations_total",
		Help:      "Number of finished chain monitor iterations, after retries.",
	}, []string{"chain_id", "status"})
	IterationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relayer",
		Subsystem: "monitor",
		Name:      "iteration_duration_seconds",
		Help:      "Duration of a chain monitor iteration, including retries and waiting for transactions.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"chain_id"})
	LastSuccessfulIteration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relayer",
		Subsystem: "monitor",
		Name:      "last_successful_iteration_timestamp",
		Help:      "Shows the unix time of the last successful chain monitor iteration.",
	}, []string{"chain_id"})
)
