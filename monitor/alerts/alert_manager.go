package alerts

import (
	"context"
	"time"

	"github.com/omni/insured-bridge-relayer/logging"
)

// AlertManager periodically inspects the transaction journal and exposes problematic
// transactions as prometheus gauges.
type AlertManager struct {
	logger logging.Logger
	jobs   map[string]*Job
}

func NewAlertManager(logger logging.Logger, provider *DBAlertsProvider, chainIDs []string) *AlertManager {
	params := &AlertJobParams{
		ChainIDs:   chainIDs,
		StuckAfter: 10 * time.Minute,
		LookBack:   24 * time.Hour,
	}
	jobs := map[string]*Job{
		"stuck_transaction": {
			Interval: time.Minute,
			Timeout:  10 * time.Second,
			Func:     provider.FindStuckTransactions,
			Metric:   AlertStuckTransaction,
			Params:   params,
		},
		"failed_transaction": {
			Interval: 5 * time.Minute,
			Timeout:  20 * time.Second,
			Func:     provider.FindFailedTransactions,
			Metric:   AlertFailedTransaction,
			Params:   params,
		},
	}
	for name, job := range jobs {
		job.logger = logger.WithField("alert_job", name)
	}
	return &AlertManager{
		logger: logger,
		jobs:   jobs,
	}
}

func (m *AlertManager) Start(ctx context.Context) {
	m.logger.Info("starting alert manager jobs")
	for _, job := range m.jobs {
		go job.Start(ctx)
	}
}

func (m *AlertManager) RunOnce(ctx context.Context) {
	for _, job := range m.jobs {
		job.RunOnce(ctx)
	}
}
