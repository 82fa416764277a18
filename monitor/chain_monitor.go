package monitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/insured-bridge-relayer/config"
	"github.com/omni/insured-bridge-relayer/logging"
	"github.com/omni/insured-bridge-relayer/utils"
)

// Snapshot is a piece of cached chain state refreshed at the start of every iteration.
type Snapshot interface {
	Update(ctx context.Context) error
}

type Bundler interface {
	Pending() int
	Send(ctx context.Context) error
	WaitForMine(ctx context.Context) ([]*types.Receipt, error)
}

type Relayer interface {
	CheckForPendingDepositsAndRelay(ctx context.Context) error
	CheckForPendingRelaysAndDispute(ctx context.Context) error
	CheckForExpiredRelaysAndSettle(ctx context.Context) error
}

type Finalizer interface {
	CheckForBridgeableL2TokensAndBridge(ctx context.Context) error
	CheckForConfirmedL2ToL1RelaysAndFinalize(ctx context.Context) error
}

type Options struct {
	Actions             config.EnabledActions
	PollingDelay        time.Duration
	ErrorRetries        int
	ErrorRetriesTimeout time.Duration
}

// ChainMonitor runs the relayer and finalizer checks of a single L2 chain in a polling loop.
type ChainMonitor struct {
	logger    logging.Logger
	chainID   string
	snapshots []Snapshot
	relayer   Relayer
	finalizer Finalizer
	l1Bundler Bundler
	l2Bundler Bundler
	opts      Options
}

func NewChainMonitor(logger logging.Logger, chainID uint64, snapshots []Snapshot, relayer Relayer, finalizer Finalizer, l1Bundler, l2Bundler Bundler, opts Options) *ChainMonitor {
	id := strconv.FormatUint(chainID, 10)
	return &ChainMonitor{
		logger:    logger.WithField("chain_id", id),
		chainID:   id,
		snapshots: snapshots,
		relayer:   relayer,
		finalizer: finalizer,
		l1Bundler: l1Bundler,
		l2Bundler: l2Bundler,
		opts:      opts,
	}
}

// Start runs iterations until ctx is cancelled. With zero polling delay a single iteration is run.
func (m *ChainMonitor) Start(ctx context.Context) error {
	m.logger.WithFields(logrus.Fields{
		"polling_delay":   m.opts.PollingDelay,
		"enabled_actions": m.opts.Actions,
	}).Info("starting chain monitor")
	for {
		start := time.Now()
		err := utils.Retry(ctx, m.opts.ErrorRetries, m.opts.ErrorRetriesTimeout, m.RunIteration)
		Iterations.WithLabelValues(m.chainID, iterationStatus(err)).Inc()
		IterationDuration.WithLabelValues(m.chainID).Observe(time.Since(start).Seconds())
		if err != nil {
			m.logger.WithError(err).Error("chain monitor iteration failed")
		} else {
			LastSuccessfulIteration.WithLabelValues(m.chainID).SetToCurrentTime()
		}

		if m.opts.PollingDelay == 0 {
			m.logger.Info("end of serverless execution loop, terminating process")
			return err
		}
		m.logger.WithField("polling_delay", m.opts.PollingDelay).Debug("end of execution loop, waiting for the next iteration")
		if utils.ContextSleep(ctx, m.opts.PollingDelay) == nil {
			m.logger.Info("chain monitor stopped")
			return nil
		}
	}
}

func iterationStatus(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

// RunIteration refreshes the snapshots, runs the enabled checks, flushes the queued
// transactions and waits for all of them to be mined.
func (m *ChainMonitor) RunIteration(ctx context.Context) error {
	if err := m.refresh(ctx); err != nil {
		return err
	}

	var result *multierror.Error
	for _, check := range m.checks() {
		if !check.enabled {
			continue
		}
		if err := check.fn(ctx); err != nil {
			if utils.IsPermanent(err) {
				m.logger.WithError(err).WithField("check", check.name).Error("check failed with non-retriable error")
			}
			result = multierror.Append(result, fmt.Errorf("%s check: %w", check.name, err))
		}
	}

	// queued transactions are flushed even after a failed check
	m.flush(ctx, "l1", m.l1Bundler)
	m.flush(ctx, "l2", m.l2Bundler)
	return result.ErrorOrNil()
}

type check struct {
	name    string
	enabled bool
	fn      func(ctx context.Context) error
}

func (m *ChainMonitor) checks() []check {
	a := m.opts.Actions
	res := []check{
		{"relay", a.Relay, m.relayer.CheckForPendingDepositsAndRelay},
		{"dispute", a.Dispute, m.relayer.CheckForPendingRelaysAndDispute},
		{"settle", a.Settle, m.relayer.CheckForExpiredRelaysAndSettle},
	}
	if m.finalizer != nil {
		res = append(res,
			check{"bridge", a.Bridge, m.finalizer.CheckForBridgeableL2TokensAndBridge},
			check{"finalize", a.Finalize, m.finalizer.CheckForConfirmedL2ToL1RelaysAndFinalize},
		)
	}
	return res
}

func (m *ChainMonitor) refresh(ctx context.Context) error {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range m.snapshots {
		s := s
		g.Go(func() error {
			return s.Update(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("can't refresh chain state: %w", err)
	}
	m.logger.WithField("duration", time.Since(start)).Debug("refreshed chain state")
	return nil
}

// flush submits queued transactions and waits for their receipts. Failures are logged only,
// the next iteration re-evaluates the state anyway.
func (m *ChainMonitor) flush(ctx context.Context, side string, b Bundler) {
	if b == nil {
		return
	}
	logger := m.logger.WithField("side", side)
	if pending := b.Pending(); pending > 0 {
		logger.WithField("count", pending).Debug("sending queued transactions")
	}
	if err := b.Send(ctx); err != nil {
		logger.WithError(err).Warn("some transactions failed to be sent")
	}
	receipts, err := b.WaitForMine(ctx)
	if err != nil {
		logger.WithError(err).Warn("some transactions failed")
	}
	if len(receipts) > 0 {
		logger.WithField("count", len(receipts)).Info("all transactions mined")
	}
}
