package relayer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/insured-bridge-relayer/entity"
	"github.com/omni/insured-bridge-relayer/logging"
)

// CheckForPendingRelaysAndDispute validates every pending relay against its L2 deposit and
// disputes relays with invalid params, unknown deposits or non-whitelisted chain IDs.
func (r *Relayer) CheckForPendingRelaysAndDispute(ctx context.Context) error {
	logger := r.logger.WithField("chain_id", r.l2.ChainID())
	logger.Debug("checking for pending relays and disputing")

	var relays []*entity.Relay
	for _, l1Token := range r.l1.WhitelistedL1Tokens() {
		relays = append(relays, r.l1.PendingRelays(l1Token)...)
	}
	if len(relays) == 0 {
		logger.Debug("No pending relays")
		return nil
	}

	now := r.l1.CurrentTime()
	var extended map[common.Hash]*entity.Deposit
	for _, relay := range relays {
		relayLogger := logger.WithFields(logrus.Fields{
			"relay_chain_id": relay.ChainID,
			"deposit_hash":   relay.DepositHash,
			"l1_token":       relay.L1Token,
			"slow_relayer":   relay.SlowRelayer,
		})

		if relay.IsExpired(now) {
			continue
		}
		if !r.isWhitelistedChainID(relay.ChainID) {
			relayLogger.Info("Disputing relay with non-whitelisted chainID")
			r.disputeRelay(relayLogger, relay)
			continue
		}
		if relay.ChainID != r.l2.ChainID() {
			relayLogger.Debug("Relay chainID is not the same as the L2 client, skipping")
			continue
		}

		deposit := r.l2.GetDepositByHash(relay.DepositHash)
		if deposit == nil {
			// the snapshot may start after the deposit block, fall back to a full deposit box scan
			if extended == nil {
				var err error
				extended, err = r.allDeposits(ctx)
				if err != nil {
					return err
				}
			}
			deposit = extended[relay.DepositHash]
		}
		if deposit == nil {
			relayLogger.Info("Disputing pending relay with no matching deposit event")
			r.disputeRelay(relayLogger, relay)
			continue
		}

		deploymentTime, err := r.l1.PoolDeploymentTime(deposit.L1Token)
		if err != nil {
			relayLogger.WithError(err).Error("failed to get bridge pool deployment time for pending relay")
			continue
		}
		if uint64(deposit.QuoteTimestamp) < deploymentTime {
			// no realized fee exists before the pool was deployed
			relayLogger.WithFields(logrus.Fields{
				"quote_timestamp": deposit.QuoteTimestamp,
				"deployment_time": deploymentTime,
			}).Info("Disputing pending relay with invalid params")
			r.disputeRelay(relayLogger, relay)
			continue
		}

		fee, err := r.l1.RealizedLpFeePct(ctx, deposit)
		if err != nil {
			relayLogger.WithError(err).Error("failed to compute realized lp fee for pending relay")
			continue
		}
		if fee != relay.RealizedLpFeePct || deposit.L1Token != relay.L1Token {
			relayLogger.WithFields(logrus.Fields{
				"relay_fee":    relay.RealizedLpFeePct,
				"expected_fee": fee,
			}).Info("Disputing pending relay with invalid params")
			r.disputeRelay(relayLogger, relay)
			continue
		}
		relayLogger.Debug("Pending relay is valid")
	}
	return nil
}

func (r *Relayer) allDeposits(ctx context.Context) (map[common.Hash]*entity.Deposit, error) {
	head, err := r.l2.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}
	deposits, err := r.l2.GetDepositEvents(ctx, r.l2.DeployBlock(), head)
	if err != nil {
		return nil, fmt.Errorf("can't search for deposits since deployment: %w", err)
	}
	res := make(map[common.Hash]*entity.Deposit, len(deposits))
	for _, deposit := range deposits {
		res[deposit.DepositHash] = deposit
	}
	return res, nil
}

// disputeRelay disputes relay with the deposit data it was submitted with.
func (r *Relayer) disputeRelay(logger logging.Logger, relay *entity.Relay) {
	tx, err := r.l1.DisputeRelayTx(relay.Deposit, relay)
	if err != nil {
		logger.WithError(err).Error("failed to build dispute transaction")
		return
	}
	tx.Message = "Disputed pending relay"
	tx.Level = logrus.InfoLevel
	tx.Fields = logrus.Fields{
		"relay_chain_id": relay.ChainID,
		"deposit_hash":   relay.DepositHash,
		"l1_token":       relay.L1Token,
	}
	r.enqueue(tx, "Dispute")
}
