package relayer

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/omni/insured-bridge-relayer/entity"
)

// CheckForExpiredRelaysAndSettle settles relays of the L2 chain that passed the liveness period,
// either when anyone can settle them or when this account is their slow relayer.
func (r *Relayer) CheckForExpiredRelaysAndSettle(ctx context.Context) error {
	logger := r.logger.WithField("chain_id", r.l2.ChainID())
	logger.Debug("checking for expired relays and settling")

	settled := 0
	for _, l1Token := range r.l1.WhitelistedL1Tokens() {
		for _, relay := range r.l1.SettleableRelays(l1Token) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if relay.ChainID != r.l2.ChainID() {
				continue
			}
			canSettle := relay.Settleable == entity.AnyoneCanSettle ||
				(relay.Settleable == entity.SlowRelayerCanSettle && relay.SlowRelayer == r.cfg.Account)
			if !canSettle {
				continue
			}

			relayLogger := logger.WithFields(logrus.Fields{
				"deposit_hash": relay.DepositHash,
				"l1_token":     relay.L1Token,
				"settleable":   relay.Settleable,
				"slow_relayer": relay.SlowRelayer,
			})
			tx, err := r.l1.SettleRelayTx(relay.Deposit, relay)
			if err != nil {
				relayLogger.WithError(err).Error("failed to build settle transaction")
				continue
			}
			relayLogger.Info("Settling relay")
			tx.Message = "Settled relay"
			tx.Level = logrus.InfoLevel
			tx.Fields = logrus.Fields{
				"deposit_hash": relay.DepositHash,
				"l1_token":     relay.L1Token,
			}
			r.enqueue(tx, "Settle")
			settled++
		}
	}
	if settled == 0 {
		logger.Debug("No settleable relays")
	}
	return nil
}
