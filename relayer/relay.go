package relayer

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/insured-bridge-relayer/entity"
	"github.com/omni/insured-bridge-relayer/profitability"
	"github.com/omni/insured-bridge-relayer/utils"
)

type relayDecision struct {
	deposit  *entity.Deposit
	relay    *entity.Relay
	fee      uint64
	verdict  *profitability.Verdict
	required *big.Int
}

// CheckForPendingDepositsAndRelay evaluates every relayable deposit of the L2 chain and
// queues at most one relay action per deposit.
func (r *Relayer) CheckForPendingDepositsAndRelay(ctx context.Context) error {
	logger := r.logger.WithField("chain_id", r.l2.ChainID())
	logger.Debug("checking for pending deposits and relaying")

	var deposits []*entity.Deposit
	for _, deposit := range r.l2.GetAllDeposits() {
		relay := r.l1.RelayForDeposit(deposit.L1Token, deposit.DepositHash)
		if relay == nil || relay.RelayState == entity.RelayStatePending {
			deposits = append(deposits, deposit)
		}
	}
	if len(deposits) == 0 {
		logger.Debug("No relayable deposits")
		return nil
	}

	balances, err := r.balances(ctx, deposits)
	if err != nil {
		return err
	}
	gasPrice, err := r.gas.GasPrice(ctx)
	if err != nil {
		return fmt.Errorf("can't get gas price: %w", err)
	}

	decisions := make([]*relayDecision, len(deposits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i, deposit := range deposits {
		i, deposit := i, deposit
		g.Go(func() error {
			decision, err2 := r.evaluateDeposit(gctx, deposit, balances.get(deposit.L1Token), gasPrice)
			if err2 != nil {
				if utils.IsPermanent(err2) {
					return err2
				}
				logger.WithError(err2).WithField("deposit_hash", deposit.DepositHash).Error("failed to evaluate deposit")
				return nil
			}
			decisions[i] = decision
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}

	for _, decision := range decisions {
		if decision != nil {
			r.submitDecision(decision, balances)
		}
	}
	return nil
}

type tokenBalances struct {
	mu     sync.Mutex
	values map[common.Address]*big.Int
}

func (b *tokenBalances) get(token common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.values[token])
}

// spend reserves amount from the token balance, returning false when the balance is not enough.
func (b *tokenBalances) spend(token common.Address, amount *big.Int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	balance := b.values[token]
	if balance.Cmp(amount) < 0 {
		return false
	}
	balance.Sub(balance, amount)
	return true
}

func (r *Relayer) balances(ctx context.Context, deposits []*entity.Deposit) (*tokenBalances, error) {
	res := &tokenBalances{values: make(map[common.Address]*big.Int)}
	for _, deposit := range deposits {
		if _, ok := res.values[deposit.L1Token]; ok {
			continue
		}
		balance, err := r.l1.TokenBalance(ctx, deposit.L1Token, r.cfg.Account)
		if err != nil {
			return nil, fmt.Errorf("can't get relayer balance of %s: %w", deposit.L1Token, err)
		}
		res.values[deposit.L1Token] = balance
	}
	return res, nil
}

func (r *Relayer) evaluateDeposit(ctx context.Context, deposit *entity.Deposit, balance, gasPrice *big.Int) (*relayDecision, error) {
	logger := r.logger.WithFields(logrus.Fields{
		"chain_id":     deposit.ChainID,
		"deposit_hash": deposit.DepositHash,
		"l1_token":     deposit.L1Token,
	})

	deploymentTime, err := r.l1.PoolDeploymentTime(deposit.L1Token)
	if err != nil {
		return nil, err
	}
	if uint64(deposit.QuoteTimestamp) < deploymentTime {
		logger.WithFields(logrus.Fields{
			"quote_timestamp": deposit.QuoteTimestamp,
			"deployment_time": deploymentTime,
		}).Debug("Deposit quote time < bridge pool deployment time, skipping")
		return nil, nil
	}

	fee, err := r.l1.RealizedLpFeePct(ctx, deposit)
	if err != nil {
		return nil, fmt.Errorf("can't compute realized lp fee: %w", err)
	}

	relay := r.l1.RelayForDeposit(deposit.L1Token, deposit.DepositHash)
	if relay != nil {
		switch {
		case relay.IsExpired(r.l1.CurrentTime()):
			logger.WithField("expiration_time", relay.ExpirationTime).Debug("Pending relay has expired")
			return nil, nil
		case relay.RealizedLpFeePct != fee:
			logger.WithFields(logrus.Fields{
				"relay_fee":    relay.RealizedLpFeePct,
				"expected_fee": fee,
			}).Debug("Pending relay is invalid")
			return nil, nil
		case relay.IsSpedUp():
			logger.WithField("instant_relayer", relay.InstantRelayer).Debug("Relay already sped up")
			return nil, nil
		}
	}

	state := entity.RelayStateUninitialized
	if relay != nil {
		state = relay.RelayState
	}
	bond := utils.MulFixed(deposit.Amount, new(big.Int).SetUint64(r.l1.ProposerBondPct()))
	instantAmount := deposit.InstantRelayAmount(fee)

	slowRevenue, speedUpRevenue, instantRevenue := new(big.Int), new(big.Int), new(big.Int)
	if state == entity.RelayStateUninitialized && balance.Cmp(bond) >= 0 {
		slowRevenue = deposit.SlowRelayFee()
	}
	if state == entity.RelayStatePending && !relay.IsSpedUp() && balance.Cmp(instantAmount) >= 0 {
		speedUpRevenue = deposit.InstantRelayFee()
	}
	if state == entity.RelayStateUninitialized && balance.Cmp(new(big.Int).Add(bond, instantAmount)) >= 0 {
		instantRevenue = new(big.Int).Add(deposit.SlowRelayFee(), deposit.InstantRelayFee())
	}

	verdict, err := r.calc.GetRelaySubmitTypeBasedOnProfitability(deposit.L1Token, gasPrice, slowRevenue, speedUpRevenue, instantRevenue)
	if err != nil {
		return nil, err
	}
	RelayDecisions.WithLabelValues(r.chainID, verdict.Type.String()).Inc()

	decision := &relayDecision{deposit: deposit, relay: relay, fee: fee, verdict: verdict}
	switch verdict.Type {
	case profitability.RelaySubmitTypeSlow:
		decision.required = bond
	case profitability.RelaySubmitTypeSpeedUp:
		decision.required = instantAmount
	case profitability.RelaySubmitTypeInstant:
		decision.required = new(big.Int).Add(bond, instantAmount)
	}
	return decision, nil
}

func (r *Relayer) submitDecision(d *relayDecision, balances *tokenBalances) {
	logger := r.logger.WithFields(logrus.Fields{
		"chain_id":     d.deposit.ChainID,
		"deposit_hash": d.deposit.DepositHash,
		"l1_token":     d.deposit.L1Token,
		"amount":       d.deposit.Amount,
		"submit_type":  d.verdict.Type,
	})

	if d.verdict.Type == profitability.RelaySubmitTypeIgnore || !balances.spend(d.deposit.L1Token, d.required) {
		logger.WithField("explanation", d.verdict.Explanation).Debug("Not relaying potentially unprofitable deposit, or insufficient balance")
		return
	}

	var tx *entity.Transaction
	var err error
	fields := logrus.Fields{
		"chain_id":            d.deposit.ChainID,
		"deposit_hash":        d.deposit.DepositHash,
		"l1_token":            d.deposit.L1Token,
		"amount":              d.deposit.Amount,
		"realized_lp_fee_pct": d.fee,
	}
	switch d.verdict.Type {
	case profitability.RelaySubmitTypeSlow:
		logger.Info("Slow relaying deposit")
		tx, err = r.l1.RelayDepositTx(d.deposit, d.fee)
		if err == nil {
			tx.Message, tx.Level = "Slow relayed deposit", logrus.InfoLevel
		}
	case profitability.RelaySubmitTypeSpeedUp:
		logger.Info("Speeding up existing relay")
		tx, err = r.l1.SpeedUpRelayTx(d.deposit, d.relay)
		if err == nil {
			tx.Message, tx.Level = "Sped up relay", logrus.InfoLevel
		}
	case profitability.RelaySubmitTypeInstant:
		logger.Info("Instant relaying deposit")
		tx, err = r.l1.RelayAndSpeedUpTx(d.deposit, d.fee)
		if err == nil {
			tx.Message, tx.Level = "Instant relayed deposit", logrus.InfoLevel
		}
	}
	if err != nil {
		logger.WithError(err).Error("failed to build relay transaction")
		return
	}
	tx.Fields = fields
	r.enqueue(tx, d.verdict.Type.String())
}
