package finalizer

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/insured-bridge-relayer/bridge"
	"github.com/omni/insured-bridge-relayer/bridgeadapter"
	"github.com/omni/insured-bridge-relayer/entity"
	"github.com/omni/insured-bridge-relayer/logging"
	"github.com/omni/insured-bridge-relayer/utils"
)

const defaultConcurrency = 8

// Pools with utilization above 75% are refilled at half the configured threshold.
var highUtilization = big.NewInt(75e16)

type L1Pools interface {
	WhitelistedTokensForChainID(chainID uint64) []*bridge.WhitelistedToken
	PoolReserves(ctx context.Context, l1Token common.Address) (*bridge.PoolReserves, error)
}

type L2DepositBox interface {
	ChainID() uint64
	TokenBalance(ctx context.Context, l2Token common.Address) (*big.Int, error)
	CanBridge(ctx context.Context, l2Token common.Address) (bool, error)
	BridgeTokensTx(l2Token common.Address) (*entity.Transaction, error)
	TokensBridgedTransactions() []*bridge.TokensBridged
}

type Queue interface {
	Enqueue(tx *entity.Transaction)
}

var (
	_ L1Pools      = (*bridge.L1Client)(nil)
	_ L2DepositBox = (*bridge.L2Client)(nil)
)

// Finalizer moves deposit box balances over the canonical bridge and finalizes
// the resulting withdrawals on L1.
type Finalizer struct {
	logger    logging.Logger
	l1        L1Pools
	l2        L2DepositBox
	adapter   bridgeadapter.Adapter
	l1Queue   Queue
	l2Queue   Queue
	threshold uint64
	chainID   string
}

func NewFinalizer(logger logging.Logger, l1 L1Pools, l2 L2DepositBox, adapter bridgeadapter.Adapter, l1Queue, l2Queue Queue, thresholdPct uint64) *Finalizer {
	return &Finalizer{
		logger:    logger.WithFields(logrus.Fields{"service": "finalizer", "chain_id": l2.ChainID()}),
		l1:        l1,
		l2:        l2,
		adapter:   adapter,
		l1Queue:   l1Queue,
		l2Queue:   l2Queue,
		threshold: thresholdPct,
		chainID:   strconv.FormatUint(l2.ChainID(), 10),
	}
}

func (f *Finalizer) whitelistedTokens() []*bridge.WhitelistedToken {
	seen := make(map[common.Address]bool)
	var res []*bridge.WhitelistedToken
	for _, t := range f.l1.WhitelistedTokensForChainID(f.l2.ChainID()) {
		if !seen[t.L2Token] {
			seen[t.L2Token] = true
			res = append(res, t)
		}
	}
	return res
}

// CheckForBridgeableL2TokensAndBridge queues a canonical bridge transaction for every whitelisted
// L2 token whose deposit box balance exceeds the threshold share of the L1 pool reserves.
func (f *Finalizer) CheckForBridgeableL2TokensAndBridge(ctx context.Context) error {
	f.logger.Debug("Checking bridgeable L2 tokens")

	tokens := f.whitelistedTokens()
	canBridge := make([]bool, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultConcurrency)
	for i, token := range tokens {
		i, token := i, token
		g.Go(func() error {
			ok, err := f.l2.CanBridge(gctx, token.L2Token)
			if err != nil {
				return fmt.Errorf("can't check if %s can be bridged: %w", token.L2Token, err)
			}
			canBridge[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var bridgeable []*bridge.WhitelistedToken
	for i, token := range tokens {
		if canBridge[i] {
			bridgeable = append(bridgeable, token)
		}
	}
	if len(bridgeable) == 0 {
		f.logger.Debug("No bridgeable L2 tokens")
		return nil
	}

	for _, token := range bridgeable {
		if err := f.bridgeToken(ctx, token); err != nil {
			f.logger.WithError(err).WithField("l2_token", token.L2Token).Error("Something errored sending tokens over the canonical bridge!")
		}
	}
	return nil
}

func (f *Finalizer) bridgeToken(ctx context.Context, token *bridge.WhitelistedToken) error {
	balance, err := f.l2.TokenBalance(ctx, token.L2Token)
	if err != nil {
		return fmt.Errorf("can't get deposit box balance: %w", err)
	}
	reserves, err := f.l1.PoolReserves(ctx, token.L1Token)
	if err != nil {
		return fmt.Errorf("can't get pool reserves: %w", err)
	}

	threshold := f.threshold
	scale := big.NewInt(100)
	if reserves.Utilization != nil && reserves.Utilization.Cmp(highUtilization) > 0 {
		scale = big.NewInt(200)
	}
	left := new(big.Int).Mul(balance, scale)
	right := new(big.Int).Mul(new(big.Int).SetUint64(threshold), reserves.Total())

	logger := f.logger.WithFields(logrus.Fields{
		"l2_token":                                    token.L2Token,
		"l2_pool_balance":                             balance.String(),
		"l1_pool_reserves":                            reserves.Total().String(),
		"l1_pool_utilization":                         reserves.Utilization.String(),
		"cross_domain_finalization_threshold_percent": threshold,
	})
	if left.Cmp(right) <= 0 {
		logger.Debug("L2 balance <= cross domain finalization threshold % of L1 pool reserves, skipping")
		return nil
	}
	logger.Debug("L2 balance > cross domain finalization threshold % of L1 pool reserves, bridging")

	tx, err := f.l2.BridgeTokensTx(token.L2Token)
	if err != nil {
		return err
	}
	tx.Message = "Canonical bridge initiated"
	tx.Level = logrus.InfoLevel
	tx.Fields = logrus.Fields{
		"l2_token": token.L2Token,
		"l1_token": token.L1Token,
		"amount":   balance.String(),
	}
	f.l2Queue.Enqueue(tx)
	BridgeTransactions.WithLabelValues(f.chainID).Inc()
	return nil
}

// CheckForConfirmedL2ToL1RelaysAndFinalize asks the bridge adapter about every TokensBridged
// transaction and queues the finalization of confirmed ones on L1.
func (f *Finalizer) CheckForConfirmedL2ToL1RelaysAndFinalize(ctx context.Context) error {
	whitelisted := make(map[common.Address]bool)
	for _, token := range f.whitelistedTokens() {
		whitelisted[token.L2Token] = true
	}
	seen := make(map[common.Hash]bool)
	var hashes []common.Hash
	for _, bridged := range f.l2.TokensBridgedTransactions() {
		if whitelisted[bridged.L2Token] && !seen[bridged.TransactionHash] {
			seen[bridged.TransactionHash] = true
			hashes = append(hashes, bridged.TransactionHash)
		}
	}
	f.logger.WithField("l2_tokens_bridged_transactions", len(hashes)).Debug("Checking for confirmed L2->L1 canonical bridge actions")

	results := make([]*bridgeadapter.FinalizationResult, len(hashes))
	errs := make([]error, len(hashes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultConcurrency)
	for i, hash := range hashes {
		i, hash := i, hash
		g.Go(func() error {
			results[i], errs[i] = f.adapter.ConstructFinalizationTransaction(gctx, hash)
			return nil
		})
	}
	_ = g.Wait()

	var confirmed []*bridgeadapter.FinalizationResult
	var permanent error
	for i, err := range errs {
		switch {
		case err == nil:
			if results[i].Transaction != nil {
				confirmed = append(confirmed, results[i])
			}
		case utils.IsPermanent(err):
			f.logger.WithError(err).WithField("l2_tx_hash", hashes[i]).Error("can't finalize L2->L1 transfer")
			if permanent == nil {
				permanent = err
			}
		default:
			f.logger.WithError(err).WithField("l2_tx_hash", hashes[i]).Warn("failed to check L2->L1 transfer status")
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if len(confirmed) == 0 {
		f.logger.Debug("No L2->L1 relays to finalize")
		return permanent
	}
	confirmedHashes := make([]string, len(confirmed))
	for i, res := range confirmed {
		confirmedHashes[i] = res.L2TxHash.String()
	}
	f.logger.WithField("confirmed_l2_transactions", confirmedHashes).Debug("Found L2->L1 relays to finalize")

	for _, res := range confirmed {
		f.l1Queue.Enqueue(res.Transaction)
		FinalizationTransactions.WithLabelValues(f.chainID).Inc()
	}
	return permanent
}
