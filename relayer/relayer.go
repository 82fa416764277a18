package relayer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/insured-bridge-relayer/bridge"
	"github.com/omni/insured-bridge-relayer/entity"
	"github.com/omni/insured-bridge-relayer/logging"
	"github.com/omni/insured-bridge-relayer/profitability"
)

const defaultEvaluationConcurrency = 8

// L1State is the L1 bridge pools snapshot the relayer reads and builds transactions from.
type L1State interface {
	WhitelistedL1Tokens() []common.Address
	PoolDeploymentTime(l1Token common.Address) (uint64, error)
	RelayForDeposit(l1Token common.Address, depositHash common.Hash) *entity.Relay
	PendingRelays(l1Token common.Address) []*entity.Relay
	SettleableRelays(l1Token common.Address) []*entity.Relay
	ProposerBondPct() uint64
	CurrentTime() uint64
	RealizedLpFeePct(ctx context.Context, deposit *entity.Deposit) (uint64, error)
	TokenBalance(ctx context.Context, l1Token, account common.Address) (*big.Int, error)

	RelayDepositTx(deposit *entity.Deposit, realizedLpFeePct uint64) (*entity.Transaction, error)
	RelayAndSpeedUpTx(deposit *entity.Deposit, realizedLpFeePct uint64) (*entity.Transaction, error)
	SpeedUpRelayTx(deposit *entity.Deposit, relay *entity.Relay) (*entity.Transaction, error)
	DisputeRelayTx(deposit *entity.Deposit, relay *entity.Relay) (*entity.Transaction, error)
	SettleRelayTx(deposit *entity.Deposit, relay *entity.Relay) (*entity.Transaction, error)
}

// L2State is the deposit box snapshot of the L2 chain the relayer serves.
type L2State interface {
	ChainID() uint64
	DeployBlock() uint64
	LatestBlock(ctx context.Context) (uint64, error)
	GetAllDeposits() []*entity.Deposit
	GetDepositByHash(hash common.Hash) *entity.Deposit
	GetDepositEvents(ctx context.Context, from, to uint64) ([]*entity.Deposit, error)
}

type ProfitabilityCalculator interface {
	GetRelaySubmitTypeBasedOnProfitability(token common.Address, cumulativeGasPrice, slowRevenue, speedUpRevenue, instantRevenue *big.Int) (*profitability.Verdict, error)
}

type GasPricer interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

type Queue interface {
	Enqueue(tx *entity.Transaction)
}

type Config struct {
	Account             common.Address
	WhitelistedChainIDs []uint64
}

type Relayer struct {
	logger   logging.Logger
	l1       L1State
	l2       L2State
	calc     ProfitabilityCalculator
	gas      GasPricer
	queue    Queue
	cfg      Config
	chainID  string
	parallel int
}

func NewRelayer(logger logging.Logger, l1 L1State, l2 L2State, calc ProfitabilityCalculator, gas GasPricer, queue Queue, cfg Config) *Relayer {
	return &Relayer{
		logger:   logger.WithField("service", "relayer"),
		l1:       l1,
		l2:       l2,
		calc:     calc,
		gas:      gas,
		queue:    queue,
		cfg:      cfg,
		chainID:  new(big.Int).SetUint64(l2.ChainID()).String(),
		parallel: defaultEvaluationConcurrency,
	}
}

func (r *Relayer) isWhitelistedChainID(chainID uint64) bool {
	for _, id := range r.cfg.WhitelistedChainIDs {
		if id == chainID {
			return true
		}
	}
	return false
}

func (r *Relayer) enqueue(tx *entity.Transaction, kind string) {
	r.queue.Enqueue(tx)
	QueuedTransactions.WithLabelValues(r.chainID, kind).Inc()
}

// Compile time check of the concrete snapshots.
var (
	_ L1State = (*bridge.L1Client)(nil)
	_ L2State = (*bridge.L2Client)(nil)
)
