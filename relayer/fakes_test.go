package relayer_test

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/omni/insured-bridge-relayer/entity"
)

var (
	weth      = common.HexToAddress("0x01")
	pool      = common.HexToAddress("0xA1")
	account   = common.HexToAddress("0xB1")
	otherAcc  = common.HexToAddress("0xB2")
	gwei      = big.NewInt(1e9)
	chainID   = uint64(10)
	realized  = uint64(1e15)
	bondPct   = uint64(5e16)
	now       = uint64(10000)
	errNoFee  = errors.New("no utilization data")
	bigAmount = big.NewInt(5e18)
)

type fakeL1 struct {
	tokens         []common.Address
	deploymentTime uint64
	relays         map[common.Hash]*entity.Relay
	order          []common.Hash
	balance        *big.Int
	fees           map[common.Hash]uint64
}

func newFakeL1() *fakeL1 {
	return &fakeL1{
		tokens:  []common.Address{weth},
		relays:  make(map[common.Hash]*entity.Relay),
		balance: new(big.Int),
		fees:    make(map[common.Hash]uint64),
	}
}

func (l *fakeL1) addRelay(relay *entity.Relay) {
	l.relays[relay.DepositHash] = relay
	l.order = append(l.order, relay.DepositHash)
}

func (l *fakeL1) WhitelistedL1Tokens() []common.Address {
	return l.tokens
}

func (l *fakeL1) PoolDeploymentTime(common.Address) (uint64, error) {
	return l.deploymentTime, nil
}

func (l *fakeL1) RelayForDeposit(_ common.Address, depositHash common.Hash) *entity.Relay {
	return l.relays[depositHash]
}

func (l *fakeL1) filter(fn func(*entity.Relay) bool) []*entity.Relay {
	var res []*entity.Relay
	for _, hash := range l.order {
		if relay := l.relays[hash]; fn(relay) {
			res = append(res, relay)
		}
	}
	return res
}

func (l *fakeL1) PendingRelays(common.Address) []*entity.Relay {
	return l.filter(func(r *entity.Relay) bool {
		return r.RelayState == entity.RelayStatePending
	})
}

func (l *fakeL1) SettleableRelays(common.Address) []*entity.Relay {
	return l.filter(func(r *entity.Relay) bool {
		return r.RelayState == entity.RelayStatePending && r.Settleable != entity.CannotSettle
	})
}

func (l *fakeL1) ProposerBondPct() uint64 {
	return bondPct
}

func (l *fakeL1) CurrentTime() uint64 {
	return now
}

func (l *fakeL1) RealizedLpFeePct(_ context.Context, deposit *entity.Deposit) (uint64, error) {
	if fee, ok := l.fees[deposit.DepositHash]; ok {
		if fee == 0 {
			return 0, errNoFee
		}
		return fee, nil
	}
	return realized, nil
}

func (l *fakeL1) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return new(big.Int).Set(l.balance), nil
}

func (l *fakeL1) tx(method string, deposit *entity.Deposit) (*entity.Transaction, error) {
	return &entity.Transaction{Target: pool, Data: append([]byte(method+":"), deposit.DepositHash.Bytes()...)}, nil
}

func (l *fakeL1) RelayDepositTx(deposit *entity.Deposit, _ uint64) (*entity.Transaction, error) {
	return l.tx("relayDeposit", deposit)
}

func (l *fakeL1) RelayAndSpeedUpTx(deposit *entity.Deposit, _ uint64) (*entity.Transaction, error) {
	return l.tx("relayAndSpeedUp", deposit)
}

func (l *fakeL1) SpeedUpRelayTx(deposit *entity.Deposit, _ *entity.Relay) (*entity.Transaction, error) {
	return l.tx("speedUpRelay", deposit)
}

func (l *fakeL1) DisputeRelayTx(deposit *entity.Deposit, _ *entity.Relay) (*entity.Transaction, error) {
	return l.tx("disputeRelay", deposit)
}

func (l *fakeL1) SettleRelayTx(deposit *entity.Deposit, _ *entity.Relay) (*entity.Transaction, error) {
	return l.tx("settleRelay", deposit)
}

type fakeL2 struct {
	deposits []*entity.Deposit
	history  []*entity.Deposit
	searches int
}

func (l *fakeL2) ChainID() uint64 {
	return chainID
}

func (l *fakeL2) DeployBlock() uint64 {
	return 1
}

func (l *fakeL2) LatestBlock(context.Context) (uint64, error) {
	return 1000, nil
}

func (l *fakeL2) GetAllDeposits() []*entity.Deposit {
	return l.deposits
}

func (l *fakeL2) GetDepositByHash(hash common.Hash) *entity.Deposit {
	for _, d := range l.deposits {
		if d.DepositHash == hash {
			return d
		}
	}
	return nil
}

func (l *fakeL2) GetDepositEvents(_ context.Context, from, to uint64) ([]*entity.Deposit, error) {
	l.searches++
	var res []*entity.Deposit
	all := append(append([]*entity.Deposit{}, l.history...), l.deposits...)
	for _, d := range all {
		if d.BlockNumber >= from && d.BlockNumber <= to {
			res = append(res, d)
		}
	}
	return res, nil
}

type fakeGasPricer struct{}

func (fakeGasPricer) GasPrice(context.Context) (*big.Int, error) {
	return gwei, nil
}

type fakeQueue struct {
	txs []*entity.Transaction
}

func (q *fakeQueue) Enqueue(tx *entity.Transaction) {
	q.txs = append(q.txs, tx)
}

func (q *fakeQueue) methods() []string {
	var res []string
	for _, tx := range q.txs {
		for i, b := range tx.Data {
			if b == ':' {
				res = append(res, string(tx.Data[:i]))
				break
			}
		}
	}
	return res
}

type fakePrices struct{}

func (fakePrices) PriceInNativeCurrency(context.Context, common.Address) (*big.Int, error) {
	return nil, errors.New("price not available")
}

type fakeDecimals struct{}

func (fakeDecimals) Decimals(context.Context, common.Address) (uint8, error) {
	return 18, nil
}

func newDeposit(id uint64, chain uint64) *entity.Deposit {
	return &entity.Deposit{
		ChainID:            chain,
		DepositID:          id,
		DepositHash:        common.BigToHash(new(big.Int).SetUint64(1000 + id)),
		L1Recipient:        common.HexToAddress("0xC1"),
		L2Sender:           common.HexToAddress("0xC2"),
		L1Token:            weth,
		Amount:             big.NewInt(1e18),
		SlowRelayFeePct:    1e16,
		InstantRelayFeePct: 1e16,
		QuoteTimestamp:     5000,
		BlockNumber:        100 + id,
	}
}

func newRelay(deposit *entity.Deposit) *entity.Relay {
	return &entity.Relay{
		DepositHash:      deposit.DepositHash,
		ChainID:          deposit.ChainID,
		L1Token:          deposit.L1Token,
		BridgePool:       pool,
		RealizedLpFeePct: realized,
		PriceRequestTime: 9000,
		ProposerBond:     big.NewInt(5e16),
		FinalFee:         new(big.Int),
		SlowRelayer:      otherAcc,
		RelayState:       entity.RelayStatePending,
		ExpirationTime:   now + 100,
		Deposit:          deposit,
	}
}

func hasMessage(hook *test.Hook, msg string) bool {
	for _, entry := range hook.AllEntries() {
		if entry.Message == msg {
			return true
		}
	}
	return false
}
