package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/omni/insured-bridge-relayer/contract"
	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/entity"
	"github.com/omni/insured-bridge-relayer/ethclient"
	"github.com/omni/insured-bridge-relayer/logging"
)

var (
	ErrUnknownL1Token = errors.New("l1 token is not whitelisted")
	ErrNoRateModel    = errors.New("no rate model for l1 token")
)

// The slow relayer has this many seconds after relay expiration to settle exclusively.
const slowRelayerSettleWindow = 15 * 60

var poolEvents = []string{abi.DepositRelayed, abi.RelaySpedUp, abi.RelayDisputed, abi.RelaySettled}

type L1Options struct {
	BridgeAdmin       common.Address
	StartBlock        uint64
	MaxBlockRangeSize uint64
	RateModels        map[common.Address]*RateModel
}

type pool struct {
	contract       *contract.BridgePool
	l1Token        common.Address
	deploymentTime uint64
	lastBlock      uint64
	relays         map[common.Hash]*entity.Relay
}

// L1Client keeps a snapshot of bridge admin and bridge pools state, updated incrementally from events.
type L1Client struct {
	logger logging.Logger
	client ethclient.Client
	admin  *contract.BridgeAdmin
	opts   L1Options

	mu              sync.RWMutex
	lastBlock       uint64
	whitelist       []*WhitelistedToken
	pools           map[common.Address]*pool
	poolsByL1Token  map[common.Address]*pool
	proposerBondPct uint64
	liveness        uint64
	currentTime     uint64
	headBlock       uint64
	blockByTime     map[uint64]uint64
}

func NewL1Client(logger logging.Logger, client ethclient.Client, opts L1Options) *L1Client {
	lastBlock := opts.StartBlock
	if lastBlock > 0 {
		lastBlock--
	}
	return &L1Client{
		logger:         logger,
		client:         client,
		admin:          contract.NewBridgeAdmin(client, opts.BridgeAdmin),
		opts:           opts,
		lastBlock:      lastBlock,
		pools:          make(map[common.Address]*pool),
		poolsByL1Token: make(map[common.Address]*pool),
		blockByTime:    make(map[uint64]uint64),
	}
}

func (c *L1Client) Client() ethclient.Client {
	return c.client
}

func (c *L1Client) Update(ctx context.Context) error {
	head, err := c.client.LatestHeader(ctx)
	if err != nil {
		return fmt.Errorf("can't get latest L1 header: %w", err)
	}
	headBlock := head.Number.Uint64()
	bondPct, err := c.admin.ProposerBondPct(ctx)
	if err != nil {
		return fmt.Errorf("can't get proposer bond pct: %w", err)
	}
	liveness, err := c.admin.OptimisticOracleLiveness(ctx)
	if err != nil {
		return fmt.Errorf("can't get optimistic oracle liveness: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.proposerBondPct = bondPct
	c.liveness = liveness
	c.currentTime = head.Time
	c.headBlock = headBlock

	if err = c.updateWhitelist(ctx, headBlock); err != nil {
		return err
	}
	for _, p := range c.pools {
		if err = c.updatePool(ctx, p, headBlock); err != nil {
			return err
		}
	}
	c.updateSettleable()

	c.logger.WithFields(logrus.Fields{
		"head_block":        headBlock,
		"whitelisted_pairs": len(c.whitelist),
		"pools":             len(c.pools),
	}).Debug("updated L1 bridge state")
	return nil
}

func (c *L1Client) updateWhitelist(ctx context.Context, headBlock uint64) error {
	for _, r := range SplitBlockRange(c.lastBlock+1, headBlock, c.opts.MaxBlockRangeSize) {
		logs, err := c.admin.FilterEvents(ctx, abi.WhitelistToken, r.From, r.To)
		if err != nil {
			return err
		}
		for i := range logs {
			if err = c.handleWhitelistToken(ctx, &logs[i]); err != nil {
				return err
			}
		}
		c.lastBlock = r.To
	}
	return nil
}

func (c *L1Client) handleWhitelistToken(ctx context.Context, log *types.Log) error {
	var event abi.WhitelistTokenEvent
	if err := c.admin.UnpackLog(&event, abi.WhitelistToken, log); err != nil {
		return fmt.Errorf("can't decode whitelist event: %w", err)
	}
	token := &WhitelistedToken{
		ChainID:     event.ChainID.Uint64(),
		L1Token:     event.L1Token,
		L2Token:     event.L2Token,
		BridgePool:  event.BridgePool,
		BlockNumber: log.BlockNumber,
	}
	replaced := false
	for i, t := range c.whitelist {
		if t.ChainID == token.ChainID && t.L1Token == token.L1Token {
			c.whitelist[i] = token
			replaced = true
		}
	}
	if !replaced {
		c.whitelist = append(c.whitelist, token)
	}

	if _, ok := c.pools[token.BridgePool]; !ok {
		header, err := c.client.HeaderByNumber(ctx, log.BlockNumber)
		if err != nil {
			return fmt.Errorf("can't get header of block %d: %w", log.BlockNumber, err)
		}
		lastBlock := c.opts.StartBlock
		if lastBlock > 0 {
			lastBlock--
		}
		p := &pool{
			contract:       contract.NewBridgePool(c.client, token.BridgePool),
			l1Token:        token.L1Token,
			deploymentTime: header.Time,
			lastBlock:      lastBlock,
			relays:         make(map[common.Hash]*entity.Relay),
		}
		c.pools[token.BridgePool] = p
		c.poolsByL1Token[token.L1Token] = p
		c.logger.WithFields(logrus.Fields{
			"l1_token":        token.L1Token,
			"bridge_pool":     token.BridgePool,
			"deployment_time": header.Time,
		}).Info("found new bridge pool")
	}
	c.poolsByL1Token[token.L1Token] = c.pools[token.BridgePool]
	return nil
}

func (c *L1Client) updatePool(ctx context.Context, p *pool, headBlock uint64) error {
	for _, r := range SplitBlockRange(p.lastBlock+1, headBlock, c.opts.MaxBlockRangeSize) {
		logs, err := p.contract.FilterAnyEvents(ctx, poolEvents, r.From, r.To)
		if err != nil {
			return err
		}
		for i := range logs {
			if err = c.handlePoolEvent(p, &logs[i]); err != nil {
				return err
			}
		}
		p.lastBlock = r.To
	}
	return nil
}

func (c *L1Client) handlePoolEvent(p *pool, log *types.Log) error {
	switch log.Topics[0] {
	case abi.BridgePool.EventID(abi.DepositRelayed):
		var event abi.DepositRelayedEvent
		if err := p.contract.UnpackLog(&event, abi.DepositRelayed, log); err != nil {
			return fmt.Errorf("can't decode relay event: %w", err)
		}
		relay := c.newRelay(p, &event, log.BlockNumber)
		p.relays[event.DepositHash] = relay
	case abi.BridgePool.EventID(abi.RelaySpedUp):
		var event abi.RelaySpedUpEvent
		if err := p.contract.UnpackLog(&event, abi.RelaySpedUp, log); err != nil {
			return fmt.Errorf("can't decode speed up event: %w", err)
		}
		if relay, ok := p.relays[event.DepositHash]; ok {
			relay.InstantRelayer = event.InstantRelayer
		}
	case abi.BridgePool.EventID(abi.RelayDisputed):
		var event abi.RelayDisputedEvent
		if err := p.contract.UnpackLog(&event, abi.RelayDisputed, log); err != nil {
			return fmt.Errorf("can't decode dispute event: %w", err)
		}
		// a disputed deposit can be relayed again
		delete(p.relays, event.DepositHash)
	case abi.BridgePool.EventID(abi.RelaySettled):
		var event abi.RelaySettledEvent
		if err := p.contract.UnpackLog(&event, abi.RelaySettled, log); err != nil {
			return fmt.Errorf("can't decode settle event: %w", err)
		}
		if relay, ok := p.relays[event.DepositHash]; ok {
			relay.RelayState = entity.RelayStateFinalized
			relay.Settleable = entity.CannotSettle
		}
	}
	return nil
}

func (c *L1Client) newRelay(p *pool, event *abi.DepositRelayedEvent, blockNumber uint64) *entity.Relay {
	data := event.DepositData
	deposit := &entity.Deposit{
		ChainID:            data.ChainID.Uint64(),
		DepositID:          data.DepositID,
		DepositHash:        event.DepositHash,
		L1Recipient:        data.L1Recipient,
		L2Sender:           data.L2Sender,
		L1Token:            p.l1Token,
		Amount:             data.Amount,
		SlowRelayFeePct:    data.SlowRelayFeePct,
		InstantRelayFeePct: data.InstantRelayFeePct,
		QuoteTimestamp:     data.QuoteTimestamp,
	}
	for _, t := range c.whitelist {
		if t.ChainID == deposit.ChainID && t.L1Token == p.l1Token {
			deposit.L2Token = t.L2Token
		}
	}
	return &entity.Relay{
		DepositHash:            event.DepositHash,
		ChainID:                deposit.ChainID,
		L1Token:                p.l1Token,
		BridgePool:             p.contract.Address,
		RelayID:                event.Relay.RelayID,
		RealizedLpFeePct:       event.Relay.RealizedLpFeePct,
		PriceRequestTime:       event.Relay.PriceRequestTime,
		ProposerBond:           event.Relay.ProposerBond,
		FinalFee:               event.Relay.FinalFee,
		SlowRelayer:            event.Relay.SlowRelayer,
		RelayState:             entity.RelayState(event.Relay.RelayState),
		RelayAncillaryDataHash: event.RelayAncillaryDataHash,
		ExpirationTime:         uint64(event.Relay.PriceRequestTime) + c.liveness,
		Deposit:                deposit,
		BlockNumber:            blockNumber,
	}
}

func (c *L1Client) updateSettleable() {
	for _, p := range c.pools {
		for _, relay := range p.relays {
			switch {
			case relay.RelayState != entity.RelayStatePending || c.currentTime < relay.ExpirationTime:
				relay.Settleable = entity.CannotSettle
			case c.currentTime < relay.ExpirationTime+slowRelayerSettleWindow:
				relay.Settleable = entity.SlowRelayerCanSettle
			default:
				relay.Settleable = entity.AnyoneCanSettle
			}
		}
	}
}

func (c *L1Client) WhitelistedTokensForChainID(chainID uint64) []*WhitelistedToken {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var res []*WhitelistedToken
	for _, t := range c.whitelist {
		if t.ChainID == chainID {
			res = append(res, t)
		}
	}
	return res
}

func (c *L1Client) WhitelistedL1Tokens() []common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[common.Address]bool)
	var res []common.Address
	for _, t := range c.whitelist {
		if !seen[t.L1Token] {
			seen[t.L1Token] = true
			res = append(res, t.L1Token)
		}
	}
	return res
}

func (c *L1Client) BridgePoolForL1Token(l1Token common.Address) (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.poolsByL1Token[l1Token]
	if !ok {
		return common.Address{}, fmt.Errorf("%s: %w", l1Token, ErrUnknownL1Token)
	}
	return p.contract.Address, nil
}

// PoolDeploymentTime is the timestamp of the block in which the pool was first whitelisted.
func (c *L1Client) PoolDeploymentTime(l1Token common.Address) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.poolsByL1Token[l1Token]
	if !ok {
		return 0, fmt.Errorf("%s: %w", l1Token, ErrUnknownL1Token)
	}
	return p.deploymentTime, nil
}

func (c *L1Client) RelayForDeposit(l1Token common.Address, depositHash common.Hash) *entity.Relay {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.poolsByL1Token[l1Token]
	if !ok {
		return nil
	}
	relay, ok := p.relays[depositHash]
	if !ok {
		return nil
	}
	return copyRelay(relay)
}

// copyRelay detaches relay from the snapshot, so that callers never race with Update.
// Deposit is shared, it is not modified after the relay is created.
func copyRelay(relay *entity.Relay) *entity.Relay {
	cp := *relay
	return &cp
}

func (c *L1Client) relays(l1Token common.Address, filter func(*entity.Relay) bool) []*entity.Relay {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.poolsByL1Token[l1Token]
	if !ok {
		return nil
	}
	var res []*entity.Relay
	for _, relay := range p.relays {
		if filter(relay) {
			res = append(res, copyRelay(relay))
		}
	}
	sortRelays(res)
	return res
}

func (c *L1Client) PendingRelays(l1Token common.Address) []*entity.Relay {
	return c.relays(l1Token, func(r *entity.Relay) bool {
		return r.RelayState == entity.RelayStatePending
	})
}

func (c *L1Client) SettleableRelays(l1Token common.Address) []*entity.Relay {
	return c.relays(l1Token, func(r *entity.Relay) bool {
		return r.RelayState == entity.RelayStatePending && r.Settleable != entity.CannotSettle
	})
}

func (c *L1Client) ProposerBondPct() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.proposerBondPct
}

func (c *L1Client) CurrentTime() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentTime
}

// RealizedLpFeePct computes the LP fee a relay of deposit must use, from pool utilization
// at the latest L1 block not newer than the deposit quote timestamp.
func (c *L1Client) RealizedLpFeePct(ctx context.Context, deposit *entity.Deposit) (uint64, error) {
	rateModel, ok := c.opts.RateModels[deposit.L1Token]
	if !ok {
		return 0, fmt.Errorf("%s: %w", deposit.L1Token, ErrNoRateModel)
	}
	c.mu.RLock()
	p, ok := c.poolsByL1Token[deposit.L1Token]
	c.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%s: %w", deposit.L1Token, ErrUnknownL1Token)
	}

	block, err := c.BlockForTimestamp(ctx, uint64(deposit.QuoteTimestamp))
	if err != nil {
		return 0, err
	}
	before, after, err := p.contract.LiquidityUtilizationsAtBlock(ctx, deposit.Amount, block)
	if err != nil {
		return 0, fmt.Errorf("can't get pool utilization at block %d: %w", block, err)
	}
	return rateModel.RealizedLpFeePct(before, after), nil
}

// BlockForTimestamp finds the latest L1 block with timestamp <= ts, between the start block and the last seen head.
func (c *L1Client) BlockForTimestamp(ctx context.Context, ts uint64) (uint64, error) {
	c.mu.RLock()
	cached, ok := c.blockByTime[ts]
	lo, hi := c.opts.StartBlock, c.headBlock
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	for lo < hi {
		mid := lo + (hi-lo+1)/2
		header, err := c.client.HeaderByNumber(ctx, mid)
		if err != nil {
			return 0, fmt.Errorf("can't get header of block %d: %w", mid, err)
		}
		if header.Time <= ts {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	c.mu.Lock()
	c.blockByTime[ts] = lo
	c.mu.Unlock()
	return lo, nil
}

func (c *L1Client) bridgePool(l1Token common.Address) (*contract.BridgePool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.poolsByL1Token[l1Token]
	if !ok {
		return nil, fmt.Errorf("%s: %w", l1Token, ErrUnknownL1Token)
	}
	return p.contract, nil
}

func (c *L1Client) poolTx(l1Token common.Address, method string, args ...interface{}) (*entity.Transaction, error) {
	p, err := c.bridgePool(l1Token)
	if err != nil {
		return nil, err
	}
	data, err := p.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	return &entity.Transaction{Target: p.Address, Data: data}, nil
}

func (c *L1Client) RelayDepositTx(deposit *entity.Deposit, realizedLpFeePct uint64) (*entity.Transaction, error) {
	return c.poolTx(deposit.L1Token, "relayDeposit", ToDepositData(deposit), realizedLpFeePct)
}

func (c *L1Client) RelayAndSpeedUpTx(deposit *entity.Deposit, realizedLpFeePct uint64) (*entity.Transaction, error) {
	return c.poolTx(deposit.L1Token, "relayAndSpeedUp", ToDepositData(deposit), realizedLpFeePct)
}

func (c *L1Client) SpeedUpRelayTx(deposit *entity.Deposit, relay *entity.Relay) (*entity.Transaction, error) {
	return c.poolTx(deposit.L1Token, "speedUpRelay", ToDepositData(deposit), ToRelayData(relay))
}

func (c *L1Client) DisputeRelayTx(deposit *entity.Deposit, relay *entity.Relay) (*entity.Transaction, error) {
	return c.poolTx(relay.L1Token, "disputeRelay", ToDepositData(deposit), ToRelayData(relay))
}

func (c *L1Client) SettleRelayTx(deposit *entity.Deposit, relay *entity.Relay) (*entity.Transaction, error) {
	return c.poolTx(relay.L1Token, "settleRelay", ToDepositData(deposit), ToRelayData(relay))
}

// PoolReserves returns liquid and utilized reserves and the current utilization of the pool.
func (c *L1Client) PoolReserves(ctx context.Context, l1Token common.Address) (*PoolReserves, error) {
	p, err := c.bridgePool(l1Token)
	if err != nil {
		return nil, err
	}
	liquid, err := p.LiquidReserves(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get liquid reserves: %w", err)
	}
	utilized, err := p.UtilizedReserves(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get utilized reserves: %w", err)
	}
	utilization, err := p.LiquidityUtilizationCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get utilization: %w", err)
	}
	return &PoolReserves{
		LiquidReserves:   liquid,
		UtilizedReserves: utilized,
		Utilization:      utilization,
	}, nil
}

type PoolReserves struct {
	LiquidReserves   *big.Int
	UtilizedReserves *big.Int
	Utilization      *big.Int
}

func (r *PoolReserves) Total() *big.Int {
	return new(big.Int).Add(r.LiquidReserves, r.UtilizedReserves)
}

func (c *L1Client) TokenBalance(ctx context.Context, l1Token, account common.Address) (*big.Int, error) {
	return contract.NewERC20(c.client, l1Token).BalanceOf(ctx, account)
}
