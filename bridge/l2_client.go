package bridge

import (
	"context"
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

type L2Options struct {
	ChainID           uint64
	DepositBox        common.Address
	DeployBlock       uint64
	MaxBlockRangeSize uint64
	// LookbackWindow limits the first deposits scan to the latest blocks, 0 scans from DeployBlock.
	// TokensBridged events are always scanned from DeployBlock.
	LookbackWindow uint64
}

// L2Client keeps a snapshot of deposit box events on a single L2 chain.
type L2Client struct {
	logger     logging.Logger
	client     ethclient.Client
	depositBox *contract.DepositBox
	opts       L2Options

	mu        sync.RWMutex
	lastBlock *uint64
	deposits  map[common.Hash]*entity.Deposit
	order     []common.Hash
	bridged   []*TokensBridged

	// TokensBridged events below backfillTo were scanned ahead of the deposits scan.
	backfillTo uint64
}

func NewL2Client(logger logging.Logger, client ethclient.Client, opts L2Options) *L2Client {
	return &L2Client{
		logger:     logger,
		client:     client,
		depositBox: contract.NewDepositBox(client, opts.DepositBox),
		opts:       opts,
		deposits:   make(map[common.Hash]*entity.Deposit),
	}
}

func (c *L2Client) ChainID() uint64 {
	return c.opts.ChainID
}

func (c *L2Client) DeployBlock() uint64 {
	return c.opts.DeployBlock
}

func (c *L2Client) Client() ethclient.Client {
	return c.client
}

func (c *L2Client) DepositBox() *contract.DepositBox {
	return c.depositBox
}

func (c *L2Client) LatestBlock(ctx context.Context) (uint64, error) {
	head, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("can't get latest L2 block: %w", err)
	}
	return head, nil
}

func (c *L2Client) Update(ctx context.Context) error {
	head, err := c.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("can't get latest L2 block: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.opts.DeployBlock
	if c.lastBlock != nil {
		from = *c.lastBlock + 1
	} else if c.opts.LookbackWindow > 0 && head > c.opts.LookbackWindow && head-c.opts.LookbackWindow > from {
		from = head - c.opts.LookbackWindow
	}

	// bridged amounts before the lookback window are still needed to track pending bridges
	if start := c.opts.DeployBlock; c.lastBlock == nil && from > start {
		if c.backfillTo > start {
			start = c.backfillTo
		}
		if from > start {
			n := len(c.bridged)
			if err = c.scanTokensBridged(ctx, start, from-1); err != nil {
				c.bridged = c.bridged[:n]
				return err
			}
			c.backfillTo = from
		}
	}

	newDeposits := 0
	for _, r := range SplitBlockRange(from, head, c.opts.MaxBlockRangeSize) {
		logs, err2 := c.depositBox.FilterAnyEvents(ctx, []string{abi.FundsDeposited, abi.TokensBridged}, r.From, r.To)
		if err2 != nil {
			return err2
		}
		for i := range logs {
			isNew, err3 := c.handleLog(&logs[i])
			if err3 != nil {
				return err3
			}
			if isNew {
				newDeposits++
			}
		}
		to := r.To
		c.lastBlock = &to
	}

	c.logger.WithFields(logrus.Fields{
		"chain_id":     c.opts.ChainID,
		"head_block":   head,
		"new_deposits": newDeposits,
		"deposits":     len(c.deposits),
	}).Debug("updated L2 deposit box state")
	return nil
}

func (c *L2Client) scanTokensBridged(ctx context.Context, from, to uint64) error {
	for _, r := range SplitBlockRange(from, to, c.opts.MaxBlockRangeSize) {
		logs, err := c.depositBox.FilterAnyEvents(ctx, []string{abi.TokensBridged}, r.From, r.To)
		if err != nil {
			return err
		}
		for i := range logs {
			if _, err = c.handleLog(&logs[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleLog applies a deposit box event to the snapshot and reports whether it added a new deposit.
func (c *L2Client) handleLog(log *types.Log) (bool, error) {
	switch log.Topics[0] {
	case abi.DepositBox.EventID(abi.FundsDeposited):
		deposit, err := c.decodeDeposit(log)
		if err != nil {
			return false, err
		}
		_, known := c.deposits[deposit.DepositHash]
		if !known {
			c.order = append(c.order, deposit.DepositHash)
		}
		c.deposits[deposit.DepositHash] = deposit
		return !known, nil
	case abi.DepositBox.EventID(abi.TokensBridged):
		var event abi.TokensBridgedEvent
		if err := c.depositBox.UnpackLog(&event, abi.TokensBridged, log); err != nil {
			return false, fmt.Errorf("can't decode tokens bridged event: %w", err)
		}
		c.bridged = append(c.bridged, &TokensBridged{
			L2Token:         event.L2Token,
			Amount:          event.NumberOfTokensBridged,
			TransactionHash: log.TxHash,
			BlockNumber:     log.BlockNumber,
		})
	}
	return false, nil
}

func (c *L2Client) decodeDeposit(log *types.Log) (*entity.Deposit, error) {
	var event abi.FundsDepositedEvent
	if err := c.depositBox.UnpackLog(&event, abi.FundsDeposited, log); err != nil {
		return nil, fmt.Errorf("can't decode deposit event: %w", err)
	}
	deposit := &entity.Deposit{
		ChainID:            event.ChainID.Uint64(),
		DepositID:          event.DepositID,
		L1Recipient:        event.L1Recipient,
		L2Sender:           event.L2Sender,
		L1Token:            event.L1Token,
		L2Token:            event.L2Token,
		Amount:             event.Amount,
		SlowRelayFeePct:    event.SlowRelayFeePct,
		InstantRelayFeePct: event.InstantRelayFeePct,
		QuoteTimestamp:     uint32(event.QuoteTimestamp),
		DepositContract:    log.Address,
		BlockNumber:        log.BlockNumber,
		TransactionHash:    log.TxHash,
	}
	deposit.DepositHash = abi.DepositHash(ToDepositData(deposit))
	return deposit, nil
}

// GetDepositEvents scans [from, to] for deposits without touching the snapshot.
func (c *L2Client) GetDepositEvents(ctx context.Context, from, to uint64) ([]*entity.Deposit, error) {
	var res []*entity.Deposit
	for _, r := range SplitBlockRange(from, to, c.opts.MaxBlockRangeSize) {
		logs, err := c.depositBox.FilterEvents(ctx, abi.FundsDeposited, r.From, r.To)
		if err != nil {
			return nil, err
		}
		for i := range logs {
			deposit, err := c.decodeDeposit(&logs[i])
			if err != nil {
				return nil, err
			}
			res = append(res, deposit)
		}
	}
	return res, nil
}

func (c *L2Client) GetDepositByHash(hash common.Hash) *entity.Deposit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deposits[hash]
}

func (c *L2Client) GetAllDeposits() []*entity.Deposit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]*entity.Deposit, 0, len(c.order))
	for _, hash := range c.order {
		res = append(res, c.deposits[hash])
	}
	return res
}

func (c *L2Client) GetAllDepositsForL1Token(l1Token common.Address) []*entity.Deposit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var res []*entity.Deposit
	for _, hash := range c.order {
		if d := c.deposits[hash]; d.L1Token == l1Token {
			res = append(res, d)
		}
	}
	return res
}

func (c *L2Client) TokensBridgedTransactions() []*TokensBridged {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*TokensBridged(nil), c.bridged...)
}

func (c *L2Client) TokenBalance(ctx context.Context, l2Token common.Address) (*big.Int, error) {
	return contract.NewERC20(c.client, l2Token).BalanceOf(ctx, c.opts.DepositBox)
}

func (c *L2Client) CanBridge(ctx context.Context, l2Token common.Address) (bool, error) {
	return c.depositBox.CanBridge(ctx, l2Token)
}

func (c *L2Client) BridgeTokensTx(l2Token common.Address) (*entity.Transaction, error) {
	data, err := c.depositBox.BridgeTokensData(l2Token)
	if err != nil {
		return nil, err
	}
	return &entity.Transaction{Target: c.opts.DepositBox, Data: data}, nil
}
