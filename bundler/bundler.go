package bundler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/entity"
	"github.com/omni/insured-bridge-relayer/logging"
)

var ErrTransactionReverted = errors.New("transaction reverted")

type Submitter interface {
	Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (*entity.ExecutedTransaction, error)
	WaitMined(ctx context.Context, tx *entity.ExecutedTransaction) (*types.Receipt, error)
}

// Bundler queues transactions and submits them grouped by target contract.
// Groups of several transactions are combined into one multicall(bytes[]) call,
// which the target contract is expected to implement.
type Bundler struct {
	logger    logging.Logger
	submitter Submitter
	multicall bool
	repo      entity.TransactionsRepo

	mu        sync.Mutex
	queue     []*entity.Transaction
	submitted []*entity.ExecutedTransaction
}

func NewBundler(logger logging.Logger, submitter Submitter, multicall bool) *Bundler {
	return &Bundler{
		logger:    logger,
		submitter: submitter,
		multicall: multicall,
	}
}

// WithJournal records every submitted transaction and its outcome in repo.
func (b *Bundler) WithJournal(repo entity.TransactionsRepo) *Bundler {
	b.repo = repo
	return b
}

func (b *Bundler) Enqueue(tx *entity.Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, tx)
}

func (b *Bundler) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Send submits all queued transactions. The queue is cleared even when some submissions fail,
// all failures are returned together.
func (b *Bundler) Send(ctx context.Context) error {
	b.mu.Lock()
	queue := b.queue
	b.queue = nil
	b.mu.Unlock()

	if len(queue) == 0 {
		return nil
	}

	var result *multierror.Error
	for _, group := range groupByTarget(queue) {
		if len(group) == 1 || !b.multicall || hasValue(group) {
			result = multierror.Append(result, b.sendEach(ctx, group))
			continue
		}
		if err := b.sendMulticall(ctx, group); err != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"target": group[0].Target,
				"count":  len(group),
			}).Warn("multicall failed, sending transactions one by one")
			result = multierror.Append(result, b.sendEach(ctx, group))
		}
	}
	return result.ErrorOrNil()
}

func (b *Bundler) sendEach(ctx context.Context, group []*entity.Transaction) error {
	var result *multierror.Error
	for _, tx := range group {
		executed, err := b.submitter.Submit(ctx, tx.Target, tx.Data, tx.Value)
		if err != nil {
			TransactionsSent.WithLabelValues("single", "failed").Inc()
			b.logger.WithError(err).WithFields(tx.Fields).Error(fmt.Sprintf("can't send transaction: %s", tx.Message))
			result = multierror.Append(result, fmt.Errorf("%s: %w", tx.Message, err))
			continue
		}
		TransactionsSent.WithLabelValues("single", "sent").Inc()
		executed.Message = tx.Message
		b.track(ctx, executed)
		b.logger.WithFields(tx.Fields).WithField("tx_hash", executed.Hash).Log(tx.Level, tx.Message)
	}
	return result.ErrorOrNil()
}

func (b *Bundler) sendMulticall(ctx context.Context, group []*entity.Transaction) error {
	calls := make([][]byte, len(group))
	messages := make([]string, len(group))
	for i, tx := range group {
		calls[i] = tx.Data
		messages[i] = tx.Message
	}
	data, err := abi.Multicall.Pack("multicall", calls)
	if err != nil {
		return fmt.Errorf("can't encode multicall: %w", err)
	}
	executed, err := b.submitter.Submit(ctx, group[0].Target, data, nil)
	if err != nil {
		TransactionsSent.WithLabelValues("multicall", "failed").Inc()
		return err
	}
	TransactionsSent.WithLabelValues("multicall", "sent").Inc()
	executed.Message = fmt.Sprintf("Multicall batch of %d transactions", len(group))
	executed.Bundled = messages
	b.track(ctx, executed)

	for _, tx := range group {
		b.logger.WithFields(tx.Fields).WithField("tx_hash", executed.Hash).Log(tx.Level, tx.Message)
	}
	return nil
}

func (b *Bundler) track(ctx context.Context, tx *entity.ExecutedTransaction) {
	b.mu.Lock()
	b.submitted = append(b.submitted, tx)
	b.mu.Unlock()

	b.journal(ctx, tx, nil)
}

// WaitForMine waits for every transaction submitted since the previous call.
// Reverted or unconfirmed transactions are reported as errors, the submitted set is cleared regardless.
func (b *Bundler) WaitForMine(ctx context.Context) ([]*types.Receipt, error) {
	b.mu.Lock()
	submitted := b.submitted
	b.submitted = nil
	b.mu.Unlock()

	var result *multierror.Error
	receipts := make([]*types.Receipt, 0, len(submitted))
	for _, tx := range submitted {
		logger := b.logger.WithFields(logrus.Fields{
			"tx_hash": tx.Hash,
			"nonce":   tx.Nonce,
			"target":  tx.Target,
		})
		receipt, err := b.submitter.WaitMined(ctx, tx)
		if err != nil {
			logger.WithError(err).Error("can't wait for transaction to be mined")
			result = multierror.Append(result, fmt.Errorf("%s: %w", tx.Hash, err))
			continue
		}
		receipts = append(receipts, receipt)
		b.journal(ctx, tx, receipt)
		if receipt.Status != types.ReceiptStatusSuccessful {
			logger.WithField("block_number", receipt.BlockNumber).Error("transaction reverted")
			result = multierror.Append(result, fmt.Errorf("%s: %w", tx.Hash, ErrTransactionReverted))
			continue
		}
		logger.WithField("block_number", receipt.BlockNumber).Info("transaction mined")
	}
	return receipts, result.ErrorOrNil()
}

func (b *Bundler) journal(ctx context.Context, tx *entity.ExecutedTransaction, receipt *types.Receipt) {
	if b.repo == nil {
		return
	}
	record := &entity.TransactionRecord{
		ChainID:         tx.ChainID,
		TransactionHash: tx.Hash,
		Sender:          tx.From,
		Target:          tx.Target,
		Nonce:           tx.Nonce,
		Message:         tx.Message,
	}
	if receipt != nil {
		status := receipt.Status == types.ReceiptStatusSuccessful
		record.Status = &status
		if receipt.BlockNumber != nil {
			blockNumber := receipt.BlockNumber.Uint64()
			record.BlockNumber = &blockNumber
		}
		record.GasUsed = &receipt.GasUsed
	}
	if err := b.repo.Ensure(ctx, record); err != nil {
		b.logger.WithError(err).WithField("tx_hash", tx.Hash).Warn("can't journal transaction")
	}
}

func groupByTarget(txs []*entity.Transaction) [][]*entity.Transaction {
	index := make(map[common.Address]int)
	var groups [][]*entity.Transaction
	for _, tx := range txs {
		i, ok := index[tx.Target]
		if !ok {
			i = len(groups)
			index[tx.Target] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], tx)
	}
	return groups
}

func hasValue(txs []*entity.Transaction) bool {
	for _, tx := range txs {
		if tx.Value != nil && tx.Value.Sign() > 0 {
			return true
		}
	}
	return false
}
