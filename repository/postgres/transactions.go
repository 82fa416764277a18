package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/insured-bridge-relayer/db"
	"github.com/omni/insured-bridge-relayer/entity"
)

type transactionsRepo basePostgresRepo

func NewTransactionsRepo(table string, db *db.DB) entity.TransactionsRepo {
	return (*transactionsRepo)(newBasePostgresRepo(table, db))
}

// Ensure inserts the transaction, or fills in its receipt fields if it is already known.
func (r *transactionsRepo) Ensure(ctx context.Context, tx *entity.TransactionRecord) error {
	q, args, err := sq.Insert(r.table).
		Columns("chain_id", "transaction_hash", "sender", "target", "nonce", "message", "block_number", "status", "gas_used").
		Values(tx.ChainID, tx.TransactionHash, tx.Sender, tx.Target, tx.Nonce, tx.Message, tx.BlockNumber, tx.Status, tx.GasUsed).
		Suffix(fmt.Sprintf("ON CONFLICT (transaction_hash) DO UPDATE SET updated_at = NOW(), "+
			"block_number = COALESCE(EXCLUDED.block_number, %[1]s.block_number), "+
			"status = COALESCE(EXCLUDED.status, %[1]s.status), "+
			"gas_used = COALESCE(EXCLUDED.gas_used, %[1]s.gas_used)", r.table)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert transaction: %w", err)
	}
	return nil
}

func (r *transactionsRepo) GetByHash(ctx context.Context, hash common.Hash) (*entity.TransactionRecord, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"transaction_hash": hash}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	tx := new(entity.TransactionRecord)
	err = r.db.GetContext(ctx, tx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get transaction: %w", err)
	}
	return tx, nil
}

func (r *transactionsRepo) FindByChainID(ctx context.Context, chainID string, limit uint64) ([]*entity.TransactionRecord, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"chain_id": chainID}).
		OrderBy("created_at DESC").
		Limit(limit).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	txs := make([]*entity.TransactionRecord, 0, limit)
	err = r.db.SelectContext(ctx, &txs, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't select transactions: %w", err)
	}
	return txs, nil
}
