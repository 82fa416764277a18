package alerts

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
)

type Querier interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type DBAlertsProvider struct {
	db    Querier
	table string
}

func NewDBAlertsProvider(db Querier, table string) *DBAlertsProvider {
	return &DBAlertsProvider{
		db:    db,
		table: table,
	}
}

type StuckTransaction struct {
	ChainID         string      `db:"chain_id" json:"chain_id"`
	TransactionHash common.Hash `db:"transaction_hash" json:"tx_hash"`
	Nonce           uint64      `db:"nonce" json:"nonce,string"`
	Message         string      `db:"message" json:"message"`
	Age             int64       `db:"age" json:"_value,string"`
}

type FailedTransaction struct {
	ChainID         string      `db:"chain_id" json:"chain_id"`
	BlockNumber     uint64      `db:"block_number" json:"block_number,string"`
	TransactionHash common.Hash `db:"transaction_hash" json:"tx_hash"`
	Message         string      `db:"message" json:"message"`
	Age             int64       `db:"age" json:"_value,string"`
}

func (p *DBAlertsProvider) FindStuckTransactions(ctx context.Context, params *AlertJobParams) (interface{}, error) {
	q, args, err := sq.Select("chain_id", "transaction_hash", "nonce", "message", "EXTRACT(EPOCH FROM now() - created_at)::bigint as age").
		From(p.table).
		Where(sq.Eq{"status": nil}).
		Where("chain_id = ANY(?)", pq.Array(params.ChainIDs)).
		Where("created_at < now() - make_interval(secs => ?)", params.StuckAfter.Seconds()).
		OrderBy("created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := make([]StuckTransaction, 0, 5)
	err = p.db.SelectContext(ctx, &res, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't select stuck transactions: %w", err)
	}
	return res, nil
}

func (p *DBAlertsProvider) FindFailedTransactions(ctx context.Context, params *AlertJobParams) (interface{}, error) {
	q, args, err := sq.Select("chain_id", "block_number", "transaction_hash", "message", "EXTRACT(EPOCH FROM now() - created_at)::bigint as age").
		From(p.table).
		Where(sq.Eq{"status": false}).
		Where("chain_id = ANY(?)", pq.Array(params.ChainIDs)).
		Where("created_at > now() - make_interval(secs => ?)", params.LookBack.Seconds()).
		OrderBy("created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	res := make([]FailedTransaction, 0, 5)
	err = p.db.SelectContext(ctx, &res, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't select failed transactions: %w", err)
	}
	return res, nil
}
