package entity

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Transaction is an action queued for submission, not yet signed or sent.
type Transaction struct {
	Target  common.Address
	Data    []byte
	Value   *big.Int
	Message string
	Level   logrus.Level
	Fields  logrus.Fields
}

// ExecutedTransaction is a transaction accepted into the mempool, awaiting its receipt.
type ExecutedTransaction struct {
	Hash    common.Hash
	Nonce   uint64
	From    common.Address
	Target  common.Address
	ChainID string
	Message string
	// Bundled holds the messages of transactions combined in a single multicall.
	Bundled []string
}

type TransactionRecord struct {
	ChainID         string         `db:"chain_id"`
	TransactionHash common.Hash    `db:"transaction_hash"`
	Sender          common.Address `db:"sender"`
	Target          common.Address `db:"target"`
	Nonce           uint64         `db:"nonce"`
	Message         string         `db:"message"`
	BlockNumber     *uint64        `db:"block_number"`
	Status          *bool          `db:"status"`
	GasUsed         *uint64        `db:"gas_used"`
	CreatedAt       *time.Time     `db:"created_at"`
	UpdatedAt       *time.Time     `db:"updated_at"`
}

type TransactionsRepo interface {
	Ensure(ctx context.Context, tx *TransactionRecord) error
	GetByHash(ctx context.Context, hash common.Hash) (*TransactionRecord, error)
	FindByChainID(ctx context.Context, chainID string, limit uint64) ([]*TransactionRecord, error)
}
