package txsender

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/omni/insured-bridge-relayer/entity"
	"github.com/omni/insured-bridge-relayer/ethclient"
	"github.com/omni/insured-bridge-relayer/logging"
	"github.com/omni/insured-bridge-relayer/utils"
)

var ErrInvalidChainID = errors.New("invalid chain id")

const gasLimitBufferPct = 120

// Sender signs and submits transactions from a single account on a single chain.
// Nonces are tracked locally between submissions and re-read from the node after a failure.
type Sender struct {
	logger       logging.Logger
	client       ethclient.Client
	key          *ecdsa.PrivateKey
	account      common.Address
	signer       types.Signer
	pollInterval time.Duration

	mu    sync.Mutex
	nonce *uint64
}

func NewSender(logger logging.Logger, client ethclient.Client, key *ecdsa.PrivateKey, account common.Address, pollInterval time.Duration) (*Sender, error) {
	chainID, ok := new(big.Int).SetString(client.ChainID(), 10)
	if !ok {
		return nil, fmt.Errorf("chain id %q: %w", client.ChainID(), ErrInvalidChainID)
	}
	return &Sender{
		logger:       logger.WithField("account", account),
		client:       client,
		key:          key,
		account:      account,
		signer:       types.NewLondonSigner(chainID),
		pollInterval: pollInterval,
	}, nil
}

func (s *Sender) Account() common.Address {
	return s.account
}

func (s *Sender) ChainID() string {
	return s.client.ChainID()
}

func (s *Sender) Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (*entity.ExecutedTransaction, error) {
	if value == nil {
		value = new(big.Int)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.buildTx(ctx, to, data, value)
	if err == nil {
		tx, err = types.SignTx(tx, s.signer, s.key)
	}
	if err == nil {
		err = s.client.SendTransaction(ctx, tx)
	}
	if err != nil {
		s.nonce = nil
		return nil, fmt.Errorf("can't submit transaction to %s: %w", to, err)
	}
	next := tx.Nonce() + 1
	s.nonce = &next

	s.logger.WithFields(logrus.Fields{
		"tx_hash":   tx.Hash(),
		"target":    to,
		"nonce":     tx.Nonce(),
		"gas_limit": tx.Gas(),
	}).Info("transaction sent")

	return &entity.ExecutedTransaction{
		Hash:    tx.Hash(),
		Nonce:   tx.Nonce(),
		From:    s.account,
		Target:  to,
		ChainID: s.client.ChainID(),
	}, nil
}

func (s *Sender) buildTx(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Transaction, error) {
	if s.nonce == nil {
		nonce, err := s.client.PendingNonceAt(ctx, s.account)
		if err != nil {
			return nil, fmt.Errorf("can't get nonce: %w", err)
		}
		s.nonce = &nonce
	}

	gas, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.account,
		To:    &to,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return nil, fmt.Errorf("can't estimate gas: %w", err)
	}
	gas = gas * gasLimitBufferPct / 100

	head, err := s.client.LatestHeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get latest header: %w", err)
	}
	if head.BaseFee == nil {
		gasPrice, err2 := s.client.SuggestGasPrice(ctx)
		if err2 != nil {
			return nil, fmt.Errorf("can't get gas price: %w", err2)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    *s.nonce,
			To:       &to,
			Value:    value,
			Gas:      gas,
			GasPrice: gasPrice,
			Data:     data,
		}), nil
	}

	tip, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get gas tip cap: %w", err)
	}
	feeCap := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return types.NewTx(&types.DynamicFeeTx{
		Nonce:     *s.nonce,
		To:        &to,
		Value:     value,
		Gas:       gas,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      data,
	}), nil
}

// WaitMined polls for the transaction receipt until it appears or ctx is done.
func (s *Sender) WaitMined(ctx context.Context, tx *entity.ExecutedTransaction) (*types.Receipt, error) {
	for {
		receipt, err := s.client.TransactionReceiptByHash(ctx, tx.Hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			s.logger.WithError(err).WithField("tx_hash", tx.Hash).Warn("can't get transaction receipt")
		}
		if utils.ContextSleep(ctx, s.pollInterval) == nil {
			return nil, fmt.Errorf("receipt of %s not found: %w", tx.Hash, ctx.Err())
		}
	}
}
