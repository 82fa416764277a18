package bundler_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/omni/insured-bridge-relayer/bundler"
	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/entity"
)

var (
	poolA = common.HexToAddress("0x0a")
	poolB = common.HexToAddress("0x0b")
)

type submission struct {
	To   common.Address
	Data []byte
}

type fakeSubmitter struct {
	mu          sync.Mutex
	failTargets map[common.Address]bool
	failData    map[string]bool
	reverted    map[common.Hash]bool
	sent        []submission
	nonce       uint64
}

func (s *fakeSubmitter) Submit(_ context.Context, to common.Address, data []byte, _ *big.Int) (*entity.ExecutedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTargets[to] && isMulticall(data) {
		return nil, errors.New("execution reverted")
	}
	if s.failData[string(data)] {
		return nil, errors.New("execution reverted")
	}
	s.sent = append(s.sent, submission{To: to, Data: data})
	s.nonce++
	return &entity.ExecutedTransaction{
		Hash:    common.BigToHash(new(big.Int).SetUint64(s.nonce)),
		Nonce:   s.nonce,
		Target:  to,
		ChainID: "1",
	}, nil
}

func (s *fakeSubmitter) WaitMined(_ context.Context, tx *entity.ExecutedTransaction) (*types.Receipt, error) {
	status := types.ReceiptStatusSuccessful
	if s.reverted[tx.Hash] {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{TxHash: tx.Hash, Status: status, BlockNumber: big.NewInt(10), GasUsed: 21000}, nil
}

func isMulticall(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], abi.Multicall.Methods["multicall"].ID)
}

type fakeRepo struct {
	entity.TransactionsRepo

	mu      sync.Mutex
	records []*entity.TransactionRecord
}

func (r *fakeRepo) Ensure(_ context.Context, tx *entity.TransactionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, tx)
	return nil
}

func newTx(target common.Address, data string) *entity.Transaction {
	return &entity.Transaction{
		Target:  target,
		Data:    []byte(data),
		Message: "tx " + data,
		Level:   logrus.InfoLevel,
		Fields:  logrus.Fields{"data": data},
	}
}

func TestBundler_Send(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name          string
		Multicall     bool
		FailTargets   map[common.Address]bool
		FailData      map[string]bool
		Txs           []*entity.Transaction
		ExpectedSends int
		ExpectedMulti int
		ExpectedError bool
	}{
		{
			Name:          "empty queue",
			Multicall:     true,
			ExpectedSends: 0,
		},
		{
			Name:          "single transaction is sent directly",
			Multicall:     true,
			Txs:           []*entity.Transaction{newTx(poolA, "1")},
			ExpectedSends: 1,
		},
		{
			Name:          "same target is combined",
			Multicall:     true,
			Txs:           []*entity.Transaction{newTx(poolA, "1"), newTx(poolA, "2"), newTx(poolA, "3")},
			ExpectedSends: 1,
			ExpectedMulti: 1,
		},
		{
			Name:          "one combined call per target",
			Multicall:     true,
			Txs:           []*entity.Transaction{newTx(poolA, "1"), newTx(poolB, "2"), newTx(poolA, "3"), newTx(poolB, "4")},
			ExpectedSends: 2,
			ExpectedMulti: 2,
		},
		{
			Name:          "failed multicall falls back to individual sends",
			Multicall:     true,
			FailTargets:   map[common.Address]bool{poolA: true},
			Txs:           []*entity.Transaction{newTx(poolA, "1"), newTx(poolA, "2"), newTx(poolA, "3")},
			ExpectedSends: 3,
		},
		{
			Name:          "partial failures are collected",
			Multicall:     true,
			FailTargets:   map[common.Address]bool{poolA: true},
			FailData:      map[string]bool{"2": true},
			Txs:           []*entity.Transaction{newTx(poolA, "1"), newTx(poolA, "2"), newTx(poolA, "3")},
			ExpectedSends: 2,
			ExpectedError: true,
		},
		{
			Name:          "multicall disabled",
			Multicall:     false,
			Txs:           []*entity.Transaction{newTx(poolA, "1"), newTx(poolA, "2")},
			ExpectedSends: 2,
		},
	} {
		t.Logf("Running sub-test %q", test.Name)

		submitter := &fakeSubmitter{failTargets: test.FailTargets, failData: test.FailData}
		b := bundler.NewBundler(logrus.New(), submitter, test.Multicall)
		for _, tx := range test.Txs {
			b.Enqueue(tx)
		}
		err := b.Send(context.Background())
		if test.ExpectedError {
			require.Error(t, err)
		} else {
			require.NoError(t, err)
		}
		require.Zero(t, b.Pending())
		require.Len(t, submitter.sent, test.ExpectedSends)
		multi := 0
		for _, s := range submitter.sent {
			if isMulticall(s.Data) {
				multi++
			}
		}
		require.Equal(t, test.ExpectedMulti, multi)

		receipts, err := b.WaitForMine(context.Background())
		require.NoError(t, err)
		require.Len(t, receipts, test.ExpectedSends)
	}
}

func TestBundler_MulticallPayload(t *testing.T) {
	t.Parallel()

	submitter := &fakeSubmitter{}
	b := bundler.NewBundler(logrus.New(), submitter, true)
	b.Enqueue(newTx(poolA, "first"))
	b.Enqueue(newTx(poolA, "second"))
	require.NoError(t, b.Send(context.Background()))

	require.Len(t, submitter.sent, 1)
	values, err := abi.Multicall.Methods["multicall"].Inputs.Unpack(submitter.sent[0].Data[4:])
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("first"), []byte("second")}, values[0])
}

func TestBundler_LogsMessages(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	b := bundler.NewBundler(logger, &fakeSubmitter{}, true)
	tx := newTx(poolA, "1")
	tx.Message = "Slow relaying deposit"
	tx.Level = logrus.WarnLevel
	b.Enqueue(tx)
	require.NoError(t, b.Send(context.Background()))

	entry := hook.LastEntry()
	require.Equal(t, "Slow relaying deposit", entry.Message)
	require.Equal(t, logrus.WarnLevel, entry.Level)
	require.Equal(t, "1", entry.Data["data"])
	require.NotNil(t, entry.Data["tx_hash"])
}

func TestBundler_WaitForMine(t *testing.T) {
	t.Parallel()

	submitter := &fakeSubmitter{reverted: map[common.Hash]bool{common.BigToHash(big.NewInt(2)): true}}
	repo := &fakeRepo{}
	b := bundler.NewBundler(logrus.New(), submitter, true).WithJournal(repo)
	b.Enqueue(newTx(poolA, "1"))
	b.Enqueue(newTx(poolB, "2"))
	require.NoError(t, b.Send(context.Background()))

	receipts, err := b.WaitForMine(context.Background())
	require.ErrorIs(t, err, bundler.ErrTransactionReverted)
	require.Len(t, receipts, 2)

	// the submitted set is cleared even after a revert
	receipts, err = b.WaitForMine(context.Background())
	require.NoError(t, err)
	require.Empty(t, receipts)

	require.Len(t, repo.records, 4)
	require.Nil(t, repo.records[0].Status)
	last := repo.records[3]
	require.NotNil(t, last.Status)
	require.False(t, *last.Status)
	require.Equal(t, uint64(10), *last.BlockNumber)
	require.Equal(t, "tx 2", last.Message)
}
