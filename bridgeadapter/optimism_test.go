package bridgeadapter_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/omni/insured-bridge-relayer/bridgeadapter"
	"github.com/omni/insured-bridge-relayer/config"
	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/utils"
)

var (
	l2Messenger    = common.HexToAddress("0x4200000000000000000000000000000000000007")
	addressManager = common.HexToAddress("0xE0")
	l1Messenger    = common.HexToAddress("0xE1")
	scc            = common.HexToAddress("0xE2")
	account        = common.HexToAddress("0xE3")
)

type fakeProver struct {
	proof *abi.L2MessageInclusionProof
	err   error
	block uint64
}

func (p *fakeProver) MessageProof(_ context.Context, l2Block uint64, _ []byte) (*abi.L2MessageInclusionProof, error) {
	p.block = l2Block
	return p.proof, p.err
}

func testProof() *abi.L2MessageInclusionProof {
	return &abi.L2MessageInclusionProof{
		StateRoot: common.HexToHash("0x01"),
		StateRootBatchHeader: abi.ChainBatchHeader{
			BatchIndex:        big.NewInt(1),
			BatchRoot:         common.HexToHash("0x02"),
			BatchSize:         big.NewInt(1),
			PrevTotalElements: big.NewInt(9),
			ExtraData:         []byte{},
		},
		StateRootProof: abi.ChainInclusionProof{
			Index:    new(big.Int),
			Siblings: []common.Hash{},
		},
		StateTrieWitness:   []byte{0xc0},
		StorageTrieWitness: []byte{0xc0},
	}
}

func sentMessageLog(from common.Address) *types.Log {
	msg := bridgeadapter.EncodeCrossDomainMessage(common.HexToAddress("0xF1"), common.HexToAddress("0xF2"), []byte{0xde, 0xad}, big.NewInt(42))
	return eventLog(abi.Optimism, from, 10, abi.SentMessage, nil, msg)
}

func TestCrossDomainMessage(t *testing.T) {
	t.Parallel()

	calldata := bridgeadapter.EncodeCrossDomainMessage(common.HexToAddress("0xF1"), common.HexToAddress("0xF2"), []byte{0xde, 0xad}, big.NewInt(42))
	require.Equal(t, crypto.Keccak256([]byte("relayMessage(address,address,bytes,uint256)"))[:4], calldata[:4])

	msg, err := bridgeadapter.DecodeCrossDomainMessage(calldata)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xF1"), msg.Target)
	require.Equal(t, common.HexToAddress("0xF2"), msg.Sender)
	require.Equal(t, []byte{0xde, 0xad}, msg.Message)
	require.Equal(t, "42", msg.Nonce.String())
	require.Equal(t, calldata, msg.Calldata)

	_, err = bridgeadapter.DecodeCrossDomainMessage([]byte{1, 2})
	require.ErrorIs(t, err, bridgeadapter.ErrInvalidMessage)
	_, err = bridgeadapter.DecodeCrossDomainMessage(calldata[:40])
	require.ErrorIs(t, err, bridgeadapter.ErrInvalidMessage)
}

func TestMerkleProof(t *testing.T) {
	t.Parallel()

	a, b, c := common.HexToHash("0x0a"), common.HexToHash("0x0b"), common.HexToHash("0x0c")

	root, siblings := bridgeadapter.MerkleProof([]common.Hash{a}, 0)
	require.Equal(t, a, root)
	require.Empty(t, siblings)

	root, siblings = bridgeadapter.MerkleProof([]common.Hash{a, b}, 1)
	require.Equal(t, crypto.Keccak256Hash(a[:], b[:]), root)
	require.Equal(t, []common.Hash{a}, siblings)

	empty := crypto.Keccak256Hash(make([]byte, 32))
	expected := crypto.Keccak256Hash(
		crypto.Keccak256(a[:], b[:]),
		crypto.Keccak256(c[:], empty[:]),
	)
	leaves := []common.Hash{a, b, c}
	for i, leaf := range leaves {
		root, siblings = bridgeadapter.MerkleProof(leaves, i)
		require.Equal(t, expected, root)
		require.Len(t, siblings, 2)
		require.True(t, bridgeadapter.VerifyMerkleProof(root, leaf, i, siblings))
		require.False(t, bridgeadapter.VerifyMerkleProof(root, leaf, (i+1)%3, siblings))
	}
}

func newOptimism(t *testing.T, logs []*types.Log, prover bridgeadapter.InclusionProver, relayable bool) (*bridgeadapter.Optimism, *fakeClient) {
	t.Helper()

	l1, l2 := newFakeClient(1000), newFakeClient(1000)
	l2.receipts[l2TxHash] = &types.Receipt{TxHash: l2TxHash, BlockNumber: big.NewInt(10), Logs: logs}
	if relayable {
		l1.handle(l1Messenger, abi.Optimism, "relayMessage", func(ethereum.CallMsg) ([]byte, error) {
			return nil, nil
		})
	}
	adapter := bridgeadapter.NewOptimism(logrus.New(), l1, l2, account, config.OptimismAdapterConfig{
		L1Messenger:          l1Messenger,
		StateCommitmentChain: scc,
	}, prover)
	require.NoError(t, adapter.Initialize(context.Background()))
	return adapter, l1
}

func TestOptimism_ConstructFinalizationTransaction(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name      string
		Logs      []*types.Log
		Proof     *abi.L2MessageInclusionProof
		ProofErr  error
		Relayable bool
		Finalizes bool
		Err       error
	}{
		{
			Name: "no sent message",
			Err:  bridgeadapter.ErrUnexpectedMessageCount,
		},
		{
			Name: "two sent messages",
			Logs: []*types.Log{sentMessageLog(l2Messenger), sentMessageLog(l2Messenger)},
			Err:  bridgeadapter.ErrUnexpectedMessageCount,
		},
		{
			Name: "sent message from another contract",
			Logs: []*types.Log{sentMessageLog(common.HexToAddress("0x99"))},
			Err:  bridgeadapter.ErrUnexpectedMessageCount,
		},
		{
			Name: "state batch is not appended yet",
			Logs: []*types.Log{sentMessageLog(l2Messenger)},
		},
		{
			Name:     "proof failure",
			Logs:     []*types.Log{sentMessageLog(l2Messenger)},
			ProofErr: errors.New("rpc failure"),
		},
		{
			Name:  "message is still in the fraud proof window",
			Logs:  []*types.Log{sentMessageLog(l2Messenger)},
			Proof: testProof(),
		},
		{
			Name:      "finalizable withdrawal",
			Logs:      []*types.Log{sentMessageLog(l2Messenger)},
			Proof:     testProof(),
			Relayable: true,
			Finalizes: true,
		},
	} {
		t.Logf("Running sub-test %q", test.Name)

		prover := &fakeProver{proof: test.Proof, err: test.ProofErr}
		adapter, _ := newOptimism(t, test.Logs, prover, test.Relayable)
		res, err := adapter.ConstructFinalizationTransaction(context.Background(), l2TxHash)
		if test.Err != nil {
			require.ErrorIs(t, err, test.Err)
			require.True(t, utils.IsPermanent(err))
			continue
		}
		if test.ProofErr != nil {
			require.ErrorIs(t, err, test.ProofErr)
			require.False(t, utils.IsPermanent(err))
			continue
		}
		require.NoError(t, err)
		require.Equal(t, uint64(10), prover.block)
		if !test.Finalizes {
			require.Nil(t, res.Transaction)
			continue
		}
		require.Equal(t, l1Messenger, res.Transaction.Target)
		method, err := abi.Optimism.MethodById(res.Transaction.Data[:4])
		require.NoError(t, err)
		require.Equal(t, "relayMessage", method.Name)
		values, err := method.Inputs.Unpack(res.Transaction.Data[4:])
		require.NoError(t, err)
		require.Equal(t, common.HexToAddress("0xF1"), values[0])
		require.Equal(t, common.HexToAddress("0xF2"), values[1])
		require.Equal(t, "42", values[3].(*big.Int).String())
	}
}

func TestOptimism_SimulationFailureIsNotSkipped(t *testing.T) {
	t.Parallel()

	errTransport := errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")
	adapter, l1 := newOptimism(t, []*types.Log{sentMessageLog(l2Messenger)}, &fakeProver{proof: testProof()}, false)
	l1.handle(l1Messenger, abi.Optimism, "relayMessage", func(ethereum.CallMsg) ([]byte, error) {
		return nil, errTransport
	})

	res, err := adapter.ConstructFinalizationTransaction(context.Background(), l2TxHash)
	require.ErrorIs(t, err, errTransport)
	require.False(t, utils.IsPermanent(err))
	require.Nil(t, res)

	l1.handle(l1Messenger, abi.Optimism, "relayMessage", func(ethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("execution reverted: provided message could not be verified")
	})
	res, err = adapter.ConstructFinalizationTransaction(context.Background(), l2TxHash)
	require.NoError(t, err)
	require.Nil(t, res.Transaction)
}

func TestOptimism_InitializeResolvesAddresses(t *testing.T) {
	t.Parallel()

	l1 := newFakeClient(1000)
	l1.handle(addressManager, abi.Optimism, "getAddress", func(msg ethereum.CallMsg) ([]byte, error) {
		args, err := abi.Optimism.Methods["getAddress"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		res := map[string]common.Address{
			"Proxy__OVM_L1CrossDomainMessenger": l1Messenger,
			"StateCommitmentChain":              scc,
		}[args[0].(string)]
		return abi.Optimism.Methods["getAddress"].Outputs.Pack(res)
	})
	l1.handle(l1Messenger, abi.Optimism, "relayMessage", func(ethereum.CallMsg) ([]byte, error) {
		return nil, nil
	})
	l2 := newFakeClient(1000)
	l2.receipts[l2TxHash] = &types.Receipt{TxHash: l2TxHash, BlockNumber: big.NewInt(10), Logs: []*types.Log{sentMessageLog(l2Messenger)}}

	adapter := bridgeadapter.NewOptimism(logrus.New(), l1, l2, account, config.OptimismAdapterConfig{AddressManager: addressManager}, &fakeProver{proof: testProof()})
	require.NoError(t, adapter.Initialize(context.Background()))

	res, err := adapter.ConstructFinalizationTransaction(context.Background(), l2TxHash)
	require.NoError(t, err)
	require.Equal(t, l1Messenger, res.Transaction.Target)

	missing := bridgeadapter.NewOptimism(logrus.New(), l1, l2, account, config.OptimismAdapterConfig{}, nil)
	require.ErrorIs(t, missing.Initialize(context.Background()), config.ErrInvalidConfig)
}

func TestSCCProver_MessageProof(t *testing.T) {
	t.Parallel()

	l1, l2 := newFakeClient(500), newFakeClient(30)
	roots := []common.Hash{common.HexToHash("0x15"), common.HexToHash("0x16"), common.HexToHash("0x17")}
	for i, root := range roots {
		l2.roots[uint64(5+i)] = root
	}
	batchRoot, _ := bridgeadapter.MerkleProof(roots, 0)
	l1.logs = append(l1.logs, *eventLog(abi.Optimism, scc, 200, abi.StateBatchAppended,
		[]common.Hash{common.BigToHash(big.NewInt(3))},
		batchRoot, big.NewInt(3), big.NewInt(4), []byte{0x01},
	))
	l2.proof = &gethclient.AccountResult{
		AccountProof: []string{"0x0102", "0x0304"},
		StorageProof: []gethclient.StorageResult{{Proof: []string{"0x05"}}},
	}

	prover := bridgeadapter.NewSCCProver(logrus.New(), l1, l2, scc, 100)

	proof, err := prover.MessageProof(context.Background(), 6, []byte{0x01})
	require.NoError(t, err)
	require.NotNil(t, proof)
	require.Equal(t, roots[1], proof.StateRoot)
	require.Equal(t, "3", proof.StateRootBatchHeader.BatchIndex.String())
	require.Equal(t, batchRoot, proof.StateRootBatchHeader.BatchRoot)
	require.Equal(t, "1", proof.StateRootProof.Index.String())
	require.True(t, bridgeadapter.VerifyMerkleProof(batchRoot, roots[1], 1, proof.StateRootProof.Siblings))

	var witness [][]byte
	require.NoError(t, rlp.DecodeBytes(proof.StateTrieWitness, &witness))
	require.Equal(t, [][]byte{{0x01, 0x02}, {0x03, 0x04}}, witness)
	require.NoError(t, rlp.DecodeBytes(proof.StorageTrieWitness, &witness))
	require.Equal(t, [][]byte{{0x05}}, witness)

	proof, err = prover.MessageProof(context.Background(), 20, []byte{0x01})
	require.NoError(t, err)
	require.Nil(t, proof)
}

func TestSCCProver_RootMismatch(t *testing.T) {
	t.Parallel()

	l1, l2 := newFakeClient(500), newFakeClient(30)
	l1.logs = append(l1.logs, *eventLog(abi.Optimism, scc, 200, abi.StateBatchAppended,
		[]common.Hash{common.BigToHash(big.NewInt(3))},
		common.HexToHash("0xBAD"), big.NewInt(2), big.NewInt(4), []byte{},
	))
	prover := bridgeadapter.NewSCCProver(logrus.New(), l1, l2, scc, 100)
	_, err := prover.MessageProof(context.Background(), 5, []byte{0x01})
	require.ErrorIs(t, err, bridgeadapter.ErrStateRootMismatch)
}
