package bridgeadapter_test

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"

	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/ethclient"
)

type callHandler func(msg ethereum.CallMsg) ([]byte, error)

type fakeClient struct {
	ethclient.Client

	head     uint64
	receipts map[common.Hash]*types.Receipt
	logs     []types.Log
	roots    map[uint64]common.Hash
	calls    map[common.Address]map[string]callHandler
	proof    *gethclient.AccountResult
}

func newFakeClient(head uint64) *fakeClient {
	return &fakeClient{
		head:     head,
		receipts: make(map[common.Hash]*types.Receipt),
		roots:    make(map[uint64]common.Hash),
		calls:    make(map[common.Address]map[string]callHandler),
	}
}

func (c *fakeClient) ChainID() string {
	return "1"
}

func (c *fakeClient) BlockNumber(context.Context) (uint64, error) {
	return c.head, nil
}

func (c *fakeClient) HeaderByNumber(_ context.Context, n uint64) (*types.Header, error) {
	if n > c.head {
		return nil, ethereum.NotFound
	}
	return &types.Header{Number: new(big.Int).SetUint64(n), Root: c.roots[n]}, nil
}

func (c *fakeClient) TransactionReceiptByHash(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if receipt, ok := c.receipts[hash]; ok {
		return receipt, nil
	}
	return nil, ethereum.NotFound
}

func (c *fakeClient) FilterLogsSafe(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var res []types.Log
	for _, log := range c.logs {
		if log.BlockNumber < q.FromBlock.Uint64() || log.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && q.Addresses[0] != log.Address {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && q.Topics[0][0] != log.Topics[0] {
			continue
		}
		res = append(res, log)
	}
	return res, nil
}

func (c *fakeClient) GetProof(context.Context, common.Address, []string, uint64) (*gethclient.AccountResult, error) {
	if c.proof == nil {
		return nil, errors.New("proofs are not available")
	}
	return c.proof, nil
}

func (c *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	handlers, ok := c.calls[*msg.To]
	if !ok {
		return nil, errors.New("no code at address")
	}
	handler, ok := handlers[string(msg.Data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return handler(msg)
}

func (c *fakeClient) handle(addr common.Address, a abi.ABI, method string, handler callHandler) {
	if c.calls[addr] == nil {
		c.calls[addr] = make(map[string]callHandler)
	}
	c.calls[addr][string(a.Methods[method].ID)] = handler
}

func (c *fakeClient) returns(addr common.Address, a abi.ABI, method string, values ...interface{}) {
	data, err := a.Methods[method].Outputs.Pack(values...)
	if err != nil {
		panic(err)
	}
	c.handle(addr, a, method, func(ethereum.CallMsg) ([]byte, error) {
		return data, nil
	})
}

func eventLog(a abi.ABI, addr common.Address, block uint64, event string, indexed []common.Hash, data ...interface{}) *types.Log {
	e := a.Events[event]
	packed, err := e.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(err)
	}
	return &types.Log{
		Address:     addr,
		Topics:      append([]common.Hash{e.ID}, indexed...),
		Data:        packed,
		BlockNumber: block,
	}
}
