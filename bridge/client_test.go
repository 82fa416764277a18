package bridge_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/ethclient"
)

type callHandler func(msg ethereum.CallMsg, block *uint64) ([]byte, error)

// fakeClient serves logs, headers with a fixed block time and contract calls matched by method selector.
type fakeClient struct {
	ethclient.Client

	mu         sync.Mutex
	head       uint64
	blockTime  uint64
	logs       []types.Log
	calls      map[common.Address]map[string]callHandler
	logQueries int
}

func newFakeClient(head uint64) *fakeClient {
	return &fakeClient{head: head, blockTime: 12, calls: make(map[common.Address]map[string]callHandler)}
}

func (c *fakeClient) ChainID() string {
	return "1"
}

func (c *fakeClient) BlockNumber(context.Context) (uint64, error) {
	return c.head, nil
}

func (c *fakeClient) header(n uint64) *types.Header {
	return &types.Header{Number: new(big.Int).SetUint64(n), Time: 1000 + n*c.blockTime}
}

func (c *fakeClient) HeaderByNumber(_ context.Context, n uint64) (*types.Header, error) {
	if n > c.head {
		return nil, ethereum.NotFound
	}
	return c.header(n), nil
}

func (c *fakeClient) LatestHeader(context.Context) (*types.Header, error) {
	return c.header(c.head), nil
}

func (c *fakeClient) FilterLogsSafe(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logQueries++
	var res []types.Log
	for _, log := range c.logs {
		if log.BlockNumber < q.FromBlock.Uint64() || log.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if !containsAddress(q.Addresses, log.Address) || !matchTopics(q.Topics, log.Topics) {
			continue
		}
		res = append(res, log)
	}
	return res, nil
}

func (c *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return c.call(msg, nil)
}

func (c *fakeClient) CallContractAtBlock(_ context.Context, msg ethereum.CallMsg, n uint64) ([]byte, error) {
	return c.call(msg, &n)
}

func (c *fakeClient) call(msg ethereum.CallMsg, block *uint64) ([]byte, error) {
	handlers, ok := c.calls[*msg.To]
	if !ok {
		return nil, errors.New("no code at address")
	}
	handler, ok := handlers[string(msg.Data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return handler(msg, block)
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
	c.handle(addr, a, method, func(ethereum.CallMsg, *uint64) ([]byte, error) {
		return data, nil
	})
}

func (c *fakeClient) addLog(a abi.ABI, addr common.Address, block uint64, event string, indexed []common.Hash, data ...interface{}) {
	e := a.Events[event]
	packed, err := e.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(err)
	}
	c.logs = append(c.logs, types.Log{
		Address:     addr,
		Topics:      append([]common.Hash{e.ID}, indexed...),
		Data:        packed,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(len(c.logs) + 1))),
		Index:       uint(len(c.logs)),
	})
}

func containsAddress(addresses []common.Address, addr common.Address) bool {
	if len(addresses) == 0 {
		return true
	}
	for _, a := range addresses {
		if a == addr {
			return true
		}
	}
	return false
}

func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	for i, options := range filter {
		if len(options) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		found := false
		for _, o := range options {
			if bytes.Equal(o[:], topics[i][:]) {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}
