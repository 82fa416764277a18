package contract

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/ethclient"
)

type Contract struct {
	Address common.Address
	client  ethclient.Client
	abi     abi.ABI
}

func NewContract(client ethclient.Client, addr common.Address, abi abi.ABI) *Contract {
	return &Contract{addr, client, abi}
}

func (c *Contract) ABI() abi.ABI {
	return c.abi
}

func (c *Contract) AllEvents() map[string]bool {
	return c.abi.AllEvents()
}

func (c *Contract) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot encode abi calldata for %s: %w", method, err)
	}
	return data, nil
}

func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	data, err := c.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	res, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.Address,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot call %s(...): %w", method, err)
	}
	return res, nil
}

func (c *Contract) CallAtBlock(ctx context.Context, block uint64, method string, args ...interface{}) ([]byte, error) {
	data, err := c.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	res, err := c.client.CallContractAtBlock(ctx, ethereum.CallMsg{
		To:   &c.Address,
		Data: data,
	}, block)
	if err != nil {
		return nil, fmt.Errorf("cannot call %s(...) at block %d: %w", method, block, err)
	}
	return res, nil
}

// CallUnpack calls a view method and decodes its return values.
func (c *Contract) CallUnpack(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	res, err := c.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	values, err := c.abi.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s(...) result: %w", method, err)
	}
	return values, nil
}

func (c *Contract) CallBigInt(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	values, err := c.CallUnpack(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	res, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s(...) result type %T", method, values[0])
	}
	return res, nil
}

func (c *Contract) CallBool(ctx context.Context, method string, args ...interface{}) (bool, error) {
	values, err := c.CallUnpack(ctx, method, args...)
	if err != nil {
		return false, err
	}
	res, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected %s(...) result type %T", method, values[0])
	}
	return res, nil
}

func (c *Contract) CallAddress(ctx context.Context, method string, args ...interface{}) (common.Address, error) {
	values, err := c.CallUnpack(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	res, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s(...) result type %T", method, values[0])
	}
	return res, nil
}

// FilterEvents fetches logs of the named event emitted by the contract within [from, to].
// Extra topics filter indexed event arguments, starting from topic1.
func (c *Contract) FilterEvents(ctx context.Context, event string, from, to uint64, topics ...[]common.Hash) ([]types.Log, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.Address},
		Topics:    append([][]common.Hash{{c.abi.EventID(event)}}, topics...),
	}
	logs, err := c.client.FilterLogsSafe(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("can't fetch %s logs in range [%d, %d]: %w", event, from, to, err)
	}
	return logs, nil
}

func (c *Contract) UnpackLog(out interface{}, event string, log *types.Log) error {
	return c.abi.UnpackLog(out, event, log)
}

// FilterAnyEvents fetches logs of any of the named events emitted by the contract within [from, to],
// ordered by block number and log index.
func (c *Contract) FilterAnyEvents(ctx context.Context, events []string, from, to uint64) ([]types.Log, error) {
	ids := make([]common.Hash, len(events))
	for i, event := range events {
		ids[i] = c.abi.EventID(event)
	}
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.Address},
		Topics:    [][]common.Hash{ids},
	}
	logs, err := c.client.FilterLogsSafe(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("can't fetch logs in range [%d, %d]: %w", from, to, err)
	}
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	return logs, nil
}
