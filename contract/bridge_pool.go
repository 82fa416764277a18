package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/ethclient"
)

type BridgePool struct {
	*Contract
}

func NewBridgePool(client ethclient.Client, addr common.Address) *BridgePool {
	return &BridgePool{NewContract(client, addr, abi.BridgePool)}
}

func (c *BridgePool) LiquidReserves(ctx context.Context) (*big.Int, error) {
	return c.CallBigInt(ctx, "liquidReserves")
}

// UtilizedReserves is signed on-chain, negative values are clamped to zero.
func (c *BridgePool) UtilizedReserves(ctx context.Context) (*big.Int, error) {
	res, err := c.CallBigInt(ctx, "utilizedReserves")
	if err != nil {
		return nil, err
	}
	if res.Sign() < 0 {
		return new(big.Int), nil
	}
	return res, nil
}

func (c *BridgePool) LiquidityUtilizationCurrent(ctx context.Context) (*big.Int, error) {
	return c.CallBigInt(ctx, "liquidityUtilizationCurrent")
}

func (c *BridgePool) CurrentTime(ctx context.Context) (uint64, error) {
	res, err := c.CallBigInt(ctx, "getCurrentTime")
	if err != nil {
		return 0, err
	}
	return res.Uint64(), nil
}

// LiquidityUtilizationsAtBlock returns pool utilization before and after relaying amount, at the given L1 block.
func (c *BridgePool) LiquidityUtilizationsAtBlock(ctx context.Context, amount *big.Int, block uint64) (*big.Int, *big.Int, error) {
	current, err := c.callBigIntAtBlock(ctx, block, "liquidityUtilizationCurrent")
	if err != nil {
		return nil, nil, err
	}
	postRelay, err := c.callBigIntAtBlock(ctx, block, "liquidityUtilizationPostRelay", amount)
	if err != nil {
		return nil, nil, err
	}
	return current, postRelay, nil
}

func (c *BridgePool) callBigIntAtBlock(ctx context.Context, block uint64, method string, args ...interface{}) (*big.Int, error) {
	res, err := c.CallAtBlock(ctx, block, method, args...)
	if err != nil {
		return nil, err
	}
	values, err := c.abi.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s(...) result: %w", method, err)
	}
	n, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s(...) result type %T", method, values[0])
	}
	return n, nil
}
