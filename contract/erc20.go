package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/ethclient"
)

type ERC20 struct {
	*Contract
}

func NewERC20(client ethclient.Client, addr common.Address) *ERC20 {
	return &ERC20{NewContract(client, addr, abi.ERC20)}
}

func (c *ERC20) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.CallBigInt(ctx, "balanceOf", account)
}

func (c *ERC20) Decimals(ctx context.Context) (uint8, error) {
	values, err := c.CallUnpack(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals() result type %T", values[0])
	}
	return decimals, nil
}

func (c *ERC20) Symbol(ctx context.Context) (string, error) {
	values, err := c.CallUnpack(ctx, "symbol")
	if err != nil {
		return "", err
	}
	symbol, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected symbol() result type %T", values[0])
	}
	return symbol, nil
}
