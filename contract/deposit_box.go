package contract

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/ethclient"
)

type DepositBox struct {
	*Contract
}

func NewDepositBox(client ethclient.Client, addr common.Address) *DepositBox {
	return &DepositBox{NewContract(client, addr, abi.DepositBox)}
}

func (c *DepositBox) CanBridge(ctx context.Context, l2Token common.Address) (bool, error) {
	return c.CallBool(ctx, "canBridge", l2Token)
}

func (c *DepositBox) BridgeTokensData(l2Token common.Address) ([]byte, error) {
	return c.Pack("bridgeTokens", l2Token, uint32(0))
}
