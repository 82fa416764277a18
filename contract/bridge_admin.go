package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/ethclient"
)

type BridgeAdmin struct {
	*Contract
}

func NewBridgeAdmin(client ethclient.Client, addr common.Address) *BridgeAdmin {
	return &BridgeAdmin{NewContract(client, addr, abi.BridgeAdmin)}
}

func (c *BridgeAdmin) ProposerBondPct(ctx context.Context) (uint64, error) {
	values, err := c.CallUnpack(ctx, "proposerBondPct")
	if err != nil {
		return 0, err
	}
	pct, ok := values[0].(uint64)
	if !ok {
		return 0, fmt.Errorf("unexpected proposerBondPct() result type %T", values[0])
	}
	return pct, nil
}

func (c *BridgeAdmin) OptimisticOracleLiveness(ctx context.Context) (uint64, error) {
	values, err := c.CallUnpack(ctx, "optimisticOracleLiveness")
	if err != nil {
		return 0, err
	}
	liveness, ok := values[0].(uint32)
	if !ok {
		return 0, fmt.Errorf("unexpected optimisticOracleLiveness() result type %T", values[0])
	}
	return uint64(liveness), nil
}
