package pricefeed

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/insured-bridge-relayer/contract"
	"github.com/omni/insured-bridge-relayer/ethclient"
)

// TokenDecimals reads and caches ERC20 decimals from chain.
type TokenDecimals struct {
	client ethclient.Client

	mu    sync.Mutex
	cache map[common.Address]uint8
}

func NewTokenDecimals(client ethclient.Client) *TokenDecimals {
	return &TokenDecimals{
		client: client,
		cache:  make(map[common.Address]uint8),
	}
}

func (d *TokenDecimals) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	d.mu.Lock()
	res, ok := d.cache[token]
	d.mu.Unlock()
	if ok {
		return res, nil
	}

	res, err := contract.NewERC20(d.client, token).Decimals(ctx)
	if err != nil {
		return 0, fmt.Errorf("can't get decimals of %s: %w", token, err)
	}

	d.mu.Lock()
	d.cache[token] = res
	d.mu.Unlock()
	return res, nil
}
