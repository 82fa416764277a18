package txsender

import (
	"context"
	"fmt"
	"math/big"

	"github.com/omni/insured-bridge-relayer/ethclient"
)

type GasPricer struct {
	client ethclient.Client
}

func NewGasPricer(client ethclient.Client) *GasPricer {
	return &GasPricer{client: client}
}

// GasPrice returns the cumulative gas price a new transaction is expected to pay,
// base fee plus priority fee on London chains, legacy gas price otherwise.
func (p *GasPricer) GasPrice(ctx context.Context) (*big.Int, error) {
	head, err := p.client.LatestHeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get latest header: %w", err)
	}
	if head.BaseFee == nil {
		price, err := p.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("can't get gas price: %w", err)
		}
		return price, nil
	}
	tip, err := p.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get gas tip cap: %w", err)
	}
	return new(big.Int).Add(head.BaseFee, tip), nil
}
