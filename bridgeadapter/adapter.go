package bridgeadapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/insured-bridge-relayer/config"
	"github.com/omni/insured-bridge-relayer/entity"
	"github.com/omni/insured-bridge-relayer/ethclient"
	"github.com/omni/insured-bridge-relayer/logging"
)

var (
	ErrUnexpectedMessageCount = errors.New("expected exactly one cross domain message in transaction")
	ErrUnsupportedChain       = errors.New("no bridge adapter registered for chain")
	ErrReceiptNotFound        = errors.New("l2 transaction receipt not found")
)

// Adapter finalizes canonical L2 to L1 withdrawals of a single L2 family.
type Adapter interface {
	Initialize(ctx context.Context) error
	// ConstructFinalizationTransaction returns a result with nil Transaction when the withdrawal
	// made by l2TxHash is not finalizable yet, or was already finalized.
	ConstructFinalizationTransaction(ctx context.Context, l2TxHash common.Hash) (*FinalizationResult, error)
}

type FinalizationResult struct {
	L2TxHash    common.Hash
	Transaction *entity.Transaction
}

type Params struct {
	Logger  logging.Logger
	L1      ethclient.Client
	L2      ethclient.Client
	Account common.Address
	Config  *config.AdapterConfig
}

type Factory func(p *Params) (Adapter, error)

type Registry struct {
	factories map[uint64]Factory
}

// NewRegistry returns a registry with the known Arbitrum and Optimism chains.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[uint64]Factory)}
	r.Register(42161, NewArbitrumFactory(&config.ArbitrumAdapterConfig{
		Bridge: common.HexToAddress("0x011B6E24FfB0B5f5fCc564cf4183C5BBBc96D515"),
	}))
	r.Register(421611, NewArbitrumFactory(nil))
	r.Register(10, NewOptimismFactory(&config.OptimismAdapterConfig{
		AddressManager: common.HexToAddress("0xdE1FCfB0851916CA5101820A69b13a4E276bd81F"),
	}))
	r.Register(69, NewOptimismFactory(nil))
	return r
}

func (r *Registry) Register(chainID uint64, factory Factory) {
	r.factories[chainID] = factory
}

// New builds an adapter for the chain. An explicit adapter config picks the family regardless of chain ID.
func (r *Registry) New(chainID uint64, p *Params) (Adapter, error) {
	if p.Config != nil {
		switch {
		case p.Config.Arbitrum != nil:
			return NewArbitrumFactory(nil)(p)
		case p.Config.Optimism != nil:
			return NewOptimismFactory(nil)(p)
		}
	}
	factory, ok := r.factories[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrUnsupportedChain)
	}
	return factory(p)
}
