package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type RelayState uint8

const (
	RelayStateUninitialized RelayState = iota
	RelayStatePending
	RelayStateFinalized
)

func (s RelayState) String() string {
	switch s {
	case RelayStateUninitialized:
		return "Uninitialized"
	case RelayStatePending:
		return "Pending"
	case RelayStateFinalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

type Settleable uint8

const (
	CannotSettle Settleable = iota
	SlowRelayerCanSettle
	AnyoneCanSettle
)

func (s Settleable) String() string {
	switch s {
	case CannotSettle:
		return "CannotSettle"
	case SlowRelayerCanSettle:
		return "SlowRelayerCanSettle"
	case AnyoneCanSettle:
		return "AnyoneCanSettle"
	default:
		return "Unknown"
	}
}

// Relay is the L1 bridge pool record of an attempt to fulfill a Deposit.
// Deposit fields echoed by the relay event are kept in Deposit, so a relay
// can be disputed even when the original deposit can't be found.
type Relay struct {
	DepositHash            common.Hash
	ChainID                uint64
	L1Token                common.Address
	BridgePool             common.Address
	RelayID                uint32
	RealizedLpFeePct       uint64
	PriceRequestTime       uint32
	ProposerBond           *big.Int
	FinalFee               *big.Int
	SlowRelayer            common.Address
	InstantRelayer         common.Address
	RelayState             RelayState
	RelayAncillaryDataHash common.Hash
	ExpirationTime         uint64
	Settleable             Settleable
	Deposit                *Deposit
	BlockNumber            uint64
}

func (r *Relay) IsSpedUp() bool {
	return r.InstantRelayer != (common.Address{})
}

func (r *Relay) IsExpired(now uint64) bool {
	return r.ExpirationTime <= now
}
