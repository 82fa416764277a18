package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Deposit is a transfer request emitted by an L2 deposit box.
type Deposit struct {
	ChainID            uint64
	DepositID          uint64
	DepositHash        common.Hash
	L1Recipient        common.Address
	L2Sender           common.Address
	L1Token            common.Address
	L2Token            common.Address
	Amount             *big.Int
	SlowRelayFeePct    uint64
	InstantRelayFeePct uint64
	QuoteTimestamp     uint32
	DepositContract    common.Address
	BlockNumber        uint64
	TransactionHash    common.Hash
}

// InstantRelayAmount is the amount an instant relayer transfers to the recipient,
// i.e. the deposited amount minus all the fees.
func (d *Deposit) InstantRelayAmount(realizedLpFeePct uint64) *big.Int {
	totalFeePct := new(big.Int).SetUint64(realizedLpFeePct)
	totalFeePct.Add(totalFeePct, new(big.Int).SetUint64(d.SlowRelayFeePct))
	totalFeePct.Add(totalFeePct, new(big.Int).SetUint64(d.InstantRelayFeePct))
	fees := new(big.Int).Mul(d.Amount, totalFeePct)
	fees.Quo(fees, fixedPointOne)
	return new(big.Int).Sub(d.Amount, fees)
}

func (d *Deposit) SlowRelayFee() *big.Int {
	return feeAmount(d.Amount, d.SlowRelayFeePct)
}

func (d *Deposit) InstantRelayFee() *big.Int {
	return feeAmount(d.Amount, d.InstantRelayFeePct)
}

var fixedPointOne = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func feeAmount(amount *big.Int, pct uint64) *big.Int {
	res := new(big.Int).Mul(amount, new(big.Int).SetUint64(pct))
	return res.Quo(res, fixedPointOne)
}
