package utils

import (
	"math/big"
)

var (
	big100 = big.NewInt(100)
	// FixedPointOne is 1.0 in 18 decimals fixed point.
	FixedPointOne = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func ToWei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), FixedPointOne)
}

// MulFixed returns a*b/1e18, truncated.
func MulFixed(a, b *big.Int) *big.Int {
	res := new(big.Int).Mul(a, b)
	return res.Quo(res, FixedPointOne)
}

// MulPct returns a*pct/100, truncated.
func MulPct(a *big.Int, pct uint64) *big.Int {
	res := new(big.Int).Mul(a, new(big.Int).SetUint64(pct))
	return res.Quo(res, big100)
}

// ScaleDecimals converts an amount with the given number of decimals to 18 decimals.
func ScaleDecimals(amount *big.Int, decimals uint8) *big.Int {
	switch {
	case decimals == 18:
		return new(big.Int).Set(amount)
	case decimals < 18:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
		return new(big.Int).Mul(amount, factor)
	default:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-18)), nil)
		return new(big.Int).Quo(amount, factor)
	}
}

func MinUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
