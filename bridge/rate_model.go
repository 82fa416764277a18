package bridge

import (
	"math"
	"math/big"

	"github.com/omni/insured-bridge-relayer/config"
)

const weeksPerYear = 52

// RateModel is a piecewise linear annual LP fee curve over pool utilization:
// R0 + R1*U/UBar below the kink UBar, R0 + R1 + R2*(U-UBar)/(1-UBar) above it.
// All values are 18 decimals fixed point.
type RateModel struct {
	UBar *big.Int
	R0   *big.Int
	R1   *big.Int
	R2   *big.Int
}

func NewRateModel(cfg *config.RateModelConfig) *RateModel {
	return &RateModel{
		UBar: cfg.UBar.Int,
		R0:   cfg.R0.Int,
		R1:   cfg.R1.Int,
		R2:   cfg.R2.Int,
	}
}

func toFloat(n *big.Int) float64 {
	if n == nil {
		return 0
	}
	res, _ := new(big.Float).Quo(new(big.Float).SetInt(n), big.NewFloat(1e18)).Float64()
	return res
}

// integral of the annual rate curve over [0, u].
func (m *RateModel) integral(u float64) float64 {
	uBar, r0, r1, r2 := toFloat(m.UBar), toFloat(m.R0), toFloat(m.R1), toFloat(m.R2)
	if u <= uBar {
		if uBar == 0 {
			return 0
		}
		return r0*u + r1*u*u/(2*uBar)
	}
	res := r0*uBar + r1*uBar/2
	if uBar < 1 {
		d := u - uBar
		res += (r0+r1)*d + r2*d*d/(2*(1-uBar))
	}
	return res
}

// AnnualRate returns the average annual rate over the utilization interval [before, after].
func (m *RateModel) AnnualRate(before, after *big.Int) float64 {
	u0, u1 := toFloat(before), toFloat(after)
	if u1 < u0 {
		u0, u1 = u1, u0
	}
	if u1-u0 < 1e-18 {
		// derivative of the integral at u0
		eps := 1e-9
		return (m.integral(u0+eps) - m.integral(u0)) / eps
	}
	return (m.integral(u1) - m.integral(u0)) / (u1 - u0)
}

// RealizedLpFeePct converts the average annual rate into a weekly rate,
// truncated to 6 decimals and expressed in 18 decimals fixed point.
func (m *RateModel) RealizedLpFeePct(before, after *big.Int) uint64 {
	apy := m.AnnualRate(before, after)
	weekly := math.Pow(1+apy, 1.0/weeksPerYear) - 1
	if weekly <= 0 {
		return 0
	}
	return uint64(math.Floor(weekly*1e6+1e-9)) * 1e12
}
