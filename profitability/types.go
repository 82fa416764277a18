package profitability

import (
	"math/big"
)

type TokenType int

const (
	TokenTypeERC20 TokenType = iota
	TokenTypeWETH
	TokenTypeUMA
)

func (t TokenType) String() string {
	switch t {
	case TokenTypeWETH:
		return "WETH"
	case TokenTypeUMA:
		return "UMA"
	default:
		return "ERC20"
	}
}

type RelaySubmitType int

const (
	RelaySubmitTypeIgnore RelaySubmitType = iota
	RelaySubmitTypeSlow
	RelaySubmitTypeSpeedUp
	RelaySubmitTypeInstant
)

func (t RelaySubmitType) String() string {
	switch t {
	case RelaySubmitTypeSlow:
		return "Slow"
	case RelaySubmitTypeSpeedUp:
		return "SpeedUp"
	case RelaySubmitTypeInstant:
		return "Instant"
	default:
		return "Ignore"
	}
}

type gasUnits struct {
	Slow    uint64
	SpeedUp uint64
	Instant uint64
}

// Approximate gas used by bridge pool relay methods, measured per token flavour.
var gasCosts = map[TokenType]gasUnits{
	TokenTypeWETH:  {Slow: 243177, SpeedUp: 191013, Instant: 273892},
	TokenTypeERC20: {Slow: 250939, SpeedUp: 198468, Instant: 281612},
	TokenTypeUMA:   {Slow: 273955, SpeedUp: 207524, Instant: 305557},
}

type Amounts struct {
	Slow    *big.Int
	SpeedUp *big.Int
	Instant *big.Int
}

type Verdict struct {
	Type        RelaySubmitType
	Explanation string
	Costs       Amounts
	Revenue     Amounts
	Profits     Amounts
}
