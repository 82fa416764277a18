package profitability

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/insured-bridge-relayer/logging"
	"github.com/omni/insured-bridge-relayer/utils"
)

var (
	ErrInvalidDiscount = errors.New("bad discount factor, expected 0 <= discount <= 100")
	ErrNotInitialized  = errors.New("ProfitabilityCalculator method called before initialization! Call `update` first")
	ErrUnknownToken    = errors.New("token info not found")
	ErrZeroPrice       = errors.New("token price stored at 0, can't consider profit")
)

type PriceSource interface {
	// PriceInNativeCurrency returns the price of one whole token in native currency, 18 decimals fixed point.
	PriceInNativeCurrency(ctx context.Context, token common.Address) (*big.Int, error)
}

type DecimalsSource interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

type Config struct {
	L1Tokens []common.Address
	WETH     common.Address
	UMA      common.Address
	// Discount in percent, applied uniformly to all relay gas costs.
	Discount uint64
}

type tokenInfo struct {
	Type     TokenType
	Price    *big.Int
	Decimals uint8
}

type Calculator struct {
	logger   logging.Logger
	cfg      Config
	prices   PriceSource
	decimals DecimalsSource

	mu          sync.RWMutex
	tokens      map[common.Address]*tokenInfo
	initialized bool
}

func NewCalculator(logger logging.Logger, cfg Config, prices PriceSource, decimals DecimalsSource) (*Calculator, error) {
	if cfg.Discount > 100 {
		return nil, fmt.Errorf("discount %d: %w", cfg.Discount, utils.Permanent(ErrInvalidDiscount))
	}
	return &Calculator{
		logger:   logger,
		cfg:      cfg,
		prices:   prices,
		decimals: decimals,
		tokens:   make(map[common.Address]*tokenInfo, len(cfg.L1Tokens)),
	}, nil
}

func (c *Calculator) tokenType(token common.Address) TokenType {
	switch token {
	case c.cfg.WETH:
		return TokenTypeWETH
	case c.cfg.UMA:
		return TokenTypeUMA
	default:
		return TokenTypeERC20
	}
}

// Update refreshes token prices and decimals. A token whose price can't be fetched
// gets price 0, so it is never relayed unless the discount is 100%. A token whose decimals
// can't be fetched is left out of the snapshot, other tokens are still updated.
func (c *Calculator) Update(ctx context.Context) error {
	c.logger.WithField("tokens", c.cfg.L1Tokens).Debug("Updating prices")

	updated := make(map[common.Address]*tokenInfo, len(c.cfg.L1Tokens))
	for _, token := range c.cfg.L1Tokens {
		info := &tokenInfo{Type: c.tokenType(token), Price: new(big.Int)}
		c.mu.RLock()
		if prev, ok := c.tokens[token]; ok {
			info.Decimals = prev.Decimals
		}
		c.mu.RUnlock()

		if info.Decimals == 0 {
			decimals, err := c.decimals.Decimals(ctx, token)
			if err != nil {
				// the token stays unknown until its decimals are available
				PriceUpdateFailures.WithLabelValues(token.String()).Inc()
				c.logger.WithError(err).WithField("token", token).Warn("Could not find token decimals!")
				continue
			}
			info.Decimals = decimals
		}

		if info.Type == TokenTypeWETH {
			info.Price = new(big.Int).Set(utils.FixedPointOne)
		} else {
			price, err := c.prices.PriceInNativeCurrency(ctx, token)
			if err != nil || price == nil {
				PriceUpdateFailures.WithLabelValues(token.String()).Inc()
				c.logger.WithError(err).WithField("token", token).Warn("Could not find token price!")
			} else {
				info.Price = price
			}
		}
		updated[token] = info
	}

	c.mu.Lock()
	c.tokens = updated
	c.initialized = true
	c.mu.Unlock()

	fields := make(logrus.Fields, len(updated))
	for token, info := range updated {
		fields[token.String()] = fmt.Sprintf("%s %s", info.Type, info.Price)
	}
	c.logger.WithFields(fields).Debug("Updated prices")
	return nil
}

func (c *Calculator) getTokenInfo(token common.Address) (*tokenInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return nil, utils.Permanent(ErrNotInitialized)
	}
	info, ok := c.tokens[token]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", token, ErrUnknownToken)
	}
	return info, nil
}

func (c *Calculator) TokenPrice(token common.Address) (*big.Int, error) {
	info, err := c.getTokenInfo(token)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(info.Price), nil
}

// GetRelaySubmitTypeBasedOnProfitability prices each relay action in native currency and
// picks the most profitable one. cumulativeGasPrice is the base fee plus priority fee.
// Revenues are denominated in the token itself.
func (c *Calculator) GetRelaySubmitTypeBasedOnProfitability(token common.Address, cumulativeGasPrice, slowRevenue, speedUpRevenue, instantRevenue *big.Int) (*Verdict, error) {
	info, err := c.getTokenInfo(token)
	if err != nil {
		return nil, err
	}
	if c.cfg.Discount != 100 && info.Price.Sign() == 0 {
		return nil, fmt.Errorf("token %s: %w", token, ErrZeroPrice)
	}

	costs := c.submissionCosts(cumulativeGasPrice, info.Type)
	revenues := Amounts{
		Slow:    c.nativeRevenue(info, slowRevenue),
		SpeedUp: c.nativeRevenue(info, speedUpRevenue),
		Instant: c.nativeRevenue(info, instantRevenue),
	}
	profits := Amounts{
		Slow:    new(big.Int).Sub(revenues.Slow, costs.Slow),
		SpeedUp: new(big.Int).Sub(revenues.SpeedUp, costs.SpeedUp),
		Instant: new(big.Int).Sub(revenues.Instant, costs.Instant),
	}
	submitType := selectSubmitType(profits)

	verdict := &Verdict{
		Type:    submitType,
		Costs:   costs,
		Revenue: revenues,
		Profits: profits,
		Explanation: fmt.Sprintf("expected profit in native currency: slow %s, speed up %s, instant %s; relay type %s",
			profits.Slow, profits.SpeedUp, profits.Instant, submitType),
	}
	c.logger.WithFields(logrus.Fields{
		"l1_token":             token,
		"token_type":           info.Type.String(),
		"token_price":          info.Price.String(),
		"cumulative_gas_price": cumulativeGasPrice.String(),
		"relayer_discount":     c.cfg.Discount,
		"slow_profit":          profits.Slow.String(),
		"speed_up_profit":      profits.SpeedUp.String(),
		"instant_profit":       profits.Instant.String(),
		"relay_submit_type":    submitType.String(),
	}).Debug("Considered relay profitability")
	return verdict, nil
}

// selectSubmitType prefers Instant over SpeedUp over Slow when profits are equal.
func selectSubmitType(profits Amounts) RelaySubmitType {
	switch {
	case profits.Instant.Sign() > 0 && profits.Instant.Cmp(profits.Slow) >= 0 && profits.Instant.Cmp(profits.SpeedUp) >= 0:
		return RelaySubmitTypeInstant
	case profits.SpeedUp.Sign() > 0:
		return RelaySubmitTypeSpeedUp
	case profits.Slow.Sign() > 0:
		return RelaySubmitTypeSlow
	default:
		return RelaySubmitTypeIgnore
	}
}

func (c *Calculator) nativeRevenue(info *tokenInfo, revenue *big.Int) *big.Int {
	if revenue == nil {
		return new(big.Int)
	}
	return utils.MulFixed(utils.ScaleDecimals(revenue, info.Decimals), info.Price)
}

func (c *Calculator) submissionCosts(gasPrice *big.Int, tokenType TokenType) Amounts {
	gas := gasCosts[tokenType]
	cost := func(units uint64) *big.Int {
		res := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(units))
		return utils.MulPct(res, 100-c.cfg.Discount)
	}
	return Amounts{
		Slow:    cost(gas.Slow),
		SpeedUp: cost(gas.SpeedUp),
		Instant: cost(gas.Instant),
	}
}

// BreakEvenGasPrices returns, per action, the gas price at which its revenue equals its discounted cost.
// Actions that are free after the discount get a nil price.
func (c *Calculator) BreakEvenGasPrices(token common.Address, slowRevenue, speedUpRevenue, instantRevenue *big.Int) (Amounts, error) {
	info, err := c.getTokenInfo(token)
	if err != nil {
		return Amounts{}, err
	}
	gas := gasCosts[info.Type]
	breakEven := func(revenue *big.Int, units uint64) *big.Int {
		discounted := utils.MulPct(new(big.Int).SetUint64(units), 100-c.cfg.Discount)
		if discounted.Sign() == 0 {
			return nil
		}
		return new(big.Int).Quo(c.nativeRevenue(info, revenue), discounted)
	}
	return Amounts{
		Slow:    breakEven(slowRevenue, gas.Slow),
		SpeedUp: breakEven(speedUpRevenue, gas.SpeedUp),
		Instant: breakEven(instantRevenue, gas.Instant),
	}, nil
}
