package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"

	"github.com/omni/insured-bridge-relayer/config"
	"github.com/omni/insured-bridge-relayer/logging"
	"github.com/omni/insured-bridge-relayer/utils"
)

var ErrPriceNotFound = errors.New("token price not found")

const nativeCurrency = "eth"

type Coingecko struct {
	logger logging.Logger
	client *resty.Client
	url    string
}

func NewCoingecko(logger logging.Logger, cfg *config.PriceFeedConfig) *Coingecko {
	client := resty.New().
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("x-cg-pro-api-key", cfg.APIKey)
	}
	return &Coingecko{
		logger: logger,
		client: client,
		url:    strings.TrimSuffix(cfg.URL, "/"),
	}
}

// PriceInNativeCurrency returns the price of one whole token in ETH, 18 decimals fixed point.
func (c *Coingecko) PriceInNativeCurrency(ctx context.Context, token common.Address) (*big.Int, error) {
	var response map[string]map[string]float64
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"contract_addresses": strings.ToLower(token.String()),
			"vs_currencies":      nativeCurrency,
		}).
		SetResult(&response).
		Get(c.url + "/simple/token_price/ethereum")
	if err != nil {
		return nil, fmt.Errorf("can't request token price: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("price feed responded with status %d: %s", resp.StatusCode(), resp.String())
	}

	prices, ok := response[strings.ToLower(token.String())]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", token, ErrPriceNotFound)
	}
	price, ok := prices[nativeCurrency]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("token %s: %w", token, ErrPriceNotFound)
	}

	res, _ := new(big.Float).Mul(big.NewFloat(price), new(big.Float).SetInt(utils.FixedPointOne)).Int(nil)
	c.logger.WithField("token", token).WithField("price", res.String()).Debug("fetched token price")
	return res, nil
}
