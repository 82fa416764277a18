package pricefeed_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/omni/insured-bridge-relayer/config"
	"github.com/omni/insured-bridge-relayer/pricefeed"
)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	uma  = common.HexToAddress("0x04Fa0d235C4abf4BcF4787aF4CF447DE572eF828")
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/simple/token_price/ethereum", r.URL.Path)
		require.Equal(t, "eth", r.URL.Query().Get("vs_currencies"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("contract_addresses") {
		case strings.ToLower(usdc.String()):
			_, _ = fmt.Fprintf(w, `{%q:{"eth":0.0005}}`, strings.ToLower(usdc.String()))
		case strings.ToLower(uma.String()):
			_, _ = fmt.Fprint(w, `{}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCoingecko_PriceInNativeCurrency(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	feed := pricefeed.NewCoingecko(logrus.New(), &config.PriceFeedConfig{URL: srv.URL + "/", Timeout: time.Second})

	price, err := feed.PriceInNativeCurrency(context.Background(), usdc)
	require.NoError(t, err)
	// 0.0005 is not exact in binary floating point.
	require.InDelta(t, 5e14, float64(price.Int64()), 1e3)

	_, err = feed.PriceInNativeCurrency(context.Background(), uma)
	require.ErrorIs(t, err, pricefeed.ErrPriceNotFound)

	_, err = feed.PriceInNativeCurrency(context.Background(), common.HexToAddress("0x01"))
	require.Error(t, err)
}
