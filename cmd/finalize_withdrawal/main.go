package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/omni/insured-bridge-relayer/bridgeadapter"
	"github.com/omni/insured-bridge-relayer/bundler"
	"github.com/omni/insured-bridge-relayer/config"
	"github.com/omni/insured-bridge-relayer/ethclient"
	"github.com/omni/insured-bridge-relayer/logging"
	"github.com/omni/insured-bridge-relayer/txsender"
	"github.com/omni/insured-bridge-relayer/utils"
)

var ErrUnknownChain = errors.New("l2 chain is not configured")

func main() {
	app := &cli.App{
		Name:  "finalize_withdrawal",
		Usage: "builds, and optionally submits, L1 finalization transactions for canonical L2 withdrawals",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to the yaml config file", Value: "config.yml"},
			&cli.Uint64Flag{Name: "chain", Usage: "L2 chain id of the withdrawals", Required: true},
			&cli.StringSliceFlag{Name: "tx", Usage: "L2 transaction hash that initiated the withdrawal", Required: true},
			&cli.BoolFlag{Name: "submit", Usage: "send finalizable transactions, otherwise only print them"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logging.New().WithError(err).Fatal("finalization failed")
	}
}

func run(c *cli.Context) error {
	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(c.String("config"))
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	chainID := c.Uint64("chain")
	chainCfg := cfg.GetL2ChainConfig(chainID)
	if chainCfg == nil {
		return fmt.Errorf("chain %d: %w", chainID, ErrUnknownChain)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	key, account, err := utils.ParsePrivateKey(cfg.Relayer.PrivateKey)
	if err != nil {
		return fmt.Errorf("can't load relayer account: %w", err)
	}
	l1Client, err := ethclient.NewClient(cfg.L1.RPC.Host, cfg.L1.RPC.Timeout, strconv.FormatUint(cfg.L1.ChainID, 10))
	if err != nil {
		return fmt.Errorf("can't dial l1 rpc client: %w", err)
	}
	l2Client, err := ethclient.NewClient(chainCfg.RPC.Host, chainCfg.RPC.Timeout, strconv.FormatUint(chainID, 10))
	if err != nil {
		return fmt.Errorf("can't dial l2 rpc client: %w", err)
	}

	adapter, err := bridgeadapter.NewRegistry().New(chainID, &bridgeadapter.Params{
		Logger:  logger.WithField("chain_id", chainID),
		L1:      l1Client,
		L2:      l2Client,
		Account: account,
		Config:  chainCfg.Adapter,
	})
	if err != nil {
		return err
	}
	if err = adapter.Initialize(ctx); err != nil {
		return err
	}

	sender, err := txsender.NewSender(logger, l1Client, key, account, cfg.Relayer.TxPollInterval)
	if err != nil {
		return fmt.Errorf("can't create l1 transaction sender: %w", err)
	}
	queue := bundler.NewBundler(logger, sender, false)

	for _, txHash := range c.StringSlice("tx") {
		hash := common.HexToHash(txHash)
		txLogger := logger.WithField("l2_tx_hash", hash)
		res, err2 := adapter.ConstructFinalizationTransaction(ctx, hash)
		if err2 != nil {
			txLogger.WithError(err2).Error("can't construct finalization transaction")
			continue
		}
		if res.Transaction == nil {
			txLogger.Info("withdrawal is not finalizable yet, or was already finalized")
			continue
		}
		txLogger.WithFields(logrus.Fields{
			"target": res.Transaction.Target,
			"data":   hexutil.Encode(res.Transaction.Data),
		}).Info("withdrawal is finalizable")
		if c.Bool("submit") {
			queue.Enqueue(res.Transaction)
		}
	}

	if queue.Pending() == 0 {
		return nil
	}
	if err = queue.Send(ctx); err != nil {
		return err
	}
	_, err = queue.WaitForMine(ctx)
	return err
}
