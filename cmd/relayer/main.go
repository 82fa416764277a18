package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/omni/insured-bridge-relayer/bridge"
	"github.com/omni/insured-bridge-relayer/bridgeadapter"
	"github.com/omni/insured-bridge-relayer/bundler"
	"github.com/omni/insured-bridge-relayer/config"
	"github.com/omni/insured-bridge-relayer/db"
	"github.com/omni/insured-bridge-relayer/entity"
	"github.com/omni/insured-bridge-relayer/ethclient"
	"github.com/omni/insured-bridge-relayer/finalizer"
	"github.com/omni/insured-bridge-relayer/logging"
	"github.com/omni/insured-bridge-relayer/monitor"
	"github.com/omni/insured-bridge-relayer/monitor/alerts"
	"github.com/omni/insured-bridge-relayer/presenter"
	"github.com/omni/insured-bridge-relayer/pricefeed"
	"github.com/omni/insured-bridge-relayer/profitability"
	"github.com/omni/insured-bridge-relayer/relayer"
	"github.com/omni/insured-bridge-relayer/repository"
	"github.com/omni/insured-bridge-relayer/txsender"
	"github.com/omni/insured-bridge-relayer/utils"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the yaml config file",
		Value:   "config.yml",
	}
	onceFlag = &cli.BoolFlag{
		Name:  "once",
		Usage: "run a single iteration per chain and exit, overrides polling_delay",
	}
	metricsFlag = &cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "listen address of the prometheus metrics endpoint, empty disables it",
		Value: ":2112",
	}
)

func main() {
	app := &cli.App{
		Name:   "relayer",
		Usage:  "relays, disputes and settles insured bridge deposits, and finalizes canonical L2 withdrawals",
		Flags:  []cli.Flag{configFlag, onceFlag, metricsFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		logging.New().WithError(err).Fatal("relayer terminated with error")
	}
}

type l1Deps struct {
	cfg     *config.Config
	client  ethclient.Client
	state   *bridge.L1Client
	sender  *txsender.Sender
	calc    *profitability.Calculator
	shared  []monitor.Snapshot
	gas     *txsender.GasPricer
	journal entity.TransactionsRepo
	key     *ecdsa.PrivateKey
	account common.Address
}

func run(c *cli.Context) error {
	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(c.String(configFlag.Name))
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.LogLevel)
	if c.Bool(onceFlag.Name) {
		cfg.Relayer.PollingDelay = 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if addr := c.String(metricsFlag.Name); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err2 := http.ListenAndServe(addr, mux); err2 != nil {
				logger.WithError(err2).Fatal("can't start listener for prometheus metrics")
			}
		}()
	}

	key, account, err := utils.ParsePrivateKey(cfg.Relayer.PrivateKey)
	if err != nil {
		return fmt.Errorf("can't load relayer account: %w", err)
	}
	logger.WithField("account", account).Info("loaded relayer account")

	deps := &l1Deps{cfg: cfg, key: key, account: account}
	if cfg.DBConfig != nil {
		dbConn, err2 := db.ConnectToDBAndMigrate(ctx, cfg.DBConfig)
		if err2 != nil {
			return fmt.Errorf("can't connect to database and apply migrations: %w", err2)
		}
		defer dbConn.Close()
		repo := repository.NewRepo(dbConn)
		deps.journal = repo.Transactions

		chainIDs := []string{strconv.FormatUint(cfg.L1.ChainID, 10)}
		for _, chainCfg := range cfg.L2Chains {
			chainIDs = append(chainIDs, strconv.FormatUint(chainCfg.ChainID, 10))
		}
		alerts.NewAlertManager(logger.WithField("service", "alerts"), alerts.NewDBAlertsProvider(dbConn, "transactions"), chainIDs).Start(ctx)

		if cfg.Presenter != nil {
			pr := presenter.NewPresenter(logger.WithField("service", "presenter"), repo.Transactions, cfg)
			go func() {
				if err3 := pr.Serve(cfg.Presenter.Host); err3 != nil {
					logger.WithError(err3).Fatal("can't serve presenter")
				}
			}()
		}
	}

	deps.client, err = ethclient.NewClient(cfg.L1.RPC.Host, cfg.L1.RPC.Timeout, strconv.FormatUint(cfg.L1.ChainID, 10))
	if err != nil {
		return fmt.Errorf("can't dial l1 rpc client: %w", err)
	}
	deps.sender, err = txsender.NewSender(logger.WithField("chain_id", cfg.L1.ChainID), deps.client, key, account, cfg.Relayer.TxPollInterval)
	if err != nil {
		return fmt.Errorf("can't create l1 transaction sender: %w", err)
	}
	deps.gas = txsender.NewGasPricer(deps.client)

	rateModels := make(map[common.Address]*bridge.RateModel, len(cfg.Relayer.RateModels))
	for _, rm := range cfg.Relayer.RateModels {
		rateModels[rm.L1Token] = bridge.NewRateModel(rm)
	}
	deps.state = bridge.NewL1Client(logger.WithField("service", "l1_client"), deps.client, bridge.L1Options{
		BridgeAdmin:       cfg.L1.BridgeAdmin,
		StartBlock:        cfg.L1.StartBlock,
		MaxBlockRangeSize: cfg.L1.MaxBlockRangeSize,
		RateModels:        rateModels,
	})
	if err = deps.state.Update(ctx); err != nil {
		return fmt.Errorf("can't load initial l1 state: %w", err)
	}

	l1Tokens := cfg.Relayer.L1Tokens
	if len(l1Tokens) == 0 {
		l1Tokens = deps.state.WhitelistedL1Tokens()
	}
	deps.calc, err = profitability.NewCalculator(logger.WithField("service", "profitability"), profitability.Config{
		L1Tokens: l1Tokens,
		WETH:     cfg.Relayer.WETH,
		UMA:      cfg.Relayer.UMA,
		Discount: cfg.Relayer.RelayerDiscount,
	}, pricefeed.NewCoingecko(logger.WithField("service", "pricefeed"), cfg.PriceFeed), pricefeed.NewTokenDecimals(deps.client))
	if err != nil {
		return fmt.Errorf("can't create profitability calculator: %w", err)
	}

	// every chain monitor refreshes the same l1 state, do it once per polling cycle
	deps.shared = []monitor.Snapshot{
		monitor.NewSharedSnapshot(deps.state, cfg.Relayer.PollingDelay/2),
		monitor.NewSharedSnapshot(deps.calc, cfg.Relayer.PollingDelay/2),
	}

	registry := bridgeadapter.NewRegistry()
	monitors := make([]*monitor.ChainMonitor, 0, len(cfg.L2Chains))
	for _, chainCfg := range cfg.L2Chains {
		m, err2 := newChainMonitor(ctx, logger.WithField("chain_id", chainCfg.ChainID), deps, registry, chainCfg)
		if err2 != nil {
			return fmt.Errorf("can't initialize chain %d: %w", chainCfg.ChainID, err2)
		}
		monitors = append(monitors, m)
	}

	// chain loops share ctx only, a failed loop does not stop its siblings
	var g errgroup.Group
	for _, m := range monitors {
		m := m
		g.Go(func() error {
			return m.Start(ctx)
		})
	}
	err = g.Wait()
	if ctx.Err() != nil {
		logger.Warn("caught termination signal, gracefully terminated")
		return nil
	}
	return err
}

func newChainMonitor(ctx context.Context, logger logging.Logger, deps *l1Deps, registry *bridgeadapter.Registry, chainCfg *config.L2ChainConfig) (*monitor.ChainMonitor, error) {
	cfg := deps.cfg
	l2Eth, err := ethclient.NewClient(chainCfg.RPC.Host, chainCfg.RPC.Timeout, strconv.FormatUint(chainCfg.ChainID, 10))
	if err != nil {
		return nil, fmt.Errorf("can't dial l2 rpc client: %w", err)
	}
	l2State := bridge.NewL2Client(logger.WithField("service", "l2_client"), l2Eth, bridge.L2Options{
		ChainID:           chainCfg.ChainID,
		DepositBox:        chainCfg.DepositBox,
		DeployBlock:       chainCfg.DeployBlock,
		MaxBlockRangeSize: chainCfg.MaxBlockRangeSize,
		LookbackWindow:    chainCfg.LookbackWindow,
	})

	l1Bundler := bundler.NewBundler(logger.WithField("side", "l1"), deps.sender, cfg.L1.Multicall)
	if deps.journal != nil {
		l1Bundler.WithJournal(deps.journal)
	}

	rel := relayer.NewRelayer(logger, deps.state, l2State, deps.calc, deps.gas, l1Bundler, relayer.Config{
		Account:             deps.account,
		WhitelistedChainIDs: cfg.Relayer.WhitelistedChainIDs,
	})

	// interface typed, so that a disabled finalizer stays a nil interface
	var l2Bundler monitor.Bundler
	var fin monitor.Finalizer
	if actions := cfg.Relayer.EnabledActions; actions.Bridge || actions.Finalize {
		adapter, err2 := registry.New(chainCfg.ChainID, &bridgeadapter.Params{
			Logger:  logger.WithField("service", "bridge_adapter"),
			L1:      deps.client,
			L2:      l2Eth,
			Account: deps.account,
			Config:  chainCfg.Adapter,
		})
		if err2 != nil {
			return nil, err2
		}
		if err2 = adapter.Initialize(ctx); err2 != nil {
			return nil, err2
		}
		l2Sender, err2 := txsender.NewSender(logger, l2Eth, deps.key, deps.account, cfg.Relayer.TxPollInterval)
		if err2 != nil {
			return nil, fmt.Errorf("can't create l2 transaction sender: %w", err2)
		}
		l2Queue := bundler.NewBundler(logger.WithField("side", "l2"), l2Sender, false)
		if deps.journal != nil {
			l2Queue.WithJournal(deps.journal)
		}
		l2Bundler = l2Queue
		fin = finalizer.NewFinalizer(logger, deps.state, l2State, adapter, l1Bundler, l2Queue, cfg.Relayer.CrossDomainFinalizationThreshold)
	}

	snapshots := []monitor.Snapshot{deps.shared[0], l2State, deps.shared[1]}
	opts := monitor.Options{
		Actions:             cfg.Relayer.EnabledActions,
		PollingDelay:        cfg.Relayer.PollingDelay,
		ErrorRetries:        cfg.Relayer.ErrorRetries,
		ErrorRetriesTimeout: cfg.Relayer.ErrorRetriesTimeout,
	}
	return monitor.NewChainMonitor(logger, chainCfg.ChainID, snapshots, rel, fin, l1Bundler, l2Bundler, opts), nil
}
