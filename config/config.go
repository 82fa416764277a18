package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig       = errors.New("invalid config")
	ErrUnknownAdapterChain = errors.New("no bridge adapter settings for chain")
)

type RPCConfig struct {
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
}

type L1Config struct {
	RPC               *RPCConfig     `yaml:"rpc"`
	ChainID           uint64         `yaml:"chain_id"`
	BridgeAdmin       common.Address `yaml:"bridge_admin"`
	StartBlock        uint64         `yaml:"start_block"`
	MaxBlockRangeSize uint64         `yaml:"max_block_range_size"`
	Multicall         bool           `yaml:"multicall"`
}

type ArbitrumAdapterConfig struct {
	Bridge        common.Address `yaml:"bridge"`
	Outbox        common.Address `yaml:"outbox"`
	NodeInterface common.Address `yaml:"node_interface"`
	ArbSys        common.Address `yaml:"arb_sys"`
}

type OptimismAdapterConfig struct {
	AddressManager       common.Address `yaml:"address_manager"`
	L1Messenger          common.Address `yaml:"l1_messenger"`
	StateCommitmentChain common.Address `yaml:"state_commitment_chain"`
	SCCStartBlock        uint64         `yaml:"scc_start_block"`
}

type AdapterConfig struct {
	Arbitrum *ArbitrumAdapterConfig `yaml:"arbitrum"`
	Optimism *OptimismAdapterConfig `yaml:"optimism"`
}

type L2ChainConfig struct {
	RPC               *RPCConfig     `yaml:"rpc"`
	ChainID           uint64         `yaml:"chain_id"`
	DepositBox        common.Address `yaml:"deposit_box"`
	DeployBlock       uint64         `yaml:"deploy_block"`
	MaxBlockRangeSize uint64         `yaml:"max_block_range_size"`
	LookbackWindow    uint64         `yaml:"lookback_window"`
	Adapter           *AdapterConfig `yaml:"adapter"`
}

type BigInt struct {
	*big.Int
}

func (b *BigInt) UnmarshalYAML(value *yaml.Node) error {
	n, ok := new(big.Int).SetString(value.Value, 10)
	if !ok {
		return fmt.Errorf("can't parse %q as integer: %w", value.Value, ErrInvalidConfig)
	}
	b.Int = n
	return nil
}

type RateModelConfig struct {
	L1Token common.Address `yaml:"l1_token"`
	UBar    BigInt         `yaml:"u_bar"`
	R0      BigInt         `yaml:"r0"`
	R1      BigInt         `yaml:"r1"`
	R2      BigInt         `yaml:"r2"`
}

type EnabledActions struct {
	Relay    bool `yaml:"relay"`
	Dispute  bool `yaml:"dispute"`
	Settle   bool `yaml:"settle"`
	Bridge   bool `yaml:"bridge"`
	Finalize bool `yaml:"finalize"`
}

type RelayerConfig struct {
	PrivateKey                       string             `yaml:"private_key"`
	PollingDelay                     time.Duration      `yaml:"polling_delay"`
	ErrorRetries                     int                `yaml:"error_retries"`
	ErrorRetriesTimeout              time.Duration      `yaml:"error_retries_timeout"`
	TxPollInterval                   time.Duration      `yaml:"tx_poll_interval"`
	RelayerDiscount                  uint64             `yaml:"relayer_discount"`
	CrossDomainFinalizationThreshold uint64             `yaml:"cross_domain_finalization_threshold"`
	WhitelistedChainIDs              []uint64           `yaml:"whitelisted_chain_ids"`
	L1Tokens                         []common.Address   `yaml:"l1_tokens"`
	WETH                             common.Address     `yaml:"weth"`
	UMA                              common.Address     `yaml:"uma"`
	EnabledActions                   EnabledActions     `yaml:"enabled_actions"`
	RateModels                       []*RateModelConfig `yaml:"rate_models"`
}

type PriceFeedConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	L1        *L1Config        `yaml:"l1"`
	L2Chains  []*L2ChainConfig `yaml:"l2_chains"`
	Relayer   *RelayerConfig   `yaml:"relayer"`
	PriceFeed *PriceFeedConfig `yaml:"price_feed"`
	DBConfig  *DBConfig        `yaml:"postgres"`
	Presenter *PresenterConfig `yaml:"presenter"`
	LogLevel  logrus.Level     `yaml:"log_level"`
}

func (cfg *Config) GetL2ChainConfig(chainID uint64) *L2ChainConfig {
	for _, chainCfg := range cfg.L2Chains {
		if chainCfg.ChainID == chainID {
			return chainCfg
		}
	}
	return nil
}

func (cfg *Config) RateModel(l1Token common.Address) *RateModelConfig {
	for _, rm := range cfg.Relayer.RateModels {
		if rm.L1Token == l1Token {
			return rm
		}
	}
	return nil
}

func (cfg *Config) init() {
	if cfg.L1.MaxBlockRangeSize == 0 {
		cfg.L1.MaxBlockRangeSize = 10000
	}
	if cfg.L1.RPC.Timeout == 0 {
		cfg.L1.RPC.Timeout = 30 * time.Second
	}
	for _, chainCfg := range cfg.L2Chains {
		if chainCfg.MaxBlockRangeSize == 0 {
			chainCfg.MaxBlockRangeSize = 5000
		}
		if chainCfg.RPC != nil && chainCfg.RPC.Timeout == 0 {
			chainCfg.RPC.Timeout = 30 * time.Second
		}
	}
	if cfg.Relayer.TxPollInterval == 0 {
		cfg.Relayer.TxPollInterval = 5 * time.Second
	}
	if cfg.Relayer.ErrorRetriesTimeout == 0 {
		cfg.Relayer.ErrorRetriesTimeout = time.Second
	}
	if cfg.PriceFeed == nil {
		cfg.PriceFeed = &PriceFeedConfig{}
	}
	if cfg.PriceFeed.URL == "" {
		cfg.PriceFeed.URL = "https://api.coingecko.com/api/v3"
	}
	if cfg.PriceFeed.Timeout == 0 {
		cfg.PriceFeed.Timeout = 10 * time.Second
	}
}

func (cfg *Config) validate() error {
	if cfg.L1 == nil || cfg.L1.RPC == nil || cfg.L1.RPC.Host == "" {
		return fmt.Errorf("l1 rpc is not configured: %w", ErrInvalidConfig)
	}
	if cfg.L1.BridgeAdmin == (common.Address{}) {
		return fmt.Errorf("l1 bridge admin address is not configured: %w", ErrInvalidConfig)
	}
	if cfg.Relayer == nil {
		return fmt.Errorf("relayer section is missing: %w", ErrInvalidConfig)
	}
	if cfg.Relayer.RelayerDiscount > 100 {
		return fmt.Errorf("relayer discount %d is not in [0, 100]: %w", cfg.Relayer.RelayerDiscount, ErrInvalidConfig)
	}
	if cfg.Relayer.CrossDomainFinalizationThreshold > 100 {
		return fmt.Errorf("cross domain finalization threshold %d is not in [0, 100]: %w", cfg.Relayer.CrossDomainFinalizationThreshold, ErrInvalidConfig)
	}
	if cfg.Relayer.ErrorRetries < 0 {
		return fmt.Errorf("error retries can't be negative: %w", ErrInvalidConfig)
	}
	if len(cfg.L2Chains) == 0 {
		return fmt.Errorf("at least one l2 chain should be configured: %w", ErrInvalidConfig)
	}
	seen := make(map[uint64]bool, len(cfg.L2Chains))
	for _, chainCfg := range cfg.L2Chains {
		if chainCfg.RPC == nil || chainCfg.RPC.Host == "" {
			return fmt.Errorf("l2 chain %d rpc is not configured: %w", chainCfg.ChainID, ErrInvalidConfig)
		}
		if chainCfg.DepositBox == (common.Address{}) {
			return fmt.Errorf("l2 chain %d deposit box is not configured: %w", chainCfg.ChainID, ErrInvalidConfig)
		}
		if seen[chainCfg.ChainID] {
			return fmt.Errorf("l2 chain %d is configured twice: %w", chainCfg.ChainID, ErrInvalidConfig)
		}
		seen[chainCfg.ChainID] = true
	}
	for _, rm := range cfg.Relayer.RateModels {
		if rm.UBar.Int == nil || rm.R0.Int == nil || rm.R1.Int == nil || rm.R2.Int == nil {
			return fmt.Errorf("rate model for %s is incomplete: %w", rm.L1Token, ErrInvalidConfig)
		}
	}
	return nil
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}

func ReadConfigWithEnv(blob []byte) (*Config, error) {
	return ReadConfig([]byte(os.ExpandEnv(string(blob))))
}

func ReadConfig(blob []byte) (*Config, error) {
	cfg := new(Config)
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.init()
	return cfg, nil
}
