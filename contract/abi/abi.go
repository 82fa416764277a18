package abi

//nolint:golint
import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrInvalidEvent           = errors.New("invalid event")
	ErrEventSignatureMismatch = errors.New("event signature mismatch")
)

//go:embed bridge_admin.json
var bridgeAdminJSONABI string

//go:embed bridge_pool.json
var bridgePoolJSONABI string

//go:embed deposit_box.json
var depositBoxJSONABI string

//go:embed erc20.json
var erc20JSONABI string

//go:embed multicall.json
var multicallJSONABI string

//go:embed arbitrum.json
var arbitrumJSONABI string

//go:embed optimism.json
var optimismJSONABI string

var (
	BridgeAdmin = MustReadABI(bridgeAdminJSONABI)
	BridgePool  = MustReadABI(bridgePoolJSONABI)
	DepositBox  = MustReadABI(depositBoxJSONABI)
	ERC20       = MustReadABI(erc20JSONABI)
	Multicall   = MustReadABI(multicallJSONABI)
	Arbitrum    = MustReadABI(arbitrumJSONABI)
	Optimism    = MustReadABI(optimismJSONABI)
)

const (
	WhitelistToken     = "WhitelistToken"
	DepositRelayed     = "DepositRelayed"
	RelaySpedUp        = "RelaySpedUp"
	RelayDisputed      = "RelayDisputed"
	RelaySettled       = "RelaySettled"
	FundsDeposited     = "FundsDeposited"
	TokensBridged      = "TokensBridged"
	L2ToL1Transaction  = "L2ToL1Transaction"
	SentMessage        = "SentMessage"
	StateBatchAppended = "StateBatchAppended"
)

type ABI struct {
	abi.ABI
}

func MustReadABI(rawJSON string) ABI {
	res, err := abi.JSON(strings.NewReader(rawJSON))
	if err != nil {
		panic(err)
	}
	return ABI{res}
}

func (a ABI) AllEvents() map[string]bool {
	events := make(map[string]bool, len(a.Events))
	for _, event := range a.Events {
		events[event.String()] = true
	}
	return events
}

// EventID returns the topic0 of the named event, panicking on unknown names.
func (a ABI) EventID(name string) common.Hash {
	event, ok := a.Events[name]
	if !ok {
		panic(fmt.Sprintf("unknown event %s", name))
	}
	return event.ID
}

func (a ABI) FindMatchingEventABI(topics []common.Hash) *abi.Event {
	for _, e := range a.Events {
		if e.ID == topics[0] {
			indexed := Indexed(e.Inputs)
			if len(indexed) == len(topics)-1 {
				return &e
			}
		}
	}
	return nil
}

func (a ABI) ParseLog(log *types.Log) (string, map[string]interface{}, error) {
	if len(log.Topics) == 0 {
		return "", nil, fmt.Errorf("cannot process event without topics: %w", ErrInvalidEvent)
	}
	event := a.FindMatchingEventABI(log.Topics)
	if event == nil {
		return "", nil, nil
	}

	res, err := DecodeEventLog(event, log.Topics, log.Data)
	if err != nil {
		return "", nil, fmt.Errorf("can't decode event log: %w", err)
	}
	return event.String(), res, nil
}

// UnpackLog decodes both data and indexed topics of the named event into out.
func (a ABI) UnpackLog(out interface{}, name string, log *types.Log) error {
	event, ok := a.Events[name]
	if !ok {
		return fmt.Errorf("event %s is not in abi: %w", name, ErrInvalidEvent)
	}
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return fmt.Errorf("log is not %s: %w", name, ErrEventSignatureMismatch)
	}
	if len(log.Data) > 0 {
		if err := a.UnpackIntoInterface(out, name, log.Data); err != nil {
			return fmt.Errorf("can't unpack data: %w", err)
		}
	}
	if err := abi.ParseTopics(out, Indexed(event.Inputs), log.Topics[1:]); err != nil {
		return fmt.Errorf("can't unpack topics: %w", err)
	}
	return nil
}

func Indexed(args abi.Arguments) abi.Arguments {
	var indexed abi.Arguments
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func DecodeEventLog(event *abi.Event, topics []common.Hash, data []byte) (map[string]interface{}, error) {
	indexed := Indexed(event.Inputs)
	values := make(map[string]interface{})
	if len(indexed) < len(event.Inputs) {
		if err := event.Inputs.UnpackIntoMap(values, data); err != nil {
			return nil, fmt.Errorf("can't unpack data: %w", err)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, topics[1:]); err != nil {
		return nil, fmt.Errorf("can't unpack topics: %w", err)
	}
	return values, nil
}
