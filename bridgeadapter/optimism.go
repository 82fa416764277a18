package bridgeadapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/omni/insured-bridge-relayer/config"
	"github.com/omni/insured-bridge-relayer/contract"
	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/entity"
	"github.com/omni/insured-bridge-relayer/ethclient"
	"github.com/omni/insured-bridge-relayer/logging"
	"github.com/omni/insured-bridge-relayer/utils"
)

var ErrInvalidMessage = errors.New("malformed cross domain message")

var relayMessageArgs = mustArguments("address", "address", "bytes", "uint256")

func mustArguments(types ...string) ethabi.Arguments {
	args := make(ethabi.Arguments, len(types))
	for i, t := range types {
		typ, err := ethabi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args[i] = ethabi.Argument{Type: typ}
	}
	return args
}

// CrossDomainMessage is a message sent through the OVM1 L2 cross domain messenger.
type CrossDomainMessage struct {
	Target  common.Address
	Sender  common.Address
	Message []byte
	Nonce   *big.Int
	// Calldata is the encoded relayMessage call hashed into the message passer storage.
	Calldata []byte
}

// Optimism finalizes OVM1 withdrawals once their state batch passed the fraud proof window.
type Optimism struct {
	logger    logging.Logger
	l1        ethclient.Client
	l2        ethclient.Client
	account   common.Address
	cfg       config.OptimismAdapterConfig
	messenger *contract.Contract
	prover    InclusionProver
}

func NewOptimismFactory(defaults *config.OptimismAdapterConfig) Factory {
	return func(p *Params) (Adapter, error) {
		cfg := config.OptimismAdapterConfig{}
		if defaults != nil {
			cfg = *defaults
		}
		if p.Config != nil && p.Config.Optimism != nil {
			override := p.Config.Optimism
			if override.AddressManager != (common.Address{}) {
				cfg.AddressManager = override.AddressManager
			}
			if override.L1Messenger != (common.Address{}) {
				cfg.L1Messenger = override.L1Messenger
			}
			if override.StateCommitmentChain != (common.Address{}) {
				cfg.StateCommitmentChain = override.StateCommitmentChain
			}
			if override.SCCStartBlock != 0 {
				cfg.SCCStartBlock = override.SCCStartBlock
			}
		}
		return NewOptimism(p.Logger, p.L1, p.L2, p.Account, cfg, nil), nil
	}
}

// NewOptimism creates the adapter. A nil prover is replaced by the state commitment chain prover on Initialize.
func NewOptimism(logger logging.Logger, l1, l2 ethclient.Client, account common.Address, cfg config.OptimismAdapterConfig, prover InclusionProver) *Optimism {
	return &Optimism{
		logger:  logger.WithField("adapter", "optimism"),
		l1:      l1,
		l2:      l2,
		account: account,
		cfg:     cfg,
		prover:  prover,
	}
}

func (o *Optimism) Initialize(ctx context.Context) error {
	if o.cfg.L1Messenger == (common.Address{}) || (o.prover == nil && o.cfg.StateCommitmentChain == (common.Address{})) {
		if o.cfg.AddressManager == (common.Address{}) {
			return fmt.Errorf("address manager is not configured: %w", config.ErrInvalidConfig)
		}
		manager := contract.NewContract(o.l1, o.cfg.AddressManager, abi.Optimism)
		if o.cfg.L1Messenger == (common.Address{}) {
			addr, err := manager.CallAddress(ctx, "getAddress", "Proxy__OVM_L1CrossDomainMessenger")
			if err != nil {
				return fmt.Errorf("can't resolve L1 messenger: %w", err)
			}
			o.cfg.L1Messenger = addr
		}
		if o.cfg.StateCommitmentChain == (common.Address{}) {
			addr, err := manager.CallAddress(ctx, "getAddress", "StateCommitmentChain")
			if err != nil {
				return fmt.Errorf("can't resolve state commitment chain: %w", err)
			}
			o.cfg.StateCommitmentChain = addr
		}
	}
	o.messenger = contract.NewContract(o.l1, o.cfg.L1Messenger, abi.Optimism)
	if o.prover == nil {
		o.prover = NewSCCProver(o.logger, o.l1, o.l2, o.cfg.StateCommitmentChain, o.cfg.SCCStartBlock)
	}
	o.logger.WithFields(logrus.Fields{
		"l1_messenger":           o.cfg.L1Messenger,
		"state_commitment_chain": o.cfg.StateCommitmentChain,
	}).Info("initialized optimism bridge adapter")
	return nil
}

func (o *Optimism) ConstructFinalizationTransaction(ctx context.Context, l2TxHash common.Hash) (*FinalizationResult, error) {
	logger := o.logger.WithField("l2_tx_hash", l2TxHash)
	res := &FinalizationResult{L2TxHash: l2TxHash}

	receipt, err := o.l2.TransactionReceiptByHash(ctx, l2TxHash)
	if err != nil {
		return nil, fmt.Errorf("can't get receipt of %s: %w", l2TxHash, err)
	}
	if receipt == nil {
		return nil, fmt.Errorf("%s: %w", l2TxHash, ErrReceiptNotFound)
	}

	var messages []*CrossDomainMessage
	eventID := abi.Optimism.EventID(abi.SentMessage)
	for _, log := range receipt.Logs {
		if log.Address != l2MessengerAddress || len(log.Topics) == 0 || log.Topics[0] != eventID {
			continue
		}
		var event abi.SentMessageEvent
		if err = abi.Optimism.UnpackLog(&event, abi.SentMessage, log); err != nil {
			return nil, fmt.Errorf("can't decode sent message event: %w", err)
		}
		msg, err2 := DecodeCrossDomainMessage(event.Message)
		if err2 != nil {
			return nil, err2
		}
		messages = append(messages, msg)
	}
	if len(messages) != 1 {
		return nil, utils.Permanent(fmt.Errorf("found %d messages in %s: %w", len(messages), l2TxHash, ErrUnexpectedMessageCount))
	}
	msg := messages[0]

	proof, err := o.prover.MessageProof(ctx, receipt.BlockNumber.Uint64(), msg.Calldata)
	if err != nil {
		return nil, fmt.Errorf("can't build message inclusion proof: %w", err)
	}
	if proof == nil {
		return res, nil
	}

	data, err := o.messenger.Pack("relayMessage", msg.Target, msg.Sender, msg.Message, msg.Nonce, proof)
	if err != nil {
		return nil, err
	}

	// The messenger rejects messages still in the fraud proof window or already relayed.
	if _, err = o.l1.CallContract(ctx, ethereum.CallMsg{
		From: o.account,
		To:   &o.cfg.L1Messenger,
		Data: data,
	}); err != nil {
		if !ethclient.IsExecutionReverted(err) {
			return nil, fmt.Errorf("can't simulate relayMessage: %w", err)
		}
		logger.WithError(err).Debug("withdrawal is not finalizable yet")
		return res, nil
	}

	res.Transaction = &entity.Transaction{
		Target:  o.cfg.L1Messenger,
		Data:    data,
		Value:   new(big.Int),
		Message: "Finalized Optimism withdrawal",
		Level:   logrus.InfoLevel,
		Fields: logrus.Fields{
			"l2_tx_hash": l2TxHash,
			"nonce":      msg.Nonce,
			"target":     msg.Target,
		},
	}
	return res, nil
}

// DecodeCrossDomainMessage decodes relayMessage(address,address,bytes,uint256) calldata emitted by the L2 messenger.
func DecodeCrossDomainMessage(calldata []byte) (*CrossDomainMessage, error) {
	if len(calldata) < 4 {
		return nil, fmt.Errorf("calldata of %d bytes: %w", len(calldata), ErrInvalidMessage)
	}
	values, err := relayMessageArgs.Unpack(calldata[4:])
	if err != nil {
		return nil, fmt.Errorf("can't unpack message: %v: %w", err, ErrInvalidMessage)
	}
	target, ok1 := values[0].(common.Address)
	sender, ok2 := values[1].(common.Address)
	message, ok3 := values[2].([]byte)
	nonce, ok4 := values[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, ErrInvalidMessage
	}
	return &CrossDomainMessage{
		Target:   target,
		Sender:   sender,
		Message:  message,
		Nonce:    nonce,
		Calldata: calldata,
	}, nil
}

// EncodeCrossDomainMessage builds the calldata the L2 messenger emits for a message.
func EncodeCrossDomainMessage(target, sender common.Address, message []byte, nonce *big.Int) []byte {
	packed, err := relayMessageArgs.Pack(target, sender, message, nonce)
	if err != nil {
		panic(err)
	}
	return append(crypto.Keccak256([]byte("relayMessage(address,address,bytes,uint256)"))[:4], packed...)
}
