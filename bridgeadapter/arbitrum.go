package bridgeadapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/insured-bridge-relayer/config"
	"github.com/omni/insured-bridge-relayer/contract"
	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/entity"
	"github.com/omni/insured-bridge-relayer/ethclient"
	"github.com/omni/insured-bridge-relayer/logging"
	"github.com/omni/insured-bridge-relayer/utils"
)

var (
	arbSysAddress        = common.HexToAddress("0x0000000000000000000000000000000000000064")
	nodeInterfaceAddress = common.HexToAddress("0x00000000000000000000000000000000000000C8")
)

// Arbitrum finalizes withdrawals through the classic Arbitrum outbox, once the
// outbox entry for the message batch is confirmed on L1.
type Arbitrum struct {
	logger        logging.Logger
	l1            ethclient.Client
	l2            ethclient.Client
	cfg           config.ArbitrumAdapterConfig
	outbox        *contract.Contract
	nodeInterface *contract.Contract
}

func NewArbitrumFactory(defaults *config.ArbitrumAdapterConfig) Factory {
	return func(p *Params) (Adapter, error) {
		cfg := config.ArbitrumAdapterConfig{}
		if defaults != nil {
			cfg = *defaults
		}
		if p.Config != nil && p.Config.Arbitrum != nil {
			override := p.Config.Arbitrum
			if override.Bridge != (common.Address{}) {
				cfg.Bridge = override.Bridge
			}
			if override.Outbox != (common.Address{}) {
				cfg.Outbox = override.Outbox
			}
			if override.NodeInterface != (common.Address{}) {
				cfg.NodeInterface = override.NodeInterface
			}
			if override.ArbSys != (common.Address{}) {
				cfg.ArbSys = override.ArbSys
			}
		}
		return NewArbitrum(p.Logger, p.L1, p.L2, cfg), nil
	}
}

func NewArbitrum(logger logging.Logger, l1, l2 ethclient.Client, cfg config.ArbitrumAdapterConfig) *Arbitrum {
	if cfg.ArbSys == (common.Address{}) {
		cfg.ArbSys = arbSysAddress
	}
	if cfg.NodeInterface == (common.Address{}) {
		cfg.NodeInterface = nodeInterfaceAddress
	}
	return &Arbitrum{
		logger:        logger.WithField("adapter", "arbitrum"),
		l1:            l1,
		l2:            l2,
		cfg:           cfg,
		nodeInterface: contract.NewContract(l2, cfg.NodeInterface, abi.Arbitrum),
	}
}

func (a *Arbitrum) Initialize(ctx context.Context) error {
	if a.cfg.Outbox == (common.Address{}) {
		if a.cfg.Bridge == (common.Address{}) {
			return fmt.Errorf("neither outbox nor bridge address is configured: %w", config.ErrInvalidConfig)
		}
		outbox, err := contract.NewContract(a.l1, a.cfg.Bridge, abi.Arbitrum).CallAddress(ctx, "activeOutbox")
		if err != nil {
			return fmt.Errorf("can't get active outbox: %w", err)
		}
		a.cfg.Outbox = outbox
	}
	a.outbox = contract.NewContract(a.l1, a.cfg.Outbox, abi.Arbitrum)
	a.logger.WithFields(logrus.Fields{
		"outbox":         a.cfg.Outbox,
		"node_interface": a.cfg.NodeInterface,
	}).Info("initialized arbitrum bridge adapter")
	return nil
}

func (a *Arbitrum) ConstructFinalizationTransaction(ctx context.Context, l2TxHash common.Hash) (*FinalizationResult, error) {
	logger := a.logger.WithField("l2_tx_hash", l2TxHash)
	res := &FinalizationResult{L2TxHash: l2TxHash}

	message, err := a.outgoingMessage(ctx, l2TxHash)
	if err != nil {
		return nil, err
	}

	confirmed, err := a.outbox.CallBool(ctx, "outboxEntryExists", message.BatchNumber)
	if err != nil {
		return nil, fmt.Errorf("can't check outbox entry: %w", err)
	}
	if !confirmed {
		logger.WithField("batch_number", message.BatchNumber).Debug("outbox entry is not confirmed yet")
		return res, nil
	}

	proof, err := a.messageBatchProof(ctx, message.BatchNumber, message.IndexInBatch.Uint64())
	if err != nil {
		return nil, err
	}

	entry, err := a.outbox.CallAddress(ctx, "outboxEntries", message.BatchNumber)
	if err != nil {
		return nil, fmt.Errorf("can't get outbox entry: %w", err)
	}
	if entry != (common.Address{}) {
		spent, err2 := contract.NewContract(a.l1, entry, abi.Arbitrum).CallBool(ctx, "spentOutput", common.BigToHash(proof.Path))
		if err2 != nil {
			return nil, fmt.Errorf("can't check spent output: %w", err2)
		}
		if spent {
			logger.Debug("outbox message is already executed")
			return res, nil
		}
	}

	data, err := a.outbox.Pack("executeTransaction",
		message.BatchNumber,
		proof.Proof,
		proof.Path,
		proof.L2Sender,
		proof.L1Dest,
		proof.L2Block,
		proof.L1Block,
		proof.Timestamp,
		proof.Amount,
		proof.CalldataForL1,
	)
	if err != nil {
		return nil, err
	}
	res.Transaction = &entity.Transaction{
		Target:  a.cfg.Outbox,
		Data:    data,
		Value:   new(big.Int),
		Message: "Finalized Arbitrum withdrawal",
		Level:   logrus.InfoLevel,
		Fields: logrus.Fields{
			"l2_tx_hash":   l2TxHash,
			"batch_number": message.BatchNumber,
			"index":        message.IndexInBatch,
		},
	}
	return res, nil
}

func (a *Arbitrum) outgoingMessage(ctx context.Context, l2TxHash common.Hash) (*abi.L2ToL1TransactionEvent, error) {
	receipt, err := a.l2.TransactionReceiptByHash(ctx, l2TxHash)
	if err != nil {
		return nil, fmt.Errorf("can't get receipt of %s: %w", l2TxHash, err)
	}
	if receipt == nil {
		return nil, fmt.Errorf("%s: %w", l2TxHash, ErrReceiptNotFound)
	}
	var messages []*abi.L2ToL1TransactionEvent
	eventID := abi.Arbitrum.EventID(abi.L2ToL1Transaction)
	for _, log := range receipt.Logs {
		if log.Address != a.cfg.ArbSys || len(log.Topics) == 0 || log.Topics[0] != eventID {
			continue
		}
		var event abi.L2ToL1TransactionEvent
		if err = abi.Arbitrum.UnpackLog(&event, abi.L2ToL1Transaction, log); err != nil {
			return nil, fmt.Errorf("can't decode outgoing message: %w", err)
		}
		messages = append(messages, &event)
	}
	if len(messages) != 1 {
		return nil, utils.Permanent(fmt.Errorf("found %d messages in %s: %w", len(messages), l2TxHash, ErrUnexpectedMessageCount))
	}
	return messages[0], nil
}

func (a *Arbitrum) messageBatchProof(ctx context.Context, batchNumber *big.Int, index uint64) (*abi.MessageBatchProof, error) {
	res, err := a.nodeInterface.Call(ctx, "lookupMessageBatchProof", batchNumber, index)
	if err != nil {
		return nil, fmt.Errorf("can't get message batch proof: %w", err)
	}
	var proof abi.MessageBatchProof
	if err = abi.Arbitrum.UnpackIntoInterface(&proof, "lookupMessageBatchProof", res); err != nil {
		return nil, fmt.Errorf("can't decode message batch proof: %w", err)
	}
	return &proof, nil
}
