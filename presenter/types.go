package presenter

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/insured-bridge-relayer/config"
)

type TransactionInfo struct {
	ChainID     string
	Hash        common.Hash
	Link        string
	Sender      common.Address
	Target      common.Address
	Nonce       uint64
	Message     string
	Status      string
	BlockNumber *uint64 `json:",omitempty"`
	GasUsed     *uint64 `json:",omitempty"`
	SubmittedAt *time.Time
}

type ActionsInfo struct {
	EnabledActions      config.EnabledActions
	WhitelistedChainIDs []uint64
	L2ChainIDs          []uint64
}
