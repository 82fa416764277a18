package abi

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type DepositData struct {
	ChainID            *big.Int       `abi:"chainId"`
	DepositID          uint64         `abi:"depositId"`
	L1Recipient        common.Address `abi:"l1Recipient"`
	L2Sender           common.Address `abi:"l2Sender"`
	Amount             *big.Int       `abi:"amount"`
	SlowRelayFeePct    uint64         `abi:"slowRelayFeePct"`
	InstantRelayFeePct uint64         `abi:"instantRelayFeePct"`
	QuoteTimestamp     uint32         `abi:"quoteTimestamp"`
}

type RelayData struct {
	RelayState       uint8          `abi:"relayState"`
	SlowRelayer      common.Address `abi:"slowRelayer"`
	RelayID          uint32         `abi:"relayId"`
	RealizedLpFeePct uint64         `abi:"realizedLpFeePct"`
	PriceRequestTime uint32         `abi:"priceRequestTime"`
	ProposerBond     *big.Int       `abi:"proposerBond"`
	FinalFee         *big.Int       `abi:"finalFee"`
}

type WhitelistTokenEvent struct {
	ChainID    *big.Int `abi:"chainId"`
	L1Token    common.Address
	L2Token    common.Address
	BridgePool common.Address
}

type DepositRelayedEvent struct {
	DepositHash            common.Hash
	DepositData            DepositData
	Relay                  RelayData
	RelayAncillaryDataHash common.Hash
}

// Events with a single non-indexed argument are decoded into the first struct field.

type RelaySpedUpEvent struct {
	Relay          RelayData
	DepositHash    common.Hash
	InstantRelayer common.Address
}

type RelayDisputedEvent struct {
	DepositHash common.Hash
	RelayHash   common.Hash
	Disputer    common.Address
}

type RelaySettledEvent struct {
	Relay       RelayData
	DepositHash common.Hash
	Caller      common.Address
}

type FundsDepositedEvent struct {
	ChainID            *big.Int `abi:"chainId"`
	DepositID          uint64   `abi:"depositId"`
	L1Recipient        common.Address
	L2Sender           common.Address
	L1Token            common.Address
	L2Token            common.Address
	Amount             *big.Int
	SlowRelayFeePct    uint64
	InstantRelayFeePct uint64
	QuoteTimestamp     uint64
}

type TokensBridgedEvent struct {
	L2Token               common.Address
	NumberOfTokensBridged *big.Int
	L1Gas                 *big.Int
	Caller                common.Address
}

//nolint:revive,stylecheck
type L2ToL1TransactionEvent struct {
	Caller       common.Address
	Destination  common.Address
	UniqueId     *big.Int
	BatchNumber  *big.Int
	IndexInBatch *big.Int
	ArbBlockNum  *big.Int
	EthBlockNum  *big.Int
	Timestamp    *big.Int
	Callvalue    *big.Int
	Data         []byte
}

type MessageBatchProof struct {
	Proof         [][32]byte
	Path          *big.Int
	L2Sender      common.Address
	L1Dest        common.Address
	L2Block       *big.Int
	L1Block       *big.Int
	Timestamp     *big.Int
	Amount        *big.Int
	CalldataForL1 []byte
}

type SentMessageEvent struct {
	Message []byte
}

type StateBatchAppendedEvent struct {
	BatchIndex        *big.Int
	BatchRoot         common.Hash
	BatchSize         *big.Int
	PrevTotalElements *big.Int
	ExtraData         []byte
}

type ChainBatchHeader struct {
	BatchIndex        *big.Int    `abi:"batchIndex"`
	BatchRoot         common.Hash `abi:"batchRoot"`
	BatchSize         *big.Int    `abi:"batchSize"`
	PrevTotalElements *big.Int    `abi:"prevTotalElements"`
	ExtraData         []byte      `abi:"extraData"`
}

type ChainInclusionProof struct {
	Index    *big.Int      `abi:"index"`
	Siblings []common.Hash `abi:"siblings"`
}

type L2MessageInclusionProof struct {
	StateRoot            common.Hash         `abi:"stateRoot"`
	StateRootBatchHeader ChainBatchHeader    `abi:"stateRootBatchHeader"`
	StateRootProof       ChainInclusionProof `abi:"stateRootProof"`
	StateTrieWitness     []byte              `abi:"stateTrieWitness"`
	StorageTrieWitness   []byte              `abi:"storageTrieWitness"`
}

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	uint64Type, _  = abi.NewType("uint64", "", nil)
)

// DepositHash is keccak256(abi.encode(depositData)), the key under which bridge pools store relays.
func DepositHash(data *DepositData) common.Hash {
	args := abi.Arguments{{Type: BridgePool.Methods["relayDeposit"].Inputs[0].Type}}
	encoded, err := args.Pack(data)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(encoded)
}

// InstantRelayHash is the key of the bridge pool instant relayers mapping.
func InstantRelayHash(depositHash common.Hash, realizedLpFeePct uint64) common.Hash {
	args := abi.Arguments{{Type: bytes32Type}, {Type: uint64Type}}
	encoded, err := args.Pack(depositHash, realizedLpFeePct)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(encoded)
}
