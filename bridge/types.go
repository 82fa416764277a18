package bridge

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type BlocksRange struct {
	From uint64
	To   uint64
}

func SplitBlockRange(fromBlock uint64, toBlock uint64, maxSize uint64) []*BlocksRange {
	batches := make([]*BlocksRange, 0, 10)
	for fromBlock <= toBlock {
		batchToBlock := fromBlock + maxSize - 1
		if batchToBlock > toBlock {
			batchToBlock = toBlock
		}
		batches = append(batches, &BlocksRange{
			From: fromBlock,
			To:   batchToBlock,
		})
		fromBlock += maxSize
	}
	return batches
}

// WhitelistedToken is a route enabled by the bridge admin for a particular L2 chain.
type WhitelistedToken struct {
	ChainID    uint64
	L1Token    common.Address
	L2Token    common.Address
	BridgePool common.Address
	// BlockNumber of the WhitelistToken event.
	BlockNumber uint64
}

type TokensBridged struct {
	L2Token         common.Address
	Amount          *big.Int
	TransactionHash common.Hash
	BlockNumber     uint64
}
