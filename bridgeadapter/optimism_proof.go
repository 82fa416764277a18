package bridgeadapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"

	"github.com/omni/insured-bridge-relayer/contract"
	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/ethclient"
	"github.com/omni/insured-bridge-relayer/logging"
)

var (
	ErrStateRootMismatch = errors.New("computed state batch root does not match the committed one")
	ErrEmptyStorageProof = errors.New("storage proof is missing")
)

var (
	l2ToL1MessagePasserAddress = common.HexToAddress("0x4200000000000000000000000000000000000000")
	l2MessengerAddress         = common.HexToAddress("0x4200000000000000000000000000000000000007")
	emptyLeaf                  = crypto.Keccak256Hash(make([]byte, 32))
)

// InclusionProver proves that an L2 message was committed to the L1 state commitment chain.
type InclusionProver interface {
	// MessageProof returns nil proof when the L2 block is not yet covered by a state batch.
	MessageProof(ctx context.Context, l2Block uint64, xDomainCalldata []byte) (*abi.L2MessageInclusionProof, error)
}

type sccProver struct {
	logger     logging.Logger
	l1         ethclient.Client
	l2         ethclient.Client
	scc        *contract.Contract
	startBlock uint64
	maxRange   uint64

	mu      sync.Mutex
	batches []*abi.StateBatchAppendedEvent
	scanned uint64
}

func NewSCCProver(logger logging.Logger, l1, l2 ethclient.Client, scc common.Address, startBlock uint64) InclusionProver {
	return &sccProver{
		logger:     logger,
		l1:         l1,
		l2:         l2,
		scc:        contract.NewContract(l1, scc, abi.Optimism),
		startBlock: startBlock,
		maxRange:   10000,
	}
}

func (p *sccProver) MessageProof(ctx context.Context, l2Block uint64, xDomainCalldata []byte) (*abi.L2MessageInclusionProof, error) {
	// Each OVM1 block holds a single transaction.
	batch, err := p.findBatch(ctx, l2Block-1)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		p.logger.WithField("l2_block", l2Block).Debug("state batch is not appended yet")
		return nil, nil
	}

	size := batch.BatchSize.Uint64()
	prev := batch.PrevTotalElements.Uint64()
	roots := make([]common.Hash, size)
	for i := uint64(0); i < size; i++ {
		header, err2 := p.l2.HeaderByNumber(ctx, prev+i+1)
		if err2 != nil {
			return nil, fmt.Errorf("can't get l2 header %d: %w", prev+i+1, err2)
		}
		roots[i] = header.Root
	}
	index := l2Block - 1 - prev
	root, siblings := MerkleProof(roots, int(index))
	if root != batch.BatchRoot {
		return nil, fmt.Errorf("batch %s: %w", batch.BatchIndex, ErrStateRootMismatch)
	}

	stateWitness, storageWitness, err := p.trieWitnesses(ctx, l2Block, xDomainCalldata)
	if err != nil {
		return nil, err
	}

	return &abi.L2MessageInclusionProof{
		StateRoot: roots[index],
		StateRootBatchHeader: abi.ChainBatchHeader{
			BatchIndex:        batch.BatchIndex,
			BatchRoot:         batch.BatchRoot,
			BatchSize:         batch.BatchSize,
			PrevTotalElements: batch.PrevTotalElements,
			ExtraData:         batch.ExtraData,
		},
		StateRootProof: abi.ChainInclusionProof{
			Index:    new(big.Int).SetUint64(index),
			Siblings: siblings,
		},
		StateTrieWitness:   stateWitness,
		StorageTrieWitness: storageWitness,
	}, nil
}

// findBatch returns the appended state batch covering txIndex, scanning new L1 blocks as needed.
func (p *sccProver) findBatch(ctx context.Context, txIndex uint64) (*abi.StateBatchAppendedEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if batch := p.lookupBatch(txIndex); batch != nil {
		return batch, nil
	}

	head, err := p.l1.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get latest L1 block: %w", err)
	}
	from := p.startBlock
	if p.scanned > 0 {
		from = p.scanned + 1
	}
	for from <= head {
		to := from + p.maxRange - 1
		if to > head {
			to = head
		}
		logs, err2 := p.scc.FilterEvents(ctx, abi.StateBatchAppended, from, to)
		if err2 != nil {
			return nil, err2
		}
		for i := range logs {
			var event abi.StateBatchAppendedEvent
			if err3 := p.scc.UnpackLog(&event, abi.StateBatchAppended, &logs[i]); err3 != nil {
				return nil, fmt.Errorf("can't decode state batch event: %w", err3)
			}
			p.batches = append(p.batches, &event)
		}
		p.scanned = to
		from = to + 1
	}
	p.logger.WithFields(logrus.Fields{
		"batches":    len(p.batches),
		"head_block": head,
	}).Debug("scanned state commitment chain")

	return p.lookupBatch(txIndex), nil
}

func (p *sccProver) lookupBatch(txIndex uint64) *abi.StateBatchAppendedEvent {
	for _, batch := range p.batches {
		prev := batch.PrevTotalElements.Uint64()
		if prev <= txIndex && txIndex < prev+batch.BatchSize.Uint64() {
			return batch
		}
	}
	return nil
}

func (p *sccProver) trieWitnesses(ctx context.Context, l2Block uint64, xDomainCalldata []byte) ([]byte, []byte, error) {
	messageHash := crypto.Keccak256(xDomainCalldata, l2MessengerAddress.Bytes())
	slot := crypto.Keccak256Hash(messageHash, make([]byte, 32))

	res, err := p.l2.GetProof(ctx, l2ToL1MessagePasserAddress, []string{slot.Hex()}, l2Block)
	if err != nil {
		return nil, nil, fmt.Errorf("can't get storage proof: %w", err)
	}
	if len(res.StorageProof) == 0 {
		return nil, nil, ErrEmptyStorageProof
	}
	stateWitness, err := encodeWitness(res.AccountProof)
	if err != nil {
		return nil, nil, err
	}
	storageWitness, err := encodeWitness(res.StorageProof[0].Proof)
	if err != nil {
		return nil, nil, err
	}
	return stateWitness, storageWitness, nil
}

func encodeWitness(nodes []string) ([]byte, error) {
	raw := make([][]byte, len(nodes))
	for i, node := range nodes {
		b, err := hexutil.Decode(node)
		if err != nil {
			return nil, fmt.Errorf("can't decode trie node: %w", err)
		}
		raw[i] = b
	}
	res, err := rlp.EncodeToBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("can't encode trie witness: %w", err)
	}
	return res, nil
}

// MerkleProof builds the root and sibling path of leaves[index] in a keccak256 binary tree.
// Leaves are padded to a power of two with the hash of 32 zero bytes. Pairs are not sorted.
func MerkleProof(leaves []common.Hash, index int) (common.Hash, []common.Hash) {
	size := 1
	for size < len(leaves) {
		size *= 2
	}
	level := make([]common.Hash, size)
	copy(level, leaves)
	for i := len(leaves); i < size; i++ {
		level[i] = emptyLeaf
	}

	var siblings []common.Hash
	for len(level) > 1 {
		siblings = append(siblings, level[index^1])
		next := make([]common.Hash, len(level)/2)
		for i := range next {
			next[i] = crypto.Keccak256Hash(level[2*i][:], level[2*i+1][:])
		}
		level = next
		index /= 2
	}
	return level[0], siblings
}

// VerifyMerkleProof checks that leaf at index hashes up to root through siblings.
func VerifyMerkleProof(root, leaf common.Hash, index int, siblings []common.Hash) bool {
	node := leaf
	for _, sibling := range siblings {
		if index%2 == 0 {
			node = crypto.Keccak256Hash(node[:], sibling[:])
		} else {
			node = crypto.Keccak256Hash(sibling[:], node[:])
		}
		index /= 2
	}
	return bytes.Equal(node[:], root[:])
}
