package presenter

import (
	"fmt"

	"github.com/omni/insured-bridge-relayer/entity"
)

var formats = map[string]string{
	"1":      "https://etherscan.io/tx/%s",
	"5":      "https://goerli.etherscan.io/tx/%s",
	"10":     "https://optimistic.etherscan.io/tx/%s",
	"69":     "https://kovan-optimistic.etherscan.io/tx/%s",
	"288":    "https://blockexplorer.boba.network/tx/%s",
	"42161":  "https://arbiscan.io/tx/%s",
	"421611": "https://testnet.arbiscan.io/tx/%s",
}

func txLink(record *entity.TransactionRecord) string {
	if format, ok := formats[record.ChainID]; ok {
		return fmt.Sprintf(format, record.TransactionHash)
	}
	return record.TransactionHash.String()
}

func txStatus(record *entity.TransactionRecord) string {
	switch {
	case record.Status == nil:
		return "pending"
	case *record.Status:
		return "mined"
	default:
		return "reverted"
	}
}

func recordToTransactionInfo(record *entity.TransactionRecord) *TransactionInfo {
	return &TransactionInfo{
		ChainID:     record.ChainID,
		Hash:        record.TransactionHash,
		Link:        txLink(record),
		Sender:      record.Sender,
		Target:      record.Target,
		Nonce:       record.Nonce,
		Message:     record.Message,
		Status:      txStatus(record),
		BlockNumber: record.BlockNumber,
		GasUsed:     record.GasUsed,
		SubmittedAt: record.CreatedAt,
	}
}
