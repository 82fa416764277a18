package bridge

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/omni/insured-bridge-relayer/contract/abi"
	"github.com/omni/insured-bridge-relayer/entity"
)

func ToDepositData(d *entity.Deposit) *abi.DepositData {
	return &abi.DepositData{
		ChainID:            new(big.Int).SetUint64(d.ChainID),
		DepositID:          d.DepositID,
		L1Recipient:        d.L1Recipient,
		L2Sender:           d.L2Sender,
		Amount:             d.Amount,
		SlowRelayFeePct:    d.SlowRelayFeePct,
		InstantRelayFeePct: d.InstantRelayFeePct,
		QuoteTimestamp:     d.QuoteTimestamp,
	}
}

func ToRelayData(r *entity.Relay) *abi.RelayData {
	return &abi.RelayData{
		RelayState:       uint8(r.RelayState),
		SlowRelayer:      r.SlowRelayer,
		RelayID:          r.RelayID,
		RealizedLpFeePct: r.RealizedLpFeePct,
		PriceRequestTime: r.PriceRequestTime,
		ProposerBond:     r.ProposerBond,
		FinalFee:         r.FinalFee,
	}
}

// sortRelays orders relays by relay block, then deposit hash.
func sortRelays(relays []*entity.Relay) {
	sort.Slice(relays, func(i, j int) bool {
		if relays[i].BlockNumber != relays[j].BlockNumber {
			return relays[i].BlockNumber < relays[j].BlockNumber
		}
		return bytes.Compare(relays[i].DepositHash[:], relays[j].DepositHash[:]) < 0
	})
}
