package bridge_test

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/omni/insured-bridge-relayer/bridge"
	"github.com/omni/insured-bridge-relayer/contract/abi"
)

func addDeposit(client *fakeClient, block uint64, id uint64, token common.Address) common.Hash {
	data := depositData(id, 1500)
	client.addLog(abi.DepositBox, depositBox, block, abi.FundsDeposited, nil,
		data.ChainID, data.DepositID, data.L1Recipient, data.L2Sender, token, l2Token,
		data.Amount, data.SlowRelayFeePct, data.InstantRelayFeePct, uint64(data.QuoteTimestamp))
	return abi.DepositHash(data)
}

func newL2Client(client *fakeClient, lookback uint64) *bridge.L2Client {
	return bridge.NewL2Client(logrus.New(), client, bridge.L2Options{
		ChainID:           10,
		DepositBox:        depositBox,
		DeployBlock:       5,
		MaxBlockRangeSize: 50,
		LookbackWindow:    lookback,
	})
}

func TestL2Client_Update(t *testing.T) {
	t.Parallel()

	client := newFakeClient(200)
	first := addDeposit(client, 10, 1, l1Token)
	second := addDeposit(client, 150, 2, l1Token)
	other := addDeposit(client, 160, 3, common.HexToAddress("0x77"))
	client.addLog(abi.DepositBox, depositBox, 170, abi.TokensBridged,
		[]common.Hash{l2Token.Hash(), slowRelayer.Hash()}, big.NewInt(5e18), big.NewInt(0))

	l2 := newL2Client(client, 0)
	require.NoError(t, l2.Update(context.Background()))

	deposits := l2.GetAllDeposits()
	require.Len(t, deposits, 3)
	require.Equal(t, []common.Hash{first, second, other}, []common.Hash{deposits[0].DepositHash, deposits[1].DepositHash, deposits[2].DepositHash})
	require.Len(t, l2.GetAllDepositsForL1Token(l1Token), 2)

	deposit := l2.GetDepositByHash(second)
	require.NotNil(t, deposit)
	require.Equal(t, uint64(10), deposit.ChainID)
	require.Equal(t, uint64(2), deposit.DepositID)
	require.Equal(t, l1Token, deposit.L1Token)
	require.Equal(t, l2Token, deposit.L2Token)
	require.Equal(t, uint32(1500), deposit.QuoteTimestamp)
	require.Equal(t, uint64(150), deposit.BlockNumber)
	require.Equal(t, depositBox, deposit.DepositContract)
	require.Nil(t, l2.GetDepositByHash(common.HexToHash("0x01")))

	bridged := l2.TokensBridgedTransactions()
	require.Len(t, bridged, 1)
	require.Equal(t, l2Token, bridged[0].L2Token)
	require.Equal(t, big.NewInt(5e18), bridged[0].Amount)
	require.Equal(t, uint64(170), bridged[0].BlockNumber)

	client.head = 300
	third := addDeposit(client, 250, 4, l1Token)
	require.NoError(t, l2.Update(context.Background()))
	require.Len(t, l2.GetAllDeposits(), 4)
	require.NotNil(t, l2.GetDepositByHash(third))
}

func TestL2Client_LookbackWindow(t *testing.T) {
	t.Parallel()

	client := newFakeClient(200)
	old := addDeposit(client, 10, 1, l1Token)
	recent := addDeposit(client, 150, 2, l1Token)

	l2 := newL2Client(client, 100)
	require.NoError(t, l2.Update(context.Background()))
	require.Nil(t, l2.GetDepositByHash(old))
	require.NotNil(t, l2.GetDepositByHash(recent))

	deposits, err := l2.GetDepositEvents(context.Background(), l2.DeployBlock(), 200)
	require.NoError(t, err)
	require.Len(t, deposits, 2)
	require.Equal(t, old, deposits[0].DepositHash)
}

func TestL2Client_LookbackKeepsBridgedHistory(t *testing.T) {
	t.Parallel()

	client := newFakeClient(200)
	old := addDeposit(client, 10, 1, l1Token)
	client.addLog(abi.DepositBox, depositBox, 20, abi.TokensBridged,
		[]common.Hash{l2Token.Hash(), slowRelayer.Hash()}, big.NewInt(1e18), big.NewInt(0))
	client.addLog(abi.DepositBox, depositBox, 170, abi.TokensBridged,
		[]common.Hash{l2Token.Hash(), slowRelayer.Hash()}, big.NewInt(2e18), big.NewInt(0))

	l2 := newL2Client(client, 100)
	require.NoError(t, l2.Update(context.Background()))
	require.Nil(t, l2.GetDepositByHash(old))

	bridged := l2.TokensBridgedTransactions()
	require.Len(t, bridged, 2)
	require.Equal(t, uint64(20), bridged[0].BlockNumber)
	require.Equal(t, big.NewInt(1e18), bridged[0].Amount)
	require.Equal(t, uint64(170), bridged[1].BlockNumber)

	client.head = 300
	require.NoError(t, l2.Update(context.Background()))
	require.Len(t, l2.TokensBridgedTransactions(), 2)
}

func TestL2Client_BridgeTokensTx(t *testing.T) {
	t.Parallel()

	l2 := newL2Client(newFakeClient(1), 0)
	tx, err := l2.BridgeTokensTx(l2Token)
	require.NoError(t, err)
	require.Equal(t, depositBox, tx.Target)
	require.True(t, bytes.HasPrefix(tx.Data, abi.DepositBox.Methods["bridgeTokens"].ID))
}
