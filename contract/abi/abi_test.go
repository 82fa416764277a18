package abi_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/omni/insured-bridge-relayer/contract/abi"
)

var (
	whitelistTokenTopic = crypto.Keccak256Hash([]byte("WhitelistToken(uint256,address,address,address)"))
	tokensBridgedTopic  = crypto.Keccak256Hash([]byte("TokensBridged(address,uint256,uint256,address)"))
	l1Token             = common.HexToAddress("0x01")
	l2Token             = common.HexToAddress("0x02")
	bridgePool          = common.HexToAddress("0x03")
)

func testDepositData() *abi.DepositData {
	return &abi.DepositData{
		ChainID:            big.NewInt(10),
		DepositID:          7,
		L1Recipient:        common.HexToAddress("0x11"),
		L2Sender:           common.HexToAddress("0x12"),
		Amount:             big.NewInt(1e18),
		SlowRelayFeePct:    1e15,
		InstantRelayFeePct: 2e15,
		QuoteTimestamp:     1640000000,
	}
}

func TestABI_AllEvents(t *testing.T) {
	t.Parallel()

	require.Equal(t, map[string]bool{
		"event WhitelistToken(uint256 chainId, address indexed l1Token, address indexed l2Token, address indexed bridgePool)": true,
	}, abi.BridgeAdmin.AllEvents())
	require.Len(t, abi.BridgePool.AllEvents(), 4)
	require.Equal(t, whitelistTokenTopic, abi.BridgeAdmin.EventID(abi.WhitelistToken))
	require.Equal(t, tokensBridgedTopic, abi.DepositBox.EventID(abi.TokensBridged))
}

func TestABI_FindMatchingEventABI(t *testing.T) {
	t.Parallel()

	event := abi.BridgeAdmin.FindMatchingEventABI([]common.Hash{whitelistTokenTopic, l1Token.Hash(), l2Token.Hash(), bridgePool.Hash()})
	require.NotNil(t, event)
	require.Equal(t, abi.WhitelistToken, event.Name)
	event = abi.BridgeAdmin.FindMatchingEventABI([]common.Hash{whitelistTokenTopic, l1Token.Hash()})
	require.Nil(t, event)
	event = abi.BridgeAdmin.FindMatchingEventABI([]common.Hash{tokensBridgedTopic, l2Token.Hash(), l1Token.Hash()})
	require.Nil(t, event)
}

func TestABI_ParseLog(t *testing.T) {
	t.Parallel()

	chainID := big.NewInt(10)
	data := common.BigToHash(chainID).Bytes()

	t.Run("should parse valid whitelist event", func(t *testing.T) {
		t.Parallel()
		log := &types.Log{Topics: []common.Hash{whitelistTokenTopic, l1Token.Hash(), l2Token.Hash(), bridgePool.Hash()}, Data: data}
		event, values, err := abi.BridgeAdmin.ParseLog(log)
		require.NoError(t, err)
		require.Equal(t, "event WhitelistToken(uint256 chainId, address indexed l1Token, address indexed l2Token, address indexed bridgePool)", event)
		require.Equal(t, map[string]interface{}{
			"chainId":    chainID,
			"l1Token":    l1Token,
			"l2Token":    l2Token,
			"bridgePool": bridgePool,
		}, values)
	})

	t.Run("should not parse anonymous event", func(t *testing.T) {
		t.Parallel()
		event, values, err := abi.BridgeAdmin.ParseLog(&types.Log{Data: data})
		require.ErrorIs(t, err, abi.ErrInvalidEvent)
		require.Empty(t, event)
		require.Empty(t, values)
	})

	t.Run("should skip unknown event", func(t *testing.T) {
		t.Parallel()
		event, values, err := abi.BridgeAdmin.ParseLog(&types.Log{Topics: []common.Hash{tokensBridgedTopic}, Data: data})
		require.NoError(t, err)
		require.Empty(t, event)
		require.Empty(t, values)
	})

	t.Run("should fail to decode truncated data", func(t *testing.T) {
		t.Parallel()
		log := &types.Log{Topics: []common.Hash{whitelistTokenTopic, l1Token.Hash(), l2Token.Hash(), bridgePool.Hash()}, Data: data[:16]}
		_, _, err := abi.BridgeAdmin.ParseLog(log)
		require.Error(t, err)
	})
}

func TestABI_UnpackLog(t *testing.T) {
	t.Parallel()

	deposit := testDepositData()
	relay := abi.RelayData{
		RelayState:       1,
		SlowRelayer:      common.HexToAddress("0x21"),
		RelayID:          3,
		RealizedLpFeePct: 5e15,
		PriceRequestTime: 1640000100,
		ProposerBond:     big.NewInt(4e16),
		FinalFee:         big.NewInt(1),
	}
	ancillary := common.HexToHash("0xabcdef")
	depositHash := abi.DepositHash(deposit)

	event := abi.BridgePool.Events[abi.DepositRelayed]
	data, err := event.Inputs.NonIndexed().Pack(deposit, relay, ancillary)
	require.NoError(t, err)

	var res abi.DepositRelayedEvent
	err = abi.BridgePool.UnpackLog(&res, abi.DepositRelayed, &types.Log{
		Topics: []common.Hash{event.ID, depositHash},
		Data:   data,
	})
	require.NoError(t, err)
	require.Equal(t, depositHash, res.DepositHash)
	require.Equal(t, *deposit, res.DepositData)
	require.Equal(t, relay, res.Relay)
	require.Equal(t, ancillary, res.RelayAncillaryDataHash)

	err = abi.BridgePool.UnpackLog(&res, abi.RelaySettled, &types.Log{
		Topics: []common.Hash{event.ID, depositHash},
		Data:   data,
	})
	require.ErrorIs(t, err, abi.ErrEventSignatureMismatch)
}

func TestDepositHash(t *testing.T) {
	t.Parallel()

	deposit := testDepositData()
	words := [][]byte{
		common.LeftPadBytes(deposit.ChainID.Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(deposit.DepositID).Bytes(), 32),
		common.LeftPadBytes(deposit.L1Recipient.Bytes(), 32),
		common.LeftPadBytes(deposit.L2Sender.Bytes(), 32),
		common.LeftPadBytes(deposit.Amount.Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(deposit.SlowRelayFeePct).Bytes(), 32),
		common.LeftPadBytes(new(big.Int).SetUint64(deposit.InstantRelayFeePct).Bytes(), 32),
		common.LeftPadBytes(big.NewInt(int64(deposit.QuoteTimestamp)).Bytes(), 32),
	}
	require.Equal(t, crypto.Keccak256Hash(words...), abi.DepositHash(deposit))

	other := testDepositData()
	other.DepositID++
	require.NotEqual(t, abi.DepositHash(deposit), abi.DepositHash(other))

	require.NotEqual(t, abi.InstantRelayHash(abi.DepositHash(deposit), 1), abi.InstantRelayHash(abi.DepositHash(deposit), 2))
}
