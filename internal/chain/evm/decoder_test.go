package evm

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/token-transfer-indexer/internal/chain/evm/rpc"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/event"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
)

var (
	testFrom = common.HexToAddress("0x00000000000000000000000000000000000000Aa")
	testTo   = common.HexToAddress("0x00000000000000000000000000000000000000bB")
)

func transferLog(token common.Address, from, to common.Address, amount *big.Int, block uint64, index uint) types.Log {
	return types.Log{
		Address:     token,
		Topics:      []common.Hash{TransferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        common.LeftPadBytes(amount.Bytes(), 32),
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block*1000) + int64(index))),
		Index:       index,
	}
}

func rpcLogOf(lg types.Log) *rpc.Log {
	topics := make([]string, len(lg.Topics))
	for i, t := range lg.Topics {
		topics[i] = t.Hex()
	}
	return &rpc.Log{
		Address:         lg.Address.Hex(),
		Topics:          topics,
		Data:            hexutil.Encode(lg.Data),
		BlockNumber:     hexutil.EncodeUint64(lg.BlockNumber),
		BlockHash:       lg.BlockHash.Hex(),
		TransactionHash: lg.TxHash.Hex(),
		LogIndex:        hexutil.EncodeUint64(uint64(lg.Index)),
		Removed:         lg.Removed,
	}
}

func TestTransferTopic(t *testing.T) {
	assert.Equal(t, crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")), TransferTopic)
}

func TestDecoder_Decode(t *testing.T) {
	usdc := model.DefaultToken()
	d := NewDecoder([]model.Token{usdc})
	ts := time.Unix(1_700_000_000, 0)

	lg := transferLog(common.HexToAddress(usdc.Address), testFrom, testTo, big.NewInt(10_500_000), 42, 3)
	ev, err := d.Decode(lg, ts)
	require.NoError(t, err)

	assert.Equal(t, "0x00000000000000000000000000000000000000aa", ev.From)
	assert.Equal(t, "0x00000000000000000000000000000000000000bb", ev.To)
	assert.Equal(t, "10.5", ev.Amount)
	assert.Equal(t, int64(42), ev.BlockNumber)
	assert.Equal(t, 3, ev.LogIndex)
	assert.Equal(t, ts.UTC(), ev.BlockTime)
	assert.Equal(t, usdc.Address, ev.TokenAddress)
	assert.Equal(t, "USDC", ev.TokenSymbol)
}

func TestDecoder_Malformed(t *testing.T) {
	usdc := model.DefaultToken()
	d := NewDecoder([]model.Token{usdc})
	tokenAddr := common.HexToAddress(usdc.Address)
	good := transferLog(tokenAddr, testFrom, testTo, big.NewInt(1), 1, 0)

	tests := []struct {
		name   string
		mutate func(l *types.Log)
	}{
		{"untracked contract", func(l *types.Log) { l.Address = common.HexToAddress("0x1") }},
		{"missing indexed topic", func(l *types.Log) { l.Topics = l.Topics[:2] }},
		{"wrong event signature", func(l *types.Log) { l.Topics[0] = common.HexToHash("0x1234") }},
		{"short data", func(l *types.Log) { l.Data = l.Data[:31] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg := good
			lg.Topics = append([]common.Hash(nil), good.Topics...)
			tt.mutate(&lg)
			_, err := d.Decode(lg, time.Now())
			assert.ErrorIs(t, err, event.ErrMalformedEvent)
		})
	}
}

func TestFromRPCLog_RoundTrip(t *testing.T) {
	lg := transferLog(common.HexToAddress(model.DefaultTokenAddress), testFrom, testTo, big.NewInt(7), 99, 12)

	got, err := FromRPCLog(rpcLogOf(lg))
	require.NoError(t, err)
	assert.Equal(t, lg.Address, got.Address)
	assert.Equal(t, lg.Topics, got.Topics)
	assert.Equal(t, lg.Data, got.Data)
	assert.Equal(t, lg.BlockNumber, got.BlockNumber)
	assert.Equal(t, lg.Index, got.Index)
	assert.Equal(t, lg.TxHash, got.TxHash)
}

func TestFromRPCLog_BadHex(t *testing.T) {
	lg := rpcLogOf(transferLog(common.HexToAddress(model.DefaultTokenAddress), testFrom, testTo, big.NewInt(7), 1, 0))
	lg.BlockNumber = "zz"

	_, err := FromRPCLog(lg)
	assert.ErrorIs(t, err, event.ErrMalformedEvent)
}

func TestDecoder_AddressesSorted(t *testing.T) {
	d := NewDecoder([]model.Token{
		{Address: "0x00000000000000000000000000000000000000ff", Symbol: "B", Decimals: 18},
		{Address: "0x0000000000000000000000000000000000000001", Symbol: "A", Decimals: 6},
	})
	addrs := d.Addresses()
	require.Len(t, addrs, 2)
	assert.Equal(t, common.HexToAddress("0x01"), addrs[0])
}
