package evm

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/emperorhan/token-transfer-indexer/internal/chain/evm/rpc"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/event"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
)

// TransferTopic is keccak256("Transfer(address,address,uint256)").
var TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// Decoder turns ERC-20 Transfer logs of the tracked token set into
// TransferEvents.
type Decoder struct {
	tokens map[common.Address]model.Token
}

func NewDecoder(tokens []model.Token) *Decoder {
	m := make(map[common.Address]model.Token, len(tokens))
	for _, t := range tokens {
		m[common.HexToAddress(t.Address)] = t
	}
	return &Decoder{tokens: m}
}

// Addresses returns the tracked contract addresses in a stable order.
func (d *Decoder) Addresses() []common.Address {
	out := make([]common.Address, 0, len(d.tokens))
	for addr := range d.tokens {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].Hex(), out[j].Hex()) < 0
	})
	return out
}

// Decode converts one log. blockTime is the timestamp of the log's block.
func (d *Decoder) Decode(lg types.Log, blockTime time.Time) (event.TransferEvent, error) {
	token, ok := d.tokens[lg.Address]
	if !ok {
		return event.TransferEvent{}, fmt.Errorf("%w: untracked contract %s", event.ErrMalformedEvent, lg.Address.Hex())
	}
	if len(lg.Topics) != 3 || lg.Topics[0] != TransferTopic {
		return event.TransferEvent{}, fmt.Errorf("%w: tx %s log %d: unexpected topics (%d)",
			event.ErrMalformedEvent, lg.TxHash.Hex(), lg.Index, len(lg.Topics))
	}
	if len(lg.Data) != 32 {
		return event.TransferEvent{}, fmt.Errorf("%w: tx %s log %d: data length %d",
			event.ErrMalformedEvent, lg.TxHash.Hex(), lg.Index, len(lg.Data))
	}

	amount := new(big.Int).SetBytes(lg.Data)
	ev := event.TransferEvent{
		From:         common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
		To:           common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		Amount:       token.FormatAmount(amount),
		BlockNumber:  int64(lg.BlockNumber),
		TxHash:       lg.TxHash.Hex(),
		LogIndex:     int(lg.Index),
		BlockTime:    blockTime.UTC(),
		TokenAddress: token.Address,
		TokenSymbol:  token.Symbol,
	}
	ev = ev.Normalize()
	if err := ev.Validate(); err != nil {
		return event.TransferEvent{}, err
	}
	return ev, nil
}

// FromRPCLog converts the JSON-RPC representation of a log.
func FromRPCLog(l *rpc.Log) (types.Log, error) {
	if l == nil {
		return types.Log{}, fmt.Errorf("%w: nil log", event.ErrMalformedEvent)
	}
	blockNumber, err := hexutil.DecodeUint64(l.BlockNumber)
	if err != nil {
		return types.Log{}, fmt.Errorf("%w: block number %q: %v", event.ErrMalformedEvent, l.BlockNumber, err)
	}
	index, err := hexutil.DecodeUint64(l.LogIndex)
	if err != nil {
		return types.Log{}, fmt.Errorf("%w: log index %q: %v", event.ErrMalformedEvent, l.LogIndex, err)
	}
	var data []byte
	if l.Data != "" {
		if data, err = hexutil.Decode(l.Data); err != nil {
			return types.Log{}, fmt.Errorf("%w: data: %v", event.ErrMalformedEvent, err)
		}
	}
	if !common.IsHexAddress(l.Address) {
		return types.Log{}, fmt.Errorf("%w: address %q", event.ErrMalformedEvent, l.Address)
	}

	topics := make([]common.Hash, len(l.Topics))
	for i, t := range l.Topics {
		b, err := hexutil.Decode(t)
		if err != nil || len(b) != common.HashLength {
			return types.Log{}, fmt.Errorf("%w: topic %d %q", event.ErrMalformedEvent, i, t)
		}
		topics[i] = common.BytesToHash(b)
	}

	return types.Log{
		Address:     common.HexToAddress(l.Address),
		Topics:      topics,
		Data:        data,
		BlockNumber: blockNumber,
		BlockHash:   common.HexToHash(l.BlockHash),
		TxHash:      common.HexToHash(l.TransactionHash),
		Index:       uint(index),
		Removed:     l.Removed,
	}, nil
}
