package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
)

// ErrMalformedEvent marks a log that cannot be decoded into a TransferEvent.
// Such events are skipped, never retried.
var ErrMalformedEvent = errors.New("malformed transfer event")

// Key is the natural identity of a transfer.
type Key struct {
	TxHash   string
	LogIndex int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.TxHash, k.LogIndex)
}

// TransferEvent is a decoded Transfer(address,address,uint256) log.
type TransferEvent struct {
	From         string
	To           string
	Amount       string // decimal string scaled by token decimals
	BlockNumber  int64
	TxHash       string
	LogIndex     int
	BlockTime    time.Time
	TokenAddress string
	TokenSymbol  string
}

func (e TransferEvent) Key() Key {
	return Key{TxHash: e.TxHash, LogIndex: e.LogIndex}
}

// Normalize lower-cases hex identifiers so the same transfer always maps to
// the same natural key and the same stats rows.
func (e TransferEvent) Normalize() TransferEvent {
	e.From = strings.ToLower(e.From)
	e.To = strings.ToLower(e.To)
	e.TxHash = strings.ToLower(e.TxHash)
	e.TokenAddress = strings.ToLower(e.TokenAddress)
	return e
}

func (e TransferEvent) Validate() error {
	switch {
	case e.TxHash == "":
		return fmt.Errorf("%w: empty tx hash", ErrMalformedEvent)
	case e.LogIndex < 0:
		return fmt.Errorf("%w: negative log index %d", ErrMalformedEvent, e.LogIndex)
	case e.BlockNumber < 0:
		return fmt.Errorf("%w: negative block number %d", ErrMalformedEvent, e.BlockNumber)
	case e.From == "" || e.To == "":
		return fmt.Errorf("%w: missing participant address", ErrMalformedEvent)
	case e.TokenAddress == "":
		return fmt.Errorf("%w: missing token address", ErrMalformedEvent)
	}
	amt, err := decimal.NewFromString(e.Amount)
	if err != nil {
		return fmt.Errorf("%w: amount %q: %v", ErrMalformedEvent, e.Amount, err)
	}
	if amt.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrMalformedEvent, e.Amount)
	}
	return nil
}

// Record converts the event into its durable form.
func (e TransferEvent) Record(source model.EventSource) *model.TransferRecord {
	n := e.Normalize()
	return &model.TransferRecord{
		TxHash:       n.TxHash,
		LogIndex:     n.LogIndex,
		BlockNumber:  n.BlockNumber,
		FromAddress:  n.From,
		ToAddress:    n.To,
		Amount:       n.Amount,
		TokenAddress: n.TokenAddress,
		TokenSymbol:  n.TokenSymbol,
		BlockTime:    n.BlockTime,
		Source:       source,
	}
}

// Less orders events by chain position.
func Less(a, b TransferEvent) bool {
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber < b.BlockNumber
	}
	return a.LogIndex < b.LogIndex
}
