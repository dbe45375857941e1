package model

import (
	"time"

	"github.com/google/uuid"
)

// TransferRecord is the durable form of a transfer. One row per (TxHash, LogIndex);
// rows are immutable once written.
type TransferRecord struct {
	ID           uuid.UUID   `db:"id"`
	TxHash       string      `db:"tx_hash"`
	LogIndex     int         `db:"log_index"`
	BlockNumber  int64       `db:"block_number"`
	FromAddress  string      `db:"from_address"`
	ToAddress    string      `db:"to_address"`
	Amount       string      `db:"amount"` // NUMERIC as string
	TokenAddress string      `db:"token_address"`
	TokenSymbol  string      `db:"token_symbol"`
	BlockTime    time.Time   `db:"block_time"`
	Source       EventSource `db:"source"`
	CreatedAt    time.Time   `db:"created_at"`
}

func (r *TransferRecord) IsSelfTransfer() bool {
	return r.FromAddress == r.ToAddress
}
