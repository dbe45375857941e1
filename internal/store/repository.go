package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
)

//go:generate mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks

// ErrWriteConflict is returned when a write lost a lock race against another
// transaction (deadlock, serialization failure, lock wait timeout). The whole
// unit of work may be retried.
var ErrWriteConflict = errors.New("write conflict")

// TxBeginner abstracts the ability to begin a database transaction.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Ledger runs units of work that touch transfer records, stats rows and the
// checkpoint atomically.
type Ledger interface {
	// WithTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

// LedgerTx is the set of writes available inside a Ledger transaction.
// Callers must touch rows in the order transfer, stats (ascending address),
// checkpoint.
type LedgerTx interface {
	// InsertTransfer stores rec if its (tx hash, log index) is new and
	// reports whether a row was written.
	InsertTransfer(ctx context.Context, rec *model.TransferRecord) (bool, error)
	ApplyStats(ctx context.Context, delta model.StatsDelta) error
	// AdvanceCheckpoint raises the checkpoint height to at least height.
	AdvanceCheckpoint(ctx context.Context, name string, height int64) error
}

// CheckpointStore provides access to the indexer checkpoint outside of a
// Ledger transaction.
type CheckpointStore interface {
	// Get returns nil, nil when no checkpoint has been written yet.
	Get(ctx context.Context, name string) (*model.Checkpoint, error)
	// Init creates the checkpoint at height if none exists.
	Init(ctx context.Context, name string, height int64) error
	// Advance raises the height to at least height. Lower values are ignored.
	Advance(ctx context.Context, name string, height int64) error
	// BeginBackfill records a planned backfill of [from, target] and clears
	// any repair point the range covers.
	BeginBackfill(ctx context.Context, name string, from, target int64) error
	// AdvanceBackfill moves the backfill cursor forward and raises the height
	// to the same value.
	AdvanceBackfill(ctx context.Context, name string, cursor int64) error
	// FinishBackfill clears the backfilling flag unless a repair point is
	// pending.
	FinishBackfill(ctx context.Context, name string) error
	// MarkGap records that a transfer in block height was not applied so the
	// next startup re-fetches from there.
	MarkGap(ctx context.Context, name string, height int64) error
}

// StatsReader exposes aggregate rows for verification tooling and tests.
type StatsReader interface {
	GetStats(ctx context.Context, address, tokenAddress string) (*model.AddressTokenStats, error)
	CountTransfers(ctx context.Context, tokenAddress string) (int64, error)
}

// TotalsReader sums a token's transfers and aggregates for consistency
// checks.
type TotalsReader interface {
	Totals(ctx context.Context, tokenAddress string) (*model.LedgerTotals, error)
}
