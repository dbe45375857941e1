package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
	"github.com/emperorhan/token-transfer-indexer/internal/store"
)

var (
	_ store.Ledger          = (*Ledger)(nil)
	_ store.CheckpointStore = (*CheckpointRepo)(nil)
	_ store.StatsReader     = (*Ledger)(nil)
	_ store.TotalsReader    = (*Ledger)(nil)
)

// Ledger runs transfer, stats and checkpoint writes in one database
// transaction.
type Ledger struct {
	db          store.TxBeginner
	transfers   *TransferRepo
	stats       *StatsRepo
	checkpoints *CheckpointRepo
}

func NewLedger(db *DB) *Ledger {
	return &Ledger{
		db:          db,
		transfers:   NewTransferRepo(db),
		stats:       NewStatsRepo(db),
		checkpoints: NewCheckpointRepo(db),
	}
}

func (l *Ledger) Checkpoints() *CheckpointRepo {
	return l.checkpoints
}

func (l *Ledger) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	dbTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback()

	if err := fn(ctx, &ledgerTx{tx: dbTx, l: l}); err != nil {
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return classifyWriteError("commit", err)
	}
	return nil
}

func (l *Ledger) GetStats(ctx context.Context, address, tokenAddress string) (*model.AddressTokenStats, error) {
	return l.stats.Get(ctx, address, tokenAddress)
}

func (l *Ledger) CountTransfers(ctx context.Context, tokenAddress string) (int64, error) {
	return l.transfers.CountByToken(ctx, tokenAddress)
}

// Totals reads both sides of the token ledger in one repeatable-read
// snapshot so concurrent writes cannot skew the comparison.
func (l *Ledger) Totals(ctx context.Context, tokenAddress string) (*model.LedgerTotals, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin totals tx: %w", err)
	}
	defer tx.Rollback()

	t := &model.LedgerTotals{TokenAddress: tokenAddress}
	err = tx.QueryRowContext(ctx, `
		SELECT count(*),
			COALESCE(trim_scale(sum(amount)), 0)::text,
			COALESCE(sum(CASE WHEN from_address = to_address THEN 1 ELSE 2 END), 0)
		FROM token_transfers
		WHERE token_address = $1
	`, tokenAddress).Scan(&t.Transfers, &t.TransferVolume, &t.Touches)
	if err != nil {
		return nil, fmt.Errorf("sum transfers: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT count(*),
			COALESCE(trim_scale(sum(total_sent)), 0)::text,
			COALESCE(trim_scale(sum(total_received)), 0)::text,
			COALESCE(sum(transaction_count), 0)
		FROM address_token_stats
		WHERE token_address = $1
	`, tokenAddress).Scan(&t.Addresses, &t.TotalSent, &t.TotalReceived, &t.TransactionCount)
	if err != nil {
		return nil, fmt.Errorf("sum stats: %w", err)
	}
	return t, nil
}

type ledgerTx struct {
	tx *sql.Tx
	l  *Ledger
}

func (t *ledgerTx) InsertTransfer(ctx context.Context, rec *model.TransferRecord) (bool, error) {
	return t.l.transfers.InsertTx(ctx, t.tx, rec)
}

func (t *ledgerTx) ApplyStats(ctx context.Context, delta model.StatsDelta) error {
	return t.l.stats.ApplyTx(ctx, t.tx, delta)
}

func (t *ledgerTx) AdvanceCheckpoint(ctx context.Context, name string, height int64) error {
	return t.l.checkpoints.AdvanceTx(ctx, t.tx, name, height)
}
