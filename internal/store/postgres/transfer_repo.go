package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
)

type TransferRepo struct {
	db *DB
}

func NewTransferRepo(db *DB) *TransferRepo {
	return &TransferRepo{db: db}
}

// InsertTx writes t unless a row with the same (tx_hash, log_index) exists.
// It reports whether a new row was written.
func (r *TransferRepo) InsertTx(ctx context.Context, tx *sql.Tx, t *model.TransferRecord) (bool, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO token_transfers (
			id, tx_hash, log_index, block_number, from_address, to_address,
			amount, token_address, token_symbol, block_time, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`, t.ID, t.TxHash, t.LogIndex, t.BlockNumber, t.FromAddress, t.ToAddress,
		t.Amount, t.TokenAddress, t.TokenSymbol, t.BlockTime, string(t.Source),
	)
	if err != nil {
		return false, classifyWriteError("insert transfer", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert transfer rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *TransferRepo) CountByToken(ctx context.Context, tokenAddress string) (int64, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var n int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM token_transfers WHERE token_address = $1`, tokenAddress,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transfers: %w", err)
	}
	return n, nil
}

func (r *TransferRepo) Get(ctx context.Context, txHash string, logIndex int) (*model.TransferRecord, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var (
		t      model.TransferRecord
		source string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tx_hash, log_index, block_number, from_address, to_address,
			amount::text, token_address, token_symbol, block_time, source, created_at
		FROM token_transfers
		WHERE tx_hash = $1 AND log_index = $2
	`, txHash, logIndex).Scan(
		&t.ID, &t.TxHash, &t.LogIndex, &t.BlockNumber, &t.FromAddress, &t.ToAddress,
		&t.Amount, &t.TokenAddress, &t.TokenSymbol, &t.BlockTime, &source, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	t.Source = model.EventSource(source)
	return &t, nil
}
