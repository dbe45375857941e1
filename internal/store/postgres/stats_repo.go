package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
)

type StatsRepo struct {
	db *DB
}

func NewStatsRepo(db *DB) *StatsRepo {
	return &StatsRepo{db: db}
}

// ApplyTx adds d to the (address, token) aggregate, creating it if missing.
// last_active only moves forward.
func (r *StatsRepo) ApplyTx(ctx context.Context, tx *sql.Tx, d model.StatsDelta) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO address_token_stats (
			address, token_address, token_symbol,
			total_sent, total_received, transaction_count, last_active
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7)
		ON CONFLICT (address, token_address) DO UPDATE SET
			total_sent = address_token_stats.total_sent + EXCLUDED.total_sent,
			total_received = address_token_stats.total_received + EXCLUDED.total_received,
			transaction_count = address_token_stats.transaction_count + EXCLUDED.transaction_count,
			last_active = GREATEST(address_token_stats.last_active, EXCLUDED.last_active),
			updated_at = now()
	`, d.Address, d.TokenAddress, d.TokenSymbol, d.Sent, d.Received, d.Count, d.LastActive)
	if err != nil {
		return classifyWriteError("apply stats", err)
	}
	return nil
}

func (r *StatsRepo) Get(ctx context.Context, address, tokenAddress string) (*model.AddressTokenStats, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var s model.AddressTokenStats
	err := r.db.QueryRowContext(ctx, `
		SELECT address, token_address, token_symbol,
			trim_scale(total_sent)::text, trim_scale(total_received)::text,
			transaction_count, last_active, updated_at
		FROM address_token_stats
		WHERE address = $1 AND token_address = $2
	`, address, tokenAddress).Scan(
		&s.Address, &s.TokenAddress, &s.TokenSymbol,
		&s.TotalSent, &s.TotalReceived,
		&s.TransactionCount, &s.LastActive, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &s, nil
}
