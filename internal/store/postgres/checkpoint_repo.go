package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
)

// CheckpointRepo persists indexer progress in indexer_checkpoints. Every
// height change is monotonic.
type CheckpointRepo struct {
	db *DB
}

func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

func (r *CheckpointRepo) Get(ctx context.Context, name string) (*model.Checkpoint, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var (
		c      model.Checkpoint
		repair sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT name, height, backfilling, backfill_cursor, backfill_target, repair_from, updated_at
		FROM indexer_checkpoints
		WHERE name = $1
	`, name).Scan(&c.Name, &c.Height, &c.Backfilling, &c.BackfillCursor, &c.BackfillTarget, &repair, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	if repair.Valid {
		v := repair.Int64
		c.RepairFrom = &v
	}
	return &c, nil
}

func (r *CheckpointRepo) Init(ctx context.Context, name string, height int64) error {
	return r.exec(ctx, "init checkpoint", `
		INSERT INTO indexer_checkpoints (name, height)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, name, height)
}

func (r *CheckpointRepo) Advance(ctx context.Context, name string, height int64) error {
	return r.exec(ctx, "advance checkpoint", advanceCheckpointSQL, name, height)
}

// AdvanceTx raises the height inside tx. The checkpoint row is the last row a
// ledger transaction locks.
func (r *CheckpointRepo) AdvanceTx(ctx context.Context, tx *sql.Tx, name string, height int64) error {
	if _, err := tx.ExecContext(ctx, advanceCheckpointSQL, name, height); err != nil {
		return classifyWriteError("advance checkpoint", err)
	}
	return nil
}

const advanceCheckpointSQL = `
	INSERT INTO indexer_checkpoints (name, height)
	VALUES ($1, $2)
	ON CONFLICT (name) DO UPDATE SET
		height = GREATEST(indexer_checkpoints.height, EXCLUDED.height),
		updated_at = now()
`

// BeginBackfill plans a backfill over [from, target]. A pending repair point
// inside that range is covered by it and cleared; one above target is kept.
func (r *CheckpointRepo) BeginBackfill(ctx context.Context, name string, from, target int64) error {
	return r.exec(ctx, "begin backfill", `
		UPDATE indexer_checkpoints SET
			backfilling = true,
			backfill_cursor = $2,
			backfill_target = $3,
			repair_from = CASE WHEN repair_from BETWEEN $2 AND $3 THEN NULL ELSE repair_from END,
			updated_at = now()
		WHERE name = $1
	`, name, from, target)
}

func (r *CheckpointRepo) AdvanceBackfill(ctx context.Context, name string, cursor int64) error {
	return r.exec(ctx, "advance backfill", `
		UPDATE indexer_checkpoints SET
			backfill_cursor = GREATEST(backfill_cursor, $2),
			height = GREATEST(height, $2),
			updated_at = now()
		WHERE name = $1
	`, name, cursor)
}

// FinishBackfill clears the backfilling flag unless a live write failure
// recorded a repair point while the backfill ran.
func (r *CheckpointRepo) FinishBackfill(ctx context.Context, name string) error {
	return r.exec(ctx, "finish backfill", `
		UPDATE indexer_checkpoints SET
			backfilling = false,
			updated_at = now()
		WHERE name = $1 AND repair_from IS NULL
	`, name)
}

func (r *CheckpointRepo) MarkGap(ctx context.Context, name string, height int64) error {
	return r.exec(ctx, "mark gap", `
		UPDATE indexer_checkpoints SET
			backfill_cursor = CASE WHEN backfilling THEN backfill_cursor ELSE $2 END,
			backfill_target = CASE WHEN backfilling THEN backfill_target ELSE $2 END,
			backfilling = true,
			repair_from = LEAST(COALESCE(repair_from, $2), $2),
			updated_at = now()
		WHERE name = $1
	`, name, height)
}

// Reset overwrites the checkpoint. Used by operator tooling only.
func (r *CheckpointRepo) Reset(ctx context.Context, name string, height int64) error {
	return r.exec(ctx, "reset checkpoint", `
		INSERT INTO indexer_checkpoints (name, height)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET
			height = EXCLUDED.height,
			backfilling = false,
			backfill_cursor = 0,
			backfill_target = 0,
			repair_from = NULL,
			updated_at = now()
	`, name, height)
}

func (r *CheckpointRepo) Delete(ctx context.Context, name string) (bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM indexer_checkpoints WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("delete checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete checkpoint rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *CheckpointRepo) exec(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return classifyWriteError(op, err)
	}
	return nil
}
