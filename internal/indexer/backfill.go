package indexer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/emperorhan/token-transfer-indexer/internal/alert"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
	"github.com/emperorhan/token-transfer-indexer/internal/metrics"
	"github.com/emperorhan/token-transfer-indexer/internal/tracing"
)

// runBackfill walks plan in chunks. A failed chunk stops the backfill but
// leaves the checkpoint flagged so the next start resumes at the cursor;
// live indexing is unaffected.
func (ix *Indexer) runBackfill(ctx context.Context, plan backfillPlan) {
	defer ix.backfilling.Store(false)

	if err := ix.checkpoints.BeginBackfill(ctx, ix.cfg.Name, plan.From, plan.Target); err != nil {
		ix.backfillFailed(ctx, plan.From, plan, fmt.Errorf("begin backfill: %w", err))
		return
	}
	ix.publishCatchingUp(ctx, true)
	ix.logger.Info("backfill started", "from", plan.From, "target", plan.Target, "chunk_size", ix.cfg.ChunkSize)

	cur := plan.From
	for {
		if ctx.Err() != nil {
			ix.logger.Info("backfill interrupted by shutdown", "cursor", cur, "target", plan.Target)
			return
		}
		metrics.BackfillRemainingBlocks.WithLabelValues(ix.cfg.Name).Set(float64(plan.Target - cur))

		end := cur + ix.cfg.ChunkSize
		last, next := end-1, end
		final := end >= plan.Target
		if final {
			last, next = plan.Target, plan.Target
		}

		applied, err := ix.backfillChunk(ctx, cur, last, next)
		if err != nil {
			if ctx.Err() != nil {
				ix.logger.Info("backfill interrupted by shutdown", "cursor", cur, "target", plan.Target)
				return
			}
			ix.backfillFailed(ctx, cur, plan, err)
			return
		}
		ix.logger.Debug("backfill chunk done", "from", cur, "to", last, "applied", applied)

		if final {
			break
		}
		cur = next
	}

	if err := ix.checkpoints.FinishBackfill(ctx, ix.cfg.Name); err != nil {
		ix.backfillFailed(ctx, plan.Target, plan, fmt.Errorf("finish backfill: %w", err))
		return
	}
	metrics.BackfillRemainingBlocks.WithLabelValues(ix.cfg.Name).Set(0)
	ix.publishCatchingUp(ctx, false)
	ix.logger.Info("backfill complete", "target", plan.Target)
	ix.leaveBackfill(StateSteady)
}

// backfillChunk fetches [from, to], applies every event in order and moves
// the checkpoint to next. It returns the number of newly inserted transfers.
func (ix *Indexer) backfillChunk(ctx context.Context, from, to, next int64) (applied int, err error) {
	ctx, span := tracing.Tracer("indexer").Start(ctx, "indexer.backfill_chunk", trace.WithAttributes(
		attribute.Int64("from", from),
		attribute.Int64("to", to),
	))
	start := time.Now()
	defer func() {
		tracing.End(span, err)
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.BackfillChunksTotal.WithLabelValues(ix.cfg.Name, result).Inc()
		metrics.BackfillChunkLatency.WithLabelValues(ix.cfg.Name).Observe(time.Since(start).Seconds())
	}()

	events, err := ix.monitor.FetchRange(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("fetch chunk %d..%d: %w", from, to, err)
	}
	for _, ev := range events {
		res, err := ix.writer.Apply(ctx, ev, model.SourceBackfill)
		if err != nil {
			if isMalformed(err) {
				ix.logger.Warn("skipping malformed backfill event", "key", ev.Key().String(), "error", err)
				continue
			}
			return applied, err
		}
		if res.Inserted {
			applied++
		}
	}

	if err := ix.checkpoints.AdvanceBackfill(context.WithoutCancel(ctx), ix.cfg.Name, next); err != nil {
		return applied, fmt.Errorf("advance backfill cursor to %d: %w", next, err)
	}
	metrics.CheckpointHeight.WithLabelValues(ix.cfg.Name).Set(float64(next))
	ix.publishHeight(ctx, next)
	return applied, nil
}

func (ix *Indexer) backfillFailed(ctx context.Context, cursor int64, plan backfillPlan, err error) {
	ix.logger.Error("backfill stalled", "cursor", cursor, "target", plan.Target, "error", err)
	ix.sendAlert(ctx, alert.AlertTypeBackfillStalled,
		"Backfill stalled",
		fmt.Sprintf("backfill stopped at block %d of %d; restart resumes from the cursor", cursor, plan.Target),
		map[string]string{
			"cursor": strconv.FormatInt(cursor, 10),
			"target": strconv.FormatInt(plan.Target, 10),
			"error":  err.Error(),
		},
	)
	ix.leaveBackfill(StateLiveAttached)
}

// leaveBackfill moves out of StateBackfillRunning unless drain or Run already
// moved the indexer elsewhere.
func (ix *Indexer) leaveBackfill(next State) {
	if !ix.state.CompareAndSwap(int32(StateBackfillRunning), int32(next)) {
		return
	}
	publishState(ix.cfg.Name, next)
	ix.logger.Info("state changed", "from", StateBackfillRunning.String(), "to", next.String())
}
