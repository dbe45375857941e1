package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/emperorhan/token-transfer-indexer/internal/alert"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/event"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
)

func isMalformed(err error) bool {
	return errors.Is(err, event.ErrMalformedEvent)
}

// handleLive applies one event from the live feed. A write that cannot be
// applied is recorded as a repair point so the next start backfills it.
func (ix *Indexer) handleLive(ctx context.Context, ev event.TransferEvent) {
	res, err := ix.writer.Apply(ctx, ev, model.SourceLive)
	if err == nil {
		if ix.health.RecordSuccess() {
			ix.logger.Info("live writes recovered")
			ix.sendAlert(ctx, alert.AlertTypeRecovery, "Live indexing recovered", "live writes are succeeding again", nil)
		}
		if res.Inserted {
			ix.publishHeight(ctx, ev.BlockNumber)
		}
		return
	}

	if isMalformed(err) {
		ix.logger.Warn("skipping malformed live event", "key", ev.Key().String(), "error", err)
		return
	}

	ix.logger.Error("live event not applied",
		"key", ev.Key().String(),
		"block", ev.BlockNumber,
		"error", err,
	)
	ix.recordRepairPoint(ctx, ev.BlockNumber)

	ix.sendAlert(ctx, alert.AlertTypeLiveEventDrop,
		"Live event dropped",
		fmt.Sprintf("transfer %s in block %d was not applied", ev.Key(), ev.BlockNumber),
		map[string]string{
			"tx_hash":   ev.TxHash,
			"log_index": strconv.Itoa(ev.LogIndex),
			"block":     strconv.FormatInt(ev.BlockNumber, 10),
			"error":     err.Error(),
		},
	)
	if ix.health.RecordFailure() {
		ix.sendAlert(ctx, alert.AlertTypeUnhealthy, "Live indexing unhealthy",
			"consecutive live writes are failing", nil)
	}
}

// handleMissedBlock records the first block whose live transfers may never
// have reached the write routine, after an outage or a decode failure.
func (ix *Indexer) handleMissedBlock(ctx context.Context, block int64) {
	ix.logger.Error("live feed interrupted, transfers may be missing", "from_block", block)
	ix.recordRepairPoint(ctx, block)
	ix.sendAlert(ctx, alert.AlertTypeLiveEventDrop,
		"Live events missed",
		fmt.Sprintf("the live feed lost transfers from block %d onwards; the next backfill re-reads them", block),
		map[string]string{"block": strconv.FormatInt(block, 10)},
	)
}

func (ix *Indexer) recordRepairPoint(ctx context.Context, block int64) {
	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), gapMarkTimeout)
	defer cancel()
	if err := ix.checkpoints.MarkGap(gctx, ix.cfg.Name, block); err != nil {
		ix.logger.Error("failed to record repair point", "block", block, "error", err)
	}
}
