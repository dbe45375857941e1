package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/emperorhan/token-transfer-indexer/internal/cache"
	"github.com/emperorhan/token-transfer-indexer/internal/chain/evm/rpc"
	"github.com/emperorhan/token-transfer-indexer/internal/metrics"
	"github.com/emperorhan/token-transfer-indexer/internal/retry"
)

const (
	defaultBlockTimeCacheSize = 50_000
	unfinalizedMaxAttempts    = 4
	unfinalizedInitialDelay   = 2 * time.Second
	unfinalizedMaxDelay       = 8 * time.Second
)

// errBlockNotAvailable is returned when the node answers null for a block
// it has already emitted logs for. Load balanced endpoints lag like this.
var errBlockNotAvailable = errors.New("block not yet available")

type headerFetcher interface {
	GetBlocksByNumber(ctx context.Context, blockNumbers []int64) ([]*rpc.BlockHeader, error)
}

// BlockClock resolves block numbers to block timestamps. Timestamps of
// emitted blocks never change, so cached entries carry no TTL.
type BlockClock struct {
	fetcher headerFetcher
	cache   *cache.LRU[int64, time.Time]
	policy  retry.Policy
	logger  *slog.Logger
}

func NewBlockClock(fetcher headerFetcher, chain string, size int, logger *slog.Logger) *BlockClock {
	if size <= 0 {
		size = defaultBlockTimeCacheSize
	}
	bc := &BlockClock{
		fetcher: fetcher,
		cache: cache.NewLRU[int64, time.Time](size, 0, cache.WithHitMissHooks(
			metrics.BlockTimeCacheHits.WithLabelValues(chain).Inc,
			metrics.BlockTimeCacheMisses.WithLabelValues(chain).Inc,
		)),
		logger: logger.With("component", "block_clock"),
	}
	bc.policy = retry.Policy{
		MaxAttempts: unfinalizedMaxAttempts,
		Initial:     unfinalizedInitialDelay,
		Max:         unfinalizedMaxDelay,
		ShouldRetry: isUnfinalized,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			bc.logger.Warn("block not finalized yet, retrying",
				"attempt", attempt, "delay", delay, "error", err)
		},
	}
	return bc
}

// Lookup returns a timestamp for every requested block or an error.
func (b *BlockClock) Lookup(ctx context.Context, blocks []int64) (map[int64]time.Time, error) {
	found, missing := b.cache.GetMany(blocks)
	if len(missing) == 0 {
		return found, nil
	}

	err := retry.Do(ctx, b.policy, func(ctx context.Context, _ int) error {
		headers, err := b.fetcher.GetBlocksByNumber(ctx, missing)
		if err != nil {
			return err
		}
		var still []int64
		for i, h := range headers {
			if h == nil {
				still = append(still, missing[i])
				continue
			}
			sec, err := rpc.ParseHexInt64(h.Timestamp)
			if err != nil {
				return fmt.Errorf("block %d timestamp: %w", missing[i], err)
			}
			ts := time.Unix(sec, 0).UTC()
			b.cache.Put(missing[i], ts)
			found[missing[i]] = ts
		}
		missing = still
		if len(missing) > 0 {
			return fmt.Errorf("%w: %v", errBlockNotAvailable, missing)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func isUnfinalized(err error) bool {
	if errors.Is(err, errBlockNotAvailable) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "cannot query unfinalized data")
}
