package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/emperorhan/token-transfer-indexer/internal/domain/event"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
	"github.com/emperorhan/token-transfer-indexer/internal/metrics"
	"github.com/emperorhan/token-transfer-indexer/internal/retry"
	"github.com/emperorhan/token-transfer-indexer/internal/store"
	"github.com/emperorhan/token-transfer-indexer/internal/tracing"
)

var (
	// ErrDraining rejects writes that arrive after shutdown began.
	ErrDraining = errors.New("indexer draining: write rejected")
	// ErrRetriesExhausted wraps the last write conflict once every attempt
	// has failed.
	ErrRetriesExhausted = errors.New("write retries exhausted")
)

const (
	DefaultWriteAttempts     = 3
	DefaultWriteInitialDelay = time.Second
	DefaultWriteTimeout      = 30 * time.Second
)

// ApplyResult describes one write routine run. Inserted is false when the
// transfer was already stored; nothing changed in that case.
type ApplyResult struct {
	Inserted bool
	Attempts int
}

type WriterConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	// Timeout bounds one Apply including retries. It runs on a context
	// detached from the caller's cancellation so shutdown lets it finish.
	Timeout time.Duration
}

// Writer is the single write path for events from both sources.
type Writer struct {
	ledger  store.Ledger
	name    string
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
	newID   func() uuid.UUID

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

type WriterOption func(*Writer)

// WithWriteSleep replaces the backoff sleep, for tests.
func WithWriteSleep(fn func(ctx context.Context, d time.Duration) error) WriterOption {
	return func(w *Writer) { w.policy.Sleep = fn }
}

func NewWriter(ledger store.Ledger, name string, cfg WriterConfig, logger *slog.Logger, opts ...WriterOption) *Writer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultWriteAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultWriteInitialDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Writer{
		ledger:  ledger,
		name:    name,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "writer"),
		newID:   uuid.New,
	}
	w.policy = retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		Initial:     cfg.InitialDelay,
		ShouldRetry: func(err error) bool { return errors.Is(err, store.ErrWriteConflict) },
		OnRetry: func(attempt int, delay time.Duration, err error) {
			metrics.WriteConflictRetriesTotal.WithLabelValues(name).Inc()
			w.logger.Warn("write conflict, retrying", "attempt", attempt, "delay", delay, "error", err)
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Apply stores ev and folds it into both participants' stats and the
// checkpoint in one transaction. A re-delivered event changes nothing.
// Only write conflicts are retried; malformed events fail with
// event.ErrMalformedEvent.
func (w *Writer) Apply(ctx context.Context, ev event.TransferEvent, source model.EventSource) (ApplyResult, error) {
	if !w.enter() {
		return ApplyResult{}, ErrDraining
	}
	defer w.inflight.Done()

	ev = ev.Normalize()
	if err := ev.Validate(); err != nil {
		metrics.WriteFailuresTotal.WithLabelValues(w.name, source.String(), "malformed").Inc()
		return ApplyResult{}, err
	}
	rec := ev.Record(source)
	rec.ID = w.newID()
	deltas := model.StatsDeltas(rec)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()
	wctx, span := tracing.Tracer("indexer").Start(wctx, "indexer.apply", trace.WithAttributes(
		attribute.String("key", ev.Key().String()),
		attribute.Int64("block", ev.BlockNumber),
		attribute.String("source", source.String()),
	))

	// The transaction runs detached from ctx, the backoff between attempts
	// does not.
	policy := w.policy
	policy.Sleep = sleepUnlessCancelled(ctx, w.policy.Sleep)

	start := time.Now()
	var res ApplyResult
	err := retry.Do(wctx, policy, func(ctx context.Context, attempt int) error {
		res.Attempts = attempt
		res.Inserted = false
		return w.ledger.WithTx(ctx, func(ctx context.Context, tx store.LedgerTx) error {
			inserted, err := tx.InsertTransfer(ctx, rec)
			if err != nil || !inserted {
				return err
			}
			for _, d := range deltas {
				if err := tx.ApplyStats(ctx, d); err != nil {
					return err
				}
			}
			if err := tx.AdvanceCheckpoint(ctx, w.name, rec.BlockNumber); err != nil {
				return err
			}
			res.Inserted = true
			return nil
		})
	})
	metrics.WriteLatency.WithLabelValues(w.name).Observe(time.Since(start).Seconds())

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, exhausted.Attempts, exhausted.Err)
	}
	tracing.End(span, err)

	if err != nil {
		metrics.WriteFailuresTotal.WithLabelValues(w.name, source.String(), failureReason(err)).Inc()
		return res, fmt.Errorf("apply %s: %w", ev.Key(), err)
	}

	result := "duplicate"
	if res.Inserted {
		result = "inserted"
		metrics.CheckpointHeight.WithLabelValues(w.name).Set(float64(rec.BlockNumber))
	}
	metrics.EventsAppliedTotal.WithLabelValues(w.name, source.String(), result).Inc()
	return res, nil
}

// sleepUnlessCancelled wraps sleep so it also ends when caller is done.
func sleepUnlessCancelled(caller context.Context, sleep func(context.Context, time.Duration) error) func(context.Context, time.Duration) error {
	if sleep == nil {
		sleep = retry.SleepContext
	}
	return func(ctx context.Context, d time.Duration) error {
		if err := caller.Err(); err != nil {
			return err
		}
		sctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(caller, cancel)
		defer stop()

		err := sleep(sctx, d)
		if cerr := caller.Err(); err != nil && cerr != nil {
			return cerr
		}
		return err
	}
}

func (w *Writer) enter() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draining {
		return false
	}
	w.inflight.Add(1)
	return true
}

// Drain stops accepting writes and waits for in-flight ones, or for ctx.
func (w *Writer) Drain(ctx context.Context) error {
	w.mu.Lock()
	w.draining = true
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrRetriesExhausted):
		return "retries_exhausted"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
