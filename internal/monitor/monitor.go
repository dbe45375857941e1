// Package monitor wraps a chain.Source with the delivery guarantees the
// indexer relies on: a self-healing live subscription and bounded, retried,
// ordered historical range reads.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emperorhan/token-transfer-indexer/internal/chain"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/event"
	"github.com/emperorhan/token-transfer-indexer/internal/metrics"
	"github.com/emperorhan/token-transfer-indexer/internal/retry"
)

// ErrAlreadySubscribed is returned by a second Subscribe without an
// Unsubscribe in between.
var ErrAlreadySubscribed = errors.New("monitor: already subscribed")

const (
	DefaultMaxRangeBlocks = 2000

	defaultFetchAttempts       = 4
	defaultFetchBackoffInitial = 200 * time.Millisecond
	defaultFetchBackoffMax     = 3 * time.Second
	defaultResubscribeInitial  = time.Second
	defaultResubscribeMax      = 30 * time.Second
	liveSinkSize               = 256
)

// Handler receives live events one at a time, in arrival order.
type Handler func(ctx context.Context, ev event.TransferEvent)

// MissedBlockHandler is told, after the live subscription fails, the lowest
// block from which transfers may not have been delivered.
type MissedBlockHandler func(ctx context.Context, block int64)

type Monitor struct {
	source   chain.Source
	logger   *slog.Logger
	maxRange int64

	fetchPolicy retry.Policy
	resubscribe retry.Policy
	sleepFn     func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	onMissed MissedBlockHandler

	ready      atomic.Bool
	reconnects atomic.Int64
}

type Option func(*Monitor)

// WithMaxRangeBlocks caps the size of a single historical sub-request.
func WithMaxRangeBlocks(n int64) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.maxRange = n
		}
	}
}

// WithFetchRetry overrides attempts and backoff for range reads.
func WithFetchRetry(attempts int, initial, max time.Duration) Option {
	return func(m *Monitor) {
		m.fetchPolicy.MaxAttempts = attempts
		m.fetchPolicy.Initial = initial
		m.fetchPolicy.Max = max
	}
}

// WithResubscribeBackoff sets the wait between live re-registration attempts.
func WithResubscribeBackoff(initial, max time.Duration) Option {
	return func(m *Monitor) {
		m.resubscribe.Initial = initial
		m.resubscribe.Max = max
	}
}

// WithSleep replaces the context-aware sleep, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Monitor) { m.sleepFn = fn }
}

func New(source chain.Source, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		source:   source,
		logger:   logger.With("component", "monitor", "chain", source.Chain()),
		maxRange: DefaultMaxRangeBlocks,
		fetchPolicy: retry.Policy{
			MaxAttempts: defaultFetchAttempts,
			Initial:     defaultFetchBackoffInitial,
			Max:         defaultFetchBackoffMax,
			Jitter:      0.1,
		},
		resubscribe: retry.Policy{
			Initial: defaultResubscribeInitial,
			Max:     defaultResubscribeMax,
			Jitter:  0.1,
		},
		sleepFn: retry.SleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.fetchPolicy.Sleep = m.sleepFn
	return m
}

// OnMissedBlock registers fn to learn where each live outage starts. It
// applies to subscriptions started afterwards.
func (m *Monitor) OnMissedBlock(fn MissedBlockHandler) {
	m.mu.Lock()
	m.onMissed = fn
	m.mu.Unlock()
}

// Ready reports whether a live subscription is currently registered.
func (m *Monitor) Ready() bool { return m.ready.Load() }

// Reconnects counts re-registrations after transport loss.
func (m *Monitor) Reconnects() int64 { return m.reconnects.Load() }

// Subscribe starts live delivery to handler. Registration happens in the
// background and is retried until it succeeds; after transport loss the
// subscription is re-registered without caller involvement. Events emitted
// while disconnected are not replayed; where the outage starts is reported
// to the OnMissedBlock handler.
func (m *Monitor) Subscribe(ctx context.Context, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return ErrAlreadySubscribed
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(runCtx, handler, m.done)
	return nil
}

// Unsubscribe stops live delivery and waits for the delivery goroutine to
// exit. Calling it when not subscribed is a no-op.
func (m *Monitor) Unsubscribe() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context, handler Handler, done chan struct{}) {
	defer close(done)
	defer m.setReady(false)

	m.mu.Lock()
	onMissed := m.onMissed
	m.mu.Unlock()

	sink := make(chan event.TransferEvent, liveSinkSize)
	failures := 0
	// covered is the highest block the live feed is known to have reached:
	// the chain head seen before registering, raised by every delivery.
	var covered int64
	for {
		if head, err := m.source.LatestBlockHeight(ctx); err == nil {
			covered = max(covered, head)
		} else if ctx.Err() == nil {
			m.logger.Debug("chain head unavailable before live registration", "error", err)
		}

		sub, err := m.source.Subscribe(ctx, sink)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			delay := m.resubscribe.Delay(failures)
			m.logger.Warn("live subscribe failed, retrying", "attempt", failures, "delay", delay, "error", err)
			if m.sleepFn(ctx, delay) != nil {
				return
			}
			continue
		}

		failures = 0
		m.setReady(true)
		m.logger.Info("live subscription active", "covered_block", covered)

		last, err := m.deliver(ctx, sub, sink, handler)
		covered = max(covered, last)
		sub.Unsubscribe()
		if err == nil {
			return
		}

		m.setReady(false)
		m.reconnects.Add(1)
		metrics.MonitorReconnectsTotal.WithLabelValues(m.source.Chain()).Inc()
		m.logger.Warn("live subscription lost, re-registering", "error", err, "covered_block", covered)
		m.reportGap(ctx, err, covered, onMissed)
		if m.sleepFn(ctx, m.resubscribe.Delay(1)) != nil {
			return
		}
	}
}

// reportGap tells onMissed where the feed may have lost transfers: the
// last covered block, which is re-read in full because the stream can break
// between logs of one block, or the block of a transfer that failed to
// decode when that is lower.
func (m *Monitor) reportGap(ctx context.Context, err error, covered int64, onMissed MissedBlockHandler) {
	from := covered
	var missed *chain.MissedBlockError
	if errors.As(err, &missed) && (from <= 0 || missed.Block < from) {
		from = missed.Block
	}
	if from <= 0 {
		m.logger.Warn("live feed lost with no known position, outage cannot be recorded")
		return
	}
	if onMissed != nil {
		onMissed(ctx, from)
	}
}

// deliver pumps events until ctx ends (nil) or the subscription fails. It
// returns the highest block delivered.
func (m *Monitor) deliver(ctx context.Context, sub chain.Subscription, sink <-chan event.TransferEvent, handler Handler) (int64, error) {
	received := metrics.MonitorEventsReceived.WithLabelValues(m.source.Chain())
	var last int64
	for {
		select {
		case <-ctx.Done():
			return last, nil
		case ev := <-sink:
			received.Inc()
			handler(ctx, ev)
			last = max(last, ev.BlockNumber)
		case err, ok := <-sub.Err():
			if !ok || err == nil {
				err = errors.New("subscription terminated")
			}
			return last, err
		}
	}
}

func (m *Monitor) setReady(v bool) {
	m.ready.Store(v)
	g := 0.0
	if v {
		g = 1
	}
	metrics.MonitorConnected.WithLabelValues(m.source.Chain()).Set(g)
}

// FetchRange returns every transfer in the inclusive block range, ordered by
// (block, log index). The range is read in sub-ranges of at most
// maxRange blocks, each retried on transient errors. Exhaustion or a
// terminal error yields chain.ErrSourceUnavailable.
func (m *Monitor) FetchRange(ctx context.Context, from, to int64) ([]event.TransferEvent, error) {
	if from > to {
		return nil, nil
	}

	var out []event.TransferEvent
	for start := from; start <= to; start += m.maxRange {
		end := min(start+m.maxRange-1, to)

		var batch []event.TransferEvent
		err := retry.Do(ctx, m.retryPolicy(start, end), func(ctx context.Context, _ int) error {
			evs, err := m.source.FetchLogs(ctx, start, end)
			if err != nil {
				return err
			}
			batch = evs
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: fetch blocks %d..%d: %w", chain.ErrSourceUnavailable, start, end, err)
		}
		out = append(out, batch...)
	}

	sort.SliceStable(out, func(i, j int) bool { return event.Less(out[i], out[j]) })
	return out, nil
}

func (m *Monitor) retryPolicy(start, end int64) retry.Policy {
	p := m.fetchPolicy
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.MonitorFetchRangeRetries.WithLabelValues(m.source.Chain()).Inc()
		m.logger.Warn("range fetch failed, retrying",
			"from", start, "to", end, "attempt", attempt, "delay", delay, "error", err)
	}
	return p
}

// LatestBlockHeight returns the chain head, retried like a range read.
func (m *Monitor) LatestBlockHeight(ctx context.Context) (int64, error) {
	var head int64
	err := retry.Do(ctx, m.fetchPolicy, func(ctx context.Context, _ int) error {
		h, err := m.source.LatestBlockHeight(ctx)
		if err != nil {
			return err
		}
		head = h
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: latest block: %w", chain.ErrSourceUnavailable, err)
	}
	return head, nil
}
