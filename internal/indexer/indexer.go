package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emperorhan/token-transfer-indexer/internal/alert"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/event"
	"github.com/emperorhan/token-transfer-indexer/internal/metrics"
	"github.com/emperorhan/token-transfer-indexer/internal/monitor"
	"github.com/emperorhan/token-transfer-indexer/internal/store"
)

const (
	DefaultChunkSize    = 1000
	DefaultDrainTimeout = 30 * time.Second
	gapMarkTimeout      = 10 * time.Second
)

// missedBlockNotifier is implemented by monitors that report live blocks
// lost to a failed subscription.
type missedBlockNotifier interface {
	OnMissedBlock(fn monitor.MissedBlockHandler)
}

// EventMonitor is the event feed the indexer consumes.
type EventMonitor interface {
	Subscribe(ctx context.Context, handler monitor.Handler) error
	Unsubscribe()
	FetchRange(ctx context.Context, from, to int64) ([]event.TransferEvent, error)
	LatestBlockHeight(ctx context.Context) (int64, error)
	Ready() bool
	Reconnects() int64
}

// ProgressMirror receives best-effort copies of the checkpoint.
type ProgressMirror interface {
	PublishHeight(ctx context.Context, name string, height int64) (int64, error)
	SetCatchingUp(ctx context.Context, name string, catchingUp bool) error
}

type Config struct {
	Name         string
	Chain        string
	ChunkSize    int64
	Write        WriterConfig
	DrainTimeout time.Duration
}

func (c Config) validate() error {
	if c.Name == "" {
		return errors.New("indexer name is required")
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	return nil
}

// backfillPlan is the inclusive range a backfill must cover.
type backfillPlan struct {
	From   int64
	Target int64
}

// Indexer keeps the ledger in step with the chain: it reconciles the stored
// checkpoint with the chain head, backfills any gap in chunks, and applies
// live events as they arrive.
type Indexer struct {
	cfg         Config
	monitor     EventMonitor
	checkpoints store.CheckpointStore
	writer      *Writer
	mirror      ProgressMirror
	alerter     alert.Alerter
	health      *Health
	logger      *slog.Logger

	writerOpts []WriterOption

	state       atomic.Int32
	backfilling atomic.Bool
	runOnce     sync.Once
}

type Option func(*Indexer)

func WithMirror(m ProgressMirror) Option {
	return func(ix *Indexer) { ix.mirror = m }
}

func WithAlerter(a alert.Alerter) Option {
	return func(ix *Indexer) { ix.alerter = a }
}

func WithWriterOptions(opts ...WriterOption) Option {
	return func(ix *Indexer) { ix.writerOpts = append(ix.writerOpts, opts...) }
}

func New(cfg Config, mon EventMonitor, ledger store.Ledger, checkpoints store.CheckpointStore, logger *slog.Logger, opts ...Option) (*Indexer, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "indexer", "indexer", cfg.Name)

	ix := &Indexer{
		cfg:         cfg,
		monitor:     mon,
		checkpoints: checkpoints,
		alerter:     alert.NoopAlerter{},
		health:      NewHealth(DefaultUnhealthyThreshold),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.writer = NewWriter(ledger, cfg.Name, cfg.Write, logger, ix.writerOpts...)
	ix.setState(StateStarting)
	return ix, nil
}

func (ix *Indexer) State() State { return State(ix.state.Load()) }

func (ix *Indexer) Writer() *Writer { return ix.writer }

func (ix *Indexer) setState(s State) {
	prev := State(ix.state.Swap(int32(s)))
	publishState(ix.cfg.Name, s)
	if prev != s {
		ix.logger.Info("state changed", "from", prev.String(), "to", s.String())
	}
}

// Run drives the indexer until ctx is cancelled. Failing to read the chain
// head or the checkpoint at startup is returned as an error; after that the
// indexer keeps running and returns nil once drained.
func (ix *Indexer) Run(ctx context.Context) error {
	started := false
	ix.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("indexer already ran")
	}

	plan, err := ix.reconcile(ctx)
	if err != nil {
		ix.setState(StateStopped)
		return err
	}

	if n, ok := ix.monitor.(missedBlockNotifier); ok {
		n.OnMissedBlock(ix.handleMissedBlock)
	}
	if err := ix.monitor.Subscribe(ctx, ix.handleLive); err != nil {
		ix.setState(StateStopped)
		return fmt.Errorf("attach live feed: %w", err)
	}
	ix.setState(StateLiveAttached)

	g, gctx := errgroup.WithContext(ctx)
	if plan != nil {
		ix.backfilling.Store(true)
		ix.setState(StateBackfillRunning)
		g.Go(func() error {
			ix.runBackfill(gctx, *plan)
			return nil
		})
	} else {
		ix.setState(StateSteady)
	}

	<-ctx.Done()
	return ix.drain(ctx, g)
}

// reconcile compares the stored checkpoint with the chain head and returns
// the range to backfill, or nil when there is none.
func (ix *Indexer) reconcile(ctx context.Context) (*backfillPlan, error) {
	head, err := ix.monitor.LatestBlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain head: %w", err)
	}
	metrics.ChainHeadHeight.WithLabelValues(ix.cfg.Name).Set(float64(head))

	cp, err := ix.checkpoints.Get(ctx, ix.cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	ix.setState(StateReconciling)
	if cp == nil {
		if err := ix.checkpoints.Init(ctx, ix.cfg.Name, head); err != nil {
			return nil, fmt.Errorf("init checkpoint at %d: %w", head, err)
		}
		ix.logger.Info("no checkpoint found, starting at chain head", "head", head)
		metrics.CheckpointHeight.WithLabelValues(ix.cfg.Name).Set(float64(head))
		ix.publishHeight(ctx, head)
		return nil, nil
	}

	metrics.CheckpointHeight.WithLabelValues(ix.cfg.Name).Set(float64(cp.Height))
	start := cp.ResumeFrom()
	if start >= head && !cp.Backfilling {
		ix.logger.Info("checkpoint at chain head, no backfill needed", "checkpoint", cp.Height, "head", head)
		return nil, nil
	}

	plan := &backfillPlan{From: start, Target: max(head, start)}
	ix.logger.Info("gap detected, backfill planned",
		"checkpoint", cp.Height,
		"resume_from", start,
		"head", head,
		"resuming", cp.Backfilling,
	)
	return plan, nil
}

// drain stops live delivery, lets the backfill finish its chunk and waits
// for in-flight writes.
func (ix *Indexer) drain(ctx context.Context, g *errgroup.Group) error {
	ix.setState(StateDraining)
	ix.monitor.Unsubscribe()
	_ = g.Wait()

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ix.cfg.DrainTimeout)
	defer cancel()
	err := ix.writer.Drain(dctx)
	ix.setState(StateStopped)
	if err != nil {
		return fmt.Errorf("drain in-flight writes: %w", err)
	}
	ix.logger.Info("indexer stopped")
	return nil
}

func (ix *Indexer) publishHeight(ctx context.Context, height int64) {
	if ix.mirror == nil {
		return
	}
	if _, err := ix.mirror.PublishHeight(context.WithoutCancel(ctx), ix.cfg.Name, height); err != nil {
		metrics.MirrorPublishErrors.WithLabelValues(ix.cfg.Name).Inc()
		ix.logger.Warn("mirror publish failed", "height", height, "error", err)
	}
}

func (ix *Indexer) publishCatchingUp(ctx context.Context, v bool) {
	if ix.mirror == nil {
		return
	}
	if err := ix.mirror.SetCatchingUp(context.WithoutCancel(ctx), ix.cfg.Name, v); err != nil {
		metrics.MirrorPublishErrors.WithLabelValues(ix.cfg.Name).Inc()
		ix.logger.Warn("mirror catching-up update failed", "catching_up", v, "error", err)
	}
}

func (ix *Indexer) sendAlert(ctx context.Context, typ alert.AlertType, title, message string, fields map[string]string) {
	err := ix.alerter.Send(context.WithoutCancel(ctx), alert.Alert{
		Type:    typ,
		Chain:   ix.cfg.Chain,
		Indexer: ix.cfg.Name,
		Title:   title,
		Message: message,
		Fields:  fields,
	})
	if err != nil {
		ix.logger.Warn("alert delivery failed", "alert_type", string(typ), "error", err)
	}
}

var _ EventMonitor = (*monitor.Monitor)(nil)
