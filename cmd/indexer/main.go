package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/emperorhan/token-transfer-indexer/internal/admin"
	"github.com/emperorhan/token-transfer-indexer/internal/alert"
	"github.com/emperorhan/token-transfer-indexer/internal/chain/evm"
	"github.com/emperorhan/token-transfer-indexer/internal/chain/evm/rpc"
	"github.com/emperorhan/token-transfer-indexer/internal/chain/ratelimit"
	"github.com/emperorhan/token-transfer-indexer/internal/circuitbreaker"
	"github.com/emperorhan/token-transfer-indexer/internal/config"
	"github.com/emperorhan/token-transfer-indexer/internal/indexer"
	"github.com/emperorhan/token-transfer-indexer/internal/metrics"
	"github.com/emperorhan/token-transfer-indexer/internal/monitor"
	"github.com/emperorhan/token-transfer-indexer/internal/reconciliation"
	"github.com/emperorhan/token-transfer-indexer/internal/store"
	"github.com/emperorhan/token-transfer-indexer/internal/store/memory"
	"github.com/emperorhan/token-transfer-indexer/internal/store/postgres"
	redispkg "github.com/emperorhan/token-transfer-indexer/internal/store/redis"
	"github.com/emperorhan/token-transfer-indexer/internal/tracing"
)

type dbStatsProvider interface {
	Stats() sql.DBStats
}

type dbPoolStatsGauges struct {
	open         *prometheus.GaugeVec
	inUse        *prometheus.GaugeVec
	idle         *prometheus.GaugeVec
	waitCount    *prometheus.GaugeVec
	waitDuration *prometheus.GaugeVec
}

func collectDBPoolStats(db dbStatsProvider, indexerName string, gauges dbPoolStatsGauges) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("db pool stats collection panicked: %v", r)
		}
	}()
	if db == nil {
		return fmt.Errorf("db stats provider is nil")
	}

	stats := db.Stats()
	gauges.open.WithLabelValues(indexerName).Set(float64(stats.OpenConnections))
	gauges.inUse.WithLabelValues(indexerName).Set(float64(stats.InUse))
	gauges.idle.WithLabelValues(indexerName).Set(float64(stats.Idle))
	gauges.waitCount.WithLabelValues(indexerName).Set(float64(stats.WaitCount))
	gauges.waitDuration.WithLabelValues(indexerName).Set(stats.WaitDuration.Seconds())
	return nil
}

func startDBPoolStatsPump(ctx context.Context, db dbStatsProvider, indexerName string, intervalMS int, logger *slog.Logger) {
	if db == nil || intervalMS <= 0 {
		return
	}

	gauges := dbPoolStatsGauges{
		open:         metrics.DBPoolOpen,
		inUse:        metrics.DBPoolInUse,
		idle:         metrics.DBPoolIdle,
		waitCount:    metrics.DBPoolWaitCount,
		waitDuration: metrics.DBPoolWaitDurationSeconds,
	}

	ticker := time.NewTicker(time.Duration(intervalMS) * time.Millisecond)
	go func() {
		defer ticker.Stop()

		if err := collectDBPoolStats(db, indexerName, gauges); err != nil {
			logger.Warn("failed to collect initial db pool stats", "error", err)
		}
		for {
			select {
			case <-ctx.Done():
				logger.Info("db pool stats sampler stopped", "cause", "context_done")
				return
			case <-ticker.C:
				if err := collectDBPoolStats(db, indexerName, gauges); err != nil {
					logger.Warn("failed to collect db pool stats", "error", err)
				}
			}
		}
	}()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// stores bundles the persistence backends selected by STORE_BACKEND.
type stores struct {
	ledger      store.Ledger
	checkpoints store.CheckpointStore
	totals      store.TotalsReader
	db          *postgres.DB
	checks      map[string]indexer.ReadinessCheck
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.Store.Backend == config.StoreBackendMemory {
		logger.Warn("using in-memory store; progress is lost on restart")
		mem := memory.New()
		return &stores{ledger: mem, checkpoints: mem, totals: mem, checks: map[string]indexer.ReadinessCheck{}}, nil
	}

	db, err := postgres.New(postgres.Config{
		URL:                cfg.DB.URL,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetime:    cfg.DB.ConnMaxLifetime,
		StatementTimeoutMS: cfg.DB.StatementTimeoutMS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	migrations, err := postgres.Migrations(cfg.DB.MigrationsDir)
	if err == nil {
		err = db.RunMigrations(ctx, migrations)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("connected to database", "migrations_dir", cfg.DB.MigrationsDir)

	ledger := postgres.NewLedger(db)
	return &stores{
		ledger:      ledger,
		checkpoints: ledger.Checkpoints(),
		totals:      ledger,
		db:          db,
		checks:      map[string]indexer.ReadinessCheck{"postgres": db.HealthCheck},
	}, nil
}

func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.Alert.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	if len(channels) == 0 {
		return alert.NoopAlerter{}
	}
	return alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, channels...)
}

func buildSource(cfg *config.Config, logger *slog.Logger) (*evm.Source, *evm.ConnManager) {
	chainName := cfg.Chain.Name
	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name: "rpc",
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.RPCCircuitState.WithLabelValues(chainName, name).Set(float64(to))
			logger.Warn("rpc circuit breaker state changed", "upstream", name, "from", from.String(), "to", to.String())
		},
	})
	client := rpc.NewClient(cfg.Chain.RPCURL, chainName, logger,
		rpc.WithRateLimiter(ratelimit.NewLimiter(cfg.Chain.RateLimit, cfg.Chain.RateBurst, chainName)),
		rpc.WithCircuitBreaker(breaker),
	)
	conn := evm.NewConnManager(cfg.Chain.WSURL, logger)
	source := evm.NewSource(chainName, client, conn, cfg.Tokens, logger,
		evm.WithBlockClock(evm.NewBlockClock(client, chainName, cfg.Chain.BlockTimeLRU, logger)),
	)
	return source, conn
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	logger.Info("starting token-transfer-indexer",
		"indexer", cfg.Indexer.Name,
		"chain", cfg.Chain.Name,
		"store_backend", cfg.Store.Backend,
		"tokens", len(cfg.Tokens),
		"backfill_chunk_size", cfg.Indexer.BackfillChunkSize,
		"max_range_blocks", cfg.Monitor.MaxRangeBlocks,
	)

	tracingCfg := tracing.Config{ServiceName: "token-transfer-indexer", Insecure: cfg.Tracing.Insecure, SampleRatio: cfg.Tracing.SampleRatio}
	if cfg.Tracing.Enabled {
		tracingCfg.Endpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(context.Background(), tracingCfg)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	if err := run(cfg, logger); err != nil {
		logger.Error("indexer exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("indexer shut down gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	alerter := buildAlerter(cfg, logger)
	opts := []indexer.Option{indexer.WithAlerter(alerter)}
	if cfg.Redis.CheckpointMirrorEnabled {
		mirror, err := redispkg.Dial(ctx, cfg.Redis.URL, logger)
		if err != nil {
			return fmt.Errorf("connect checkpoint mirror: %w", err)
		}
		defer mirror.Close()
		opts = append(opts, indexer.WithMirror(mirror))
		st.checks["redis"] = mirror.Ping
	}

	source, conn := buildSource(cfg, logger)
	defer conn.Close()

	mon := monitor.New(source, logger, monitor.WithMaxRangeBlocks(cfg.Monitor.MaxRangeBlocks))
	ix, err := indexer.New(indexer.Config{
		Name:      cfg.Indexer.Name,
		Chain:     cfg.Chain.Name,
		ChunkSize: cfg.Indexer.BackfillChunkSize,
		Write: indexer.WriterConfig{
			MaxAttempts:  cfg.Indexer.WriteRetryMaxAttempts,
			InitialDelay: cfg.Indexer.WriteRetryInitialDelay,
			Timeout:      cfg.Indexer.WriteTimeout,
		},
		DrainTimeout: cfg.Indexer.DrainTimeout,
	}, mon, st.ledger, st.checkpoints, logger, opts...)
	if err != nil {
		return fmt.Errorf("build indexer: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	recon := reconciliation.NewService(st.totals, cfg.Tokens, cfg.Chain.Name, cfg.Indexer.Name, alerter, logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, indexer.ReadyHandler(ix, st.checks), logger)
	})

	g.Go(func() error {
		return ix.Run(gCtx)
	})

	if cfg.Admin.Port > 0 {
		handler, stop := newAdminHandler(cfg, st.checkpoints, ix, recon, logger)
		defer stop()
		g.Go(func() error {
			return serveHTTP(gCtx, "admin", cfg.Admin.Port, handler, logger)
		})
	}

	if cfg.Reconcile.Interval > 0 {
		g.Go(func() error {
			if err := recon.RunPeriodic(gCtx, cfg.Reconcile.Interval); err != nil && gCtx.Err() == nil {
				return fmt.Errorf("reconciliation: %w", err)
			}
			return nil
		})
	}

	if st.db != nil {
		startDBPoolStatsPump(gCtx, st.db.DB, cfg.Indexer.Name, cfg.DB.PoolStatsIntervalMS, logger)
	}

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newHealthMux(ready http.Handler, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/readyz", ready)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func runHealthServer(ctx context.Context, port int, ready http.Handler, logger *slog.Logger) error {
	return serveHTTP(ctx, "health", port, newHealthMux(ready, logger), logger)
}

// newAdminHandler builds the operator API behind auth, audit and rate
// limiting. The returned stop func releases the limiter.
func newAdminHandler(cfg *config.Config, checkpoints admin.CheckpointAdmin, ix *indexer.Indexer, recon *reconciliation.Service, logger *slog.Logger) (http.Handler, func()) {
	srv := admin.NewServer(cfg.Indexer.Name, checkpoints, logger,
		admin.WithStatusProvider(ix),
		admin.WithReconciler(recon),
		admin.WithBasicAuth(cfg.Admin.User, cfg.Admin.Password),
	)
	rl := admin.NewRateLimiter(logger)
	return rl.Wrap(srv.Handler()), rl.Stop
}

func serveHTTP(ctx context.Context, name string, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("http server shutdown error", "server", name, "error", err)
		}
	}()

	logger.Info("http server started", "server", name, "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}
