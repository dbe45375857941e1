package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Indexer counters are partitioned by indexer name; RPC and monitor counters
// by chain.

var (
	// Indexer write routine
	EventsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "ledger",
		Name:      "events_applied_total",
		Help:      "Transfer events passed through the write routine, by source and result",
	}, []string{"indexer", "source", "result"})

	WriteConflictRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "ledger",
		Name:      "write_conflict_retries_total",
		Help:      "Write routine attempts retried after a lock conflict",
	}, []string{"indexer"})

	WriteFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "ledger",
		Name:      "write_failures_total",
		Help:      "Events dropped after the write routine failed, by source and reason",
	}, []string{"indexer", "source", "reason"})

	WriteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "indexer",
		Subsystem: "ledger",
		Name:      "write_duration_seconds",
		Help:      "Write routine duration including retries",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"indexer"})

	MalformedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "ledger",
		Name:      "malformed_events_total",
		Help:      "Logs skipped because they could not be decoded",
	}, []string{"chain"})

	// Checkpoint
	CheckpointHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "checkpoint",
		Name:      "height",
		Help:      "Last persisted checkpoint height",
	}, []string{"indexer"})

	ChainHeadHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "checkpoint",
		Name:      "chain_head",
		Help:      "Chain head observed at startup or by the last backfill chunk",
	}, []string{"indexer"})

	// Backfill
	BackfillChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "backfill",
		Name:      "chunks_total",
		Help:      "Backfill chunks processed, by result",
	}, []string{"indexer", "result"})

	BackfillRemainingBlocks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "backfill",
		Name:      "remaining_blocks",
		Help:      "Blocks left before the backfill reaches its target",
	}, []string{"indexer"})

	BackfillChunkLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "indexer",
		Subsystem: "backfill",
		Name:      "chunk_duration_seconds",
		Help:      "Duration of one backfill chunk, fetch and apply",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"indexer"})

	IndexerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "lifecycle",
		Name:      "state",
		Help:      "Current lifecycle state of the indexer (1 for the active state)",
	}, []string{"indexer", "state"})

	// Monitor
	MonitorReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "monitor",
		Name:      "reconnects_total",
		Help:      "Live subscription re-registrations after transport loss",
	}, []string{"chain"})

	MonitorEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "monitor",
		Name:      "events_received_total",
		Help:      "Transfer events delivered by the live subscription",
	}, []string{"chain"})

	MonitorFetchRangeRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "monitor",
		Name:      "fetch_range_retries_total",
		Help:      "Historical range sub-requests retried after a transient error",
	}, []string{"chain"})

	MonitorConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "monitor",
		Name:      "connected",
		Help:      "1 while the live subscription is registered",
	}, []string{"chain"})

	// RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total chain RPC calls by method and status",
	}, []string{"chain", "method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total times RPC calls waited for rate limiter",
	}, []string{"chain"})

	RPCCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "rpc",
		Name:      "circuit_state",
		Help:      "Circuit breaker state per upstream (0 closed, 1 open, 2 half-open)",
	}, []string{"chain", "upstream"})

	BlockTimeCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "cache",
		Name:      "block_time_hits_total",
		Help:      "Block timestamp lookups served from cache",
	}, []string{"chain"})

	BlockTimeCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "cache",
		Name:      "block_time_misses_total",
		Help:      "Block timestamp lookups that required an RPC call",
	}, []string{"chain"})

	// Database pool
	DBPoolOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "postgres",
		Name:      "db_pool_open",
		Help:      "Current number of open PostgreSQL connections in the pool",
	}, []string{"indexer"})

	DBPoolInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "postgres",
		Name:      "db_pool_in_use",
		Help:      "Current number of in-use PostgreSQL connections in the pool",
	}, []string{"indexer"})

	DBPoolIdle = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "postgres",
		Name:      "db_pool_idle",
		Help:      "Current number of idle PostgreSQL connections in the pool",
	}, []string{"indexer"})

	DBPoolWaitCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "postgres",
		Name:      "db_pool_wait_count",
		Help:      "Cumulative count of waits for PostgreSQL connections from pool",
	}, []string{"indexer"})

	DBPoolWaitDurationSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "postgres",
		Name:      "db_pool_wait_duration_seconds",
		Help:      "Latest PostgreSQL pool wait duration in seconds",
	}, []string{"indexer"})

	// Checkpoint mirror
	MirrorPublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "redis",
		Name:      "mirror_publish_errors_total",
		Help:      "Failed attempts to publish checkpoint progress to Redis",
	}, []string{"indexer"})

	// Ledger reconciliation
	ReconciliationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "reconciliation",
		Name:      "runs_total",
		Help:      "Completed ledger reconciliation runs",
	}, []string{"indexer"})

	ReconciliationMismatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "reconciliation",
		Name:      "mismatches_total",
		Help:      "Tokens whose aggregates disagreed with their transfer records",
	}, []string{"indexer", "token"})

	ReconciliationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Tokens whose totals could not be read",
	}, []string{"indexer", "token"})

	// Alerts
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent",
	}, []string{"channel", "alert_type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts skipped due to cooldown",
	}, []string{"channel", "alert_type"})
)
