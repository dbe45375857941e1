package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"

	// DefaultUnhealthyThreshold is the number of consecutive failed live
	// writes before the indexer reports itself unhealthy.
	DefaultUnhealthyThreshold = 5
)

// Health tracks the outcome of recent live writes.
type Health struct {
	mu                  sync.RWMutex
	status              HealthStatus
	consecutiveFailures int
	threshold           int
	lastSuccessAt       *time.Time
	lastFailureAt       *time.Time
	now                 func() time.Time
}

func NewHealth(threshold int) *Health {
	if threshold < 1 {
		threshold = DefaultUnhealthyThreshold
	}
	return &Health{status: HealthStatusUnknown, threshold: threshold, now: time.Now}
}

// RecordSuccess reports whether this success ends an unhealthy streak.
func (h *Health) RecordSuccess() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	recovered := h.status == HealthStatusUnhealthy
	h.consecutiveFailures = 0
	h.lastSuccessAt = &now
	h.status = HealthStatusHealthy
	return recovered
}

// RecordFailure reports whether this failure made the indexer unhealthy.
func (h *Health) RecordFailure() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	h.consecutiveFailures++
	h.lastFailureAt = &now
	if h.consecutiveFailures >= h.threshold && h.status != HealthStatusUnhealthy {
		h.status = HealthStatusUnhealthy
		return true
	}
	return false
}

func (h *Health) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// HealthSnapshot is a point-in-time view of the indexer (JSON-safe).
type HealthSnapshot struct {
	Indexer             string            `json:"indexer"`
	Chain               string            `json:"chain"`
	State               string            `json:"state"`
	Status              string            `json:"status"`
	Backfilling         bool              `json:"backfilling"`
	CheckpointHeight    *int64            `json:"checkpoint_height,omitempty"`
	MonitorReady        bool              `json:"monitor_ready"`
	MonitorReconnects   int64             `json:"monitor_reconnects"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	LastSuccessAt       *time.Time        `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time        `json:"last_failure_at,omitempty"`
	Checks              map[string]string `json:"checks,omitempty"`
	Ready               bool              `json:"ready"`
}

// Snapshot reads the current checkpoint alongside in-memory state.
// A checkpoint read failure is reported under Checks["checkpoint"].
func (ix *Indexer) Snapshot(ctx context.Context) HealthSnapshot {
	ix.health.mu.RLock()
	snap := HealthSnapshot{
		Indexer:             ix.cfg.Name,
		Chain:               ix.cfg.Chain,
		State:               ix.State().String(),
		Status:              string(ix.health.status),
		Backfilling:         ix.backfilling.Load(),
		MonitorReady:        ix.monitor.Ready(),
		MonitorReconnects:   ix.monitor.Reconnects(),
		ConsecutiveFailures: ix.health.consecutiveFailures,
		LastSuccessAt:       ix.health.lastSuccessAt,
		LastFailureAt:       ix.health.lastFailureAt,
	}
	ix.health.mu.RUnlock()

	cp, err := ix.checkpoints.Get(ctx, ix.cfg.Name)
	if err != nil {
		snap.Checks = map[string]string{"checkpoint": err.Error()}
	} else if cp != nil {
		h := cp.Height
		snap.CheckpointHeight = &h
	}

	snap.Ready = err == nil &&
		ix.State().Serving() &&
		snap.MonitorReady &&
		snap.Status != string(HealthStatusUnhealthy)
	return snap
}

// ReadinessCheck probes one dependency; a non-nil error marks it failing.
type ReadinessCheck func(ctx context.Context) error

// ReadyHandler serves the snapshot as JSON, with 503 unless the indexer and
// every check are ready.
func ReadyHandler(ix *Indexer, checks map[string]ReadinessCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		snap := ix.Snapshot(ctx)
		for name, check := range checks {
			if snap.Checks == nil {
				snap.Checks = make(map[string]string, len(checks))
			}
			if err := check(ctx); err != nil {
				snap.Checks[name] = err.Error()
				snap.Ready = false
				continue
			}
			snap.Checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		if !snap.Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(snap)
	})
}
