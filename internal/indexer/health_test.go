package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/token-transfer-indexer/internal/store/memory"
)

func TestHealth_Transitions(t *testing.T) {
	h := NewHealth(3)
	assert.Equal(t, HealthStatusUnknown, h.Status())

	assert.False(t, h.RecordFailure())
	assert.False(t, h.RecordFailure())
	assert.True(t, h.RecordFailure(), "third failure crosses the threshold")
	assert.False(t, h.RecordFailure(), "already unhealthy")
	assert.Equal(t, HealthStatusUnhealthy, h.Status())

	assert.True(t, h.RecordSuccess())
	assert.False(t, h.RecordSuccess())
	assert.Equal(t, HealthStatusHealthy, h.Status())
}

func TestHealth_DefaultThreshold(t *testing.T) {
	h := NewHealth(0)
	for i := 1; i < DefaultUnhealthyThreshold; i++ {
		require.False(t, h.RecordFailure())
	}
	assert.True(t, h.RecordFailure())
}

func getReady(t *testing.T, handler http.Handler) (int, HealthSnapshot) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var snap HealthSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return rec.Code, snap
}

func TestReadyHandler(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.Init(ctx, testIndexer, 42))
	mon := newFakeMonitor(42)
	ix := newTestIndexer(t, mon, st, 10)

	code, snap := getReady(t, ReadyHandler(ix, nil))
	assert.Equal(t, http.StatusServiceUnavailable, code, "not serving before Run")
	assert.Equal(t, "starting", snap.State)

	h := startIndexer(t, ix)
	waitState(t, ix, StateSteady)

	code, snap = getReady(t, ReadyHandler(ix, map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
	}))
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, snap.Ready)
	assert.Equal(t, "steady", snap.State)
	require.NotNil(t, snap.CheckpointHeight)
	assert.Equal(t, int64(42), *snap.CheckpointHeight)
	assert.Equal(t, "ok", snap.Checks["postgres"])

	code, snap = getReady(t, ReadyHandler(ix, map[string]ReadinessCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, snap.Ready)
	assert.Equal(t, "connection refused", snap.Checks["redis"])

	mon.mu.Lock()
	mon.ready = false
	mon.mu.Unlock()
	code, _ = getReady(t, ReadyHandler(ix, nil))
	assert.Equal(t, http.StatusServiceUnavailable, code, "live feed down")

	require.NoError(t, h.stop(t))
}

func TestSnapshot_TimestampsRecorded(t *testing.T) {
	st := memory.New()
	ix := newTestIndexer(t, newFakeMonitor(1), st, 10)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ix.health.now = func() time.Time { return fixed }
	ix.health.RecordFailure()

	snap := ix.Snapshot(context.Background())
	require.NotNil(t, snap.LastFailureAt)
	assert.Equal(t, fixed, *snap.LastFailureAt)
	assert.Equal(t, 1, snap.ConsecutiveFailures)
	assert.Nil(t, snap.CheckpointHeight)
}
