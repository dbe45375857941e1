package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
	"github.com/emperorhan/token-transfer-indexer/internal/indexer"
	"github.com/emperorhan/token-transfer-indexer/internal/reconciliation"
	"github.com/emperorhan/token-transfer-indexer/internal/store/memory"
	"github.com/emperorhan/token-transfer-indexer/internal/store/mocks"
)

const testName = "usdc-test"

// --- Mocks ---

type stubStatus struct{ snap indexer.HealthSnapshot }

func (s stubStatus) Snapshot(context.Context) indexer.HealthSnapshot { return s.snap }

type stubReconciler struct {
	result *reconciliation.RunResult
	err    error
	calls  int
}

func (s *stubReconciler) Reconcile(context.Context) (*reconciliation.RunResult, error) {
	s.calls++
	return s.result, s.err
}

// --- Helper ---

func newTestServer(t *testing.T, cps CheckpointAdmin, opts ...ServerOption) http.Handler {
	t.Helper()
	return NewServer(testName, cps, slog.Default(), opts...).Handler()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// --- Tests ---

func TestStatus(t *testing.T) {
	h := newTestServer(t, memory.New(), WithStatusProvider(stubStatus{snap: indexer.HealthSnapshot{
		Indexer: testName,
		State:   "steady",
		Ready:   true,
	}}))

	rec := do(h, http.MethodGet, "/admin/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "steady", got["state"])
	assert.Equal(t, true, got["ready"])
}

func TestStatus_NotConfigured(t *testing.T) {
	rec := do(newTestServer(t, memory.New()), http.MethodGet, "/admin/v1/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetCheckpoint(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	h := newTestServer(t, st)

	rec := do(h, http.MethodGet, "/admin/v1/checkpoint", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, st.Init(ctx, testName, 500))
	rec = do(h, http.MethodGet, "/admin/v1/checkpoint", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.EqualValues(t, 500, got["height"])
	assert.EqualValues(t, 500, got["resume_from"])
	assert.Equal(t, false, got["backfilling"])
}

func TestGetCheckpoint_StoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	cps := mocks.NewMockCheckpointStore(ctrl)
	cps.EXPECT().Get(gomock.Any(), testName).Return(nil, errors.New("db down"))

	rec := do(newTestServer(t, cps), http.MethodGet, "/admin/v1/checkpoint", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestRepair_MarksGap(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	require.NoError(t, st.Init(ctx, testName, 500))
	h := newTestServer(t, st)

	rec := do(h, http.MethodPost, "/admin/v1/checkpoint/repair", `{"from_block": 420, "reason": "node served bad logs"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	got := decode(t, rec)
	assert.EqualValues(t, 420, got["resume_from"])
	assert.Equal(t, true, got["backfilling"])

	cp, err := st.Get(ctx, testName)
	require.NoError(t, err)
	require.NotNil(t, cp.RepairFrom)
	assert.EqualValues(t, 420, *cp.RepairFrom)
	assert.EqualValues(t, 500, cp.Height, "height never moves back")
}

func TestRepair_Validation(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.Init(context.Background(), testName, 500))
	h := newTestServer(t, st)

	tests := map[string]struct {
		body string
		code int
	}{
		"not json":       {`{`, http.StatusBadRequest},
		"unknown field":  {`{"block": 3}`, http.StatusBadRequest},
		"missing block":  {`{}`, http.StatusBadRequest},
		"negative block": {`{"from_block": -1}`, http.StatusBadRequest},
		"above height":   {`{"from_block": 501}`, http.StatusConflict},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/admin/v1/checkpoint/repair", tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestRepair_NoCheckpoint(t *testing.T) {
	rec := do(newTestServer(t, memory.New()), http.MethodPost, "/admin/v1/checkpoint/repair", `{"from_block": 1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReconcile(t *testing.T) {
	r := &stubReconciler{result: &reconciliation.RunResult{Indexer: testName, Total: 1, Matched: 1}}
	h := newTestServer(t, memory.New(), WithReconciler(r))

	rec := do(h, http.MethodPost, "/admin/v1/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.EqualValues(t, 1, got["matched"])
	assert.Equal(t, 1, r.calls)
}

func TestReconcile_Errors(t *testing.T) {
	rec := do(newTestServer(t, memory.New()), http.MethodPost, "/admin/v1/reconcile", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h := newTestServer(t, memory.New(), WithReconciler(&stubReconciler{err: errors.New("boom")}))
	rec = do(h, http.MethodPost, "/admin/v1/reconcile", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	h = newTestServer(t, memory.New(), WithReconciler(&stubReconciler{err: context.Canceled}))
	rec = do(h, http.MethodPost, "/admin/v1/reconcile", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	st := memory.New()
	require.NoError(t, st.Init(context.Background(), testName, 1))
	h := newTestServer(t, st, WithBasicAuth("ops", "s3cret"))

	rec := do(h, http.MethodGet, "/admin/v1/checkpoint", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/checkpoint", nil)
	req.SetBasicAuth("ops", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/checkpoint", nil)
	req.SetBasicAuth("ops", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newTestServer(t, memory.New())
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/admin/v1/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodGet, "/admin/v1/reconcile", "").Code)
}

var _ CheckpointAdmin = (*memory.Store)(nil)

func TestCheckpointResponseEmbedsModel(t *testing.T) {
	raw, err := json.Marshal(checkpointResponse{Checkpoint: &model.Checkpoint{Name: testName, Height: 7}, ResumeFrom: 7})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name":"usdc-test"`)
	assert.NotContains(t, string(raw), "repair_from")
}
