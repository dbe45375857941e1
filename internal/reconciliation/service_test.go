package reconciliation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/emperorhan/token-transfer-indexer/internal/alert"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/event"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
	"github.com/emperorhan/token-transfer-indexer/internal/indexer"
	"github.com/emperorhan/token-transfer-indexer/internal/store/memory"
	"github.com/emperorhan/token-transfer-indexer/internal/store/mocks"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockAlerter implements alert.Alerter.
type mockAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
	err    error
}

func (m *mockAlerter) Send(_ context.Context, a alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return m.err
}

func (m *mockAlerter) getAlerts() []alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]alert.Alert, len(m.alerts))
	copy(cp, m.alerts)
	return cp
}

// ---------------------------------------------------------------------------
// Helper
// ---------------------------------------------------------------------------

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

var (
	usdc = model.DefaultToken()
	usdt = model.Token{Address: "0x9702230a8ea53601f5cd2dc00fdbc13d4df4a8c7", Symbol: "USDT", Decimals: 6}
)

func balanced(token string) *model.LedgerTotals {
	return &model.LedgerTotals{
		TokenAddress:     token,
		Transfers:        2,
		TransferVolume:   "15.5",
		Touches:          4,
		Addresses:        3,
		TotalSent:        "15.5",
		TotalReceived:    "15.50",
		TransactionCount: 4,
	}
}

func eventOf(from, to, amount string, block int64, tx string) event.TransferEvent {
	return event.TransferEvent{
		From:         from,
		To:           to,
		Amount:       amount,
		BlockNumber:  block,
		TxHash:       tx,
		BlockTime:    time.Unix(1_700_000_000+block, 0).UTC(),
		TokenAddress: usdc.Address,
		TokenSymbol:  usdc.Symbol,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestReconcile_AllMatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	totals := mocks.NewMockTotalsReader(ctrl)
	totals.EXPECT().Totals(gomock.Any(), usdc.Address).Return(balanced(usdc.Address), nil)
	totals.EXPECT().Totals(gomock.Any(), usdt.Address).Return(balanced(usdt.Address), nil)

	alerter := &mockAlerter{}
	svc := NewService(totals, []model.Token{usdc, usdt}, "avalanche", "usdc-transfers", alerter, testLogger())

	result, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "usdc-transfers", result.Indexer)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Matched)
	assert.Zero(t, result.Mismatched)
	assert.Zero(t, result.Errors)

	require.Len(t, result.Tokens, 2)
	assert.Equal(t, "0", result.Tokens[0].SentDiff)
	assert.Equal(t, "0", result.Tokens[0].ReceivedDiff)
	assert.Zero(t, result.Tokens[0].CountDiff)

	// No alert should be sent when everything matches.
	assert.Empty(t, alerter.getAlerts())
}

func TestReconcile_Mismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	totals := mocks.NewMockTotalsReader(ctrl)

	drifted := balanced(usdc.Address)
	drifted.TotalReceived = "25.5"
	drifted.TransactionCount = 5
	totals.EXPECT().Totals(gomock.Any(), usdc.Address).Return(drifted, nil)

	alerter := &mockAlerter{}
	svc := NewService(totals, []model.Token{usdc}, "avalanche", "usdc-transfers", alerter, testLogger())

	result, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Mismatched)

	res := result.Tokens[0]
	assert.False(t, res.IsMatch)
	assert.Equal(t, "0", res.SentDiff)
	assert.Equal(t, "10", res.ReceivedDiff)
	assert.EqualValues(t, 1, res.CountDiff)

	alerts := alerter.getAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.AlertTypeReconcileErr, alerts[0].Type)
	assert.Equal(t, "avalanche", alerts[0].Chain)
	assert.Equal(t, "usdc-transfers", alerts[0].Indexer)
	assert.Equal(t, "1", alerts[0].Fields["mismatched"])
	assert.Equal(t, "sent 0, received 10, count +1", alerts[0].Fields["USDC"])
}

func TestReconcile_ReadErrorCountsButContinues(t *testing.T) {
	ctrl := gomock.NewController(t)
	totals := mocks.NewMockTotalsReader(ctrl)
	totals.EXPECT().Totals(gomock.Any(), usdc.Address).Return(nil, errors.New("connection refused"))
	totals.EXPECT().Totals(gomock.Any(), usdt.Address).Return(balanced(usdt.Address), nil)

	alerter := &mockAlerter{}
	svc := NewService(totals, []model.Token{usdc, usdt}, "avalanche", "idx", alerter, testLogger())

	result, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, "connection refused", result.Tokens[0].Error)
	assert.Empty(t, alerter.getAlerts())
}

func TestReconcile_UnparseableTotalsIsAnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	totals := mocks.NewMockTotalsReader(ctrl)
	bad := balanced(usdc.Address)
	bad.TotalSent = "NaN"
	totals.EXPECT().Totals(gomock.Any(), usdc.Address).Return(bad, nil)

	svc := NewService(totals, []model.Token{usdc}, "avalanche", "idx", nil, testLogger())
	result, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Contains(t, result.Tokens[0].Error, "unparseable")
}

func TestReconcile_CancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	totals := mocks.NewMockTotalsReader(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(totals, []model.Token{usdc}, "avalanche", "idx", nil, testLogger())
	_, err := svc.Reconcile(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReconcile_AfterIndexingIntoMemoryStore(t *testing.T) {
	st := memory.New()
	w := indexer.NewWriter(st, "idx", indexer.WriterConfig{}, testLogger())
	ctx := context.Background()

	events := []struct {
		from, to, amount string
		block            int64
		tx               string
	}{
		{"0x1111111111111111111111111111111111111111", "0x2222222222222222222222222222222222222222", "10", 1, "0xa1"},
		{"0x2222222222222222222222222222222222222222", "0x3333333333333333333333333333333333333333", "2.5", 2, "0xa2"},
		{"0x3333333333333333333333333333333333333333", "0x3333333333333333333333333333333333333333", "1", 3, "0xa3"},
		{"0x1111111111111111111111111111111111111111", "0x2222222222222222222222222222222222222222", "10", 1, "0xa1"},
	}
	for _, e := range events {
		_, err := w.Apply(ctx, eventOf(e.from, e.to, e.amount, e.block, e.tx), model.SourceLive)
		require.NoError(t, err)
	}

	svc := NewService(st, []model.Token{usdc}, "avalanche", "idx", nil, testLogger())
	result, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Matched, "%+v", result.Tokens)
	assert.EqualValues(t, 3, result.Tokens[0].Totals.Transfers)
	assert.Equal(t, "13.5", result.Tokens[0].Totals.TransferVolume)
}

func TestRunPeriodic_StopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	totals := mocks.NewMockTotalsReader(ctrl)
	totals.EXPECT().Totals(gomock.Any(), usdc.Address).Return(balanced(usdc.Address), nil).MinTimes(1)

	svc := NewService(totals, []model.Token{usdc}, "avalanche", "idx", nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.RunPeriodic(ctx, 10*time.Millisecond) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not stop")
	}
}
