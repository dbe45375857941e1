package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 5 * time.Second}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, time.Duration(0), Policy{}.Delay(3))
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	rec := &recordingSleep{}
	calls := 0
	err := Do(context.Background(), Policy{
		MaxAttempts: 3,
		Initial:     time.Second,
		Sleep:       rec.sleep,
	}, func(context.Context, int) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("busy"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestDo_TerminalErrorStopsImmediately(t *testing.T) {
	rec := &recordingSleep{}
	bad := errors.New("invalid params")
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 5, Initial: time.Second, Sleep: rec.sleep},
		func(context.Context, int) error {
			calls++
			return bad
		})

	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestDo_Exhausted(t *testing.T) {
	rec := &recordingSleep{}
	busy := errors.New("busy")
	err := Do(context.Background(), Policy{
		MaxAttempts: 3,
		Initial:     time.Second,
		ShouldRetry: func(error) bool { return true },
		Sleep:       rec.sleep,
	}, func(context.Context, int) error { return busy })

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, busy)
	assert.Len(t, rec.delays, 2)
}

func TestDo_CancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Policy{
		MaxAttempts: 3,
		Initial:     time.Hour,
		ShouldRetry: func(error) bool { return true },
	}, func(context.Context, int) error { return errors.New("busy") })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}
