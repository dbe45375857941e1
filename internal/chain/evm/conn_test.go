package evm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emperorhan/token-transfer-indexer/internal/retry"
)

type fakeSub struct {
	errCh chan error
	once  sync.Once
}

func newFakeSub() *fakeSub { return &fakeSub{errCh: make(chan error, 1)} }

func (s *fakeSub) Err() <-chan error { return s.errCh }
func (s *fakeSub) Unsubscribe()      { s.once.Do(func() { close(s.errCh) }) }

type fakeWS struct {
	mu        sync.Mutex
	closed    bool
	subErr    error
	logs      chan<- types.Log
	sub       *fakeSub
	subscribe chan struct{}
}

func newFakeWS() *fakeWS { return &fakeWS{subscribe: make(chan struct{}, 1)} }

func (w *fakeWS) SubscribeFilterLogs(_ context.Context, _ ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.subErr != nil {
		return nil, w.subErr
	}
	w.logs = ch
	w.sub = newFakeSub()
	select {
	case w.subscribe <- struct{}{}:
	default:
	}
	return w.sub, nil
}

func (w *fakeWS) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

func (w *fakeWS) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func fastDialPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Initial: time.Millisecond, Sleep: noSleep}
}

func TestConnManager_DialsOnceAndReuses(t *testing.T) {
	ws := newFakeWS()
	dials := 0
	m := NewConnManager("wss://node.example/key", slog.Default(),
		WithDialPolicy(fastDialPolicy(3)),
		withDialer(func(context.Context, string) (logSubscriber, error) {
			dials++
			return ws, nil
		}))
	assert.Equal(t, ConnDisconnected, m.State())

	c1, err := m.Get(context.Background())
	require.NoError(t, err)
	c2, err := m.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Equal(t, 1, dials)
	assert.Equal(t, ConnReady, m.State())
}

func TestConnManager_RetriesDial(t *testing.T) {
	ws := newFakeWS()
	dials := 0
	m := NewConnManager("ws://node", slog.Default(),
		WithDialPolicy(fastDialPolicy(3)),
		withDialer(func(context.Context, string) (logSubscriber, error) {
			dials++
			if dials < 3 {
				return nil, errors.New("connection refused")
			}
			return ws, nil
		}))

	_, err := m.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, dials)
}

func TestConnManager_DialExhausted(t *testing.T) {
	m := NewConnManager("ws://node", slog.Default(),
		WithDialPolicy(fastDialPolicy(2)),
		withDialer(func(context.Context, string) (logSubscriber, error) {
			return nil, errors.New("connection refused")
		}))

	_, err := m.Get(context.Background())
	require.Error(t, err)
	var exhausted *retry.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
	assert.Equal(t, ConnDisconnected, m.State())
}

func TestConnManager_InvalidateRedials(t *testing.T) {
	first, second := newFakeWS(), newFakeWS()
	conns := []*fakeWS{first, second}
	m := NewConnManager("ws://node", slog.Default(),
		WithDialPolicy(fastDialPolicy(1)),
		withDialer(func(context.Context, string) (logSubscriber, error) {
			c := conns[0]
			conns = conns[1:]
			return c, nil
		}))

	c1, err := m.Get(context.Background())
	require.NoError(t, err)
	m.Invalidate(c1)
	assert.True(t, first.isClosed())
	assert.Equal(t, ConnDisconnected, m.State())

	// a stale handle must not tear down the new connection
	c2, err := m.Get(context.Background())
	require.NoError(t, err)
	m.Invalidate(c1)
	assert.False(t, second.isClosed())
	assert.Same(t, second, c2)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://rpc.example.com", redactURL("https://rpc.example.com/v2/secret-key"))
	assert.Equal(t, "localhost:8545", redactURL("localhost:8545"))
}
