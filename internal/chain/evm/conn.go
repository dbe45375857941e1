package evm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/emperorhan/token-transfer-indexer/internal/retry"
)

// ConnState is the lifecycle of the owned WebSocket connection.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnReady
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnReady:
		return "ready"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// logSubscriber is the part of *ethclient.Client the live path uses.
type logSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	Close()
}

type dialFunc func(ctx context.Context, url string) (logSubscriber, error)

func dialEthclient(ctx context.Context, url string) (logSubscriber, error) {
	return ethclient.DialContext(ctx, url)
}

const (
	defaultDialAttempts     = 5
	defaultDialInitialDelay = 500 * time.Millisecond
	defaultDialMaxDelay     = 15 * time.Second
)

// ConnManager owns one WebSocket client. Callers obtain it with Get, which
// dials on demand, and hand it back with Invalidate when a subscription on
// it fails so the next Get redials.
type ConnManager struct {
	url    string
	dial   dialFunc
	policy retry.Policy
	logger *slog.Logger

	dialMu sync.Mutex
	mu     sync.Mutex
	state  ConnState
	client logSubscriber
}

type ConnOption func(*ConnManager)

// WithDialPolicy overrides the dial retry policy.
func WithDialPolicy(p retry.Policy) ConnOption {
	return func(m *ConnManager) { m.policy = p }
}

func withDialer(d dialFunc) ConnOption {
	return func(m *ConnManager) { m.dial = d }
}

func NewConnManager(wsURL string, logger *slog.Logger, opts ...ConnOption) *ConnManager {
	m := &ConnManager{
		url:    wsURL,
		dial:   dialEthclient,
		logger: logger.With("component", "ws_conn"),
		policy: retry.Policy{
			MaxAttempts: defaultDialAttempts,
			Initial:     defaultDialInitialDelay,
			Max:         defaultDialMaxDelay,
			Jitter:      0.2,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.policy.OnRetry == nil {
		m.policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			m.logger.Warn("websocket dial failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		}
	}
	return m
}

func (m *ConnManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Get returns the live client, dialing when there is none. Concurrent
// callers share one dial.
func (m *ConnManager) Get(ctx context.Context) (logSubscriber, error) {
	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	m.mu.Lock()
	if m.state == ConnReady && m.client != nil {
		c := m.client
		m.mu.Unlock()
		return c, nil
	}
	m.state = ConnConnecting
	m.mu.Unlock()

	var client logSubscriber
	err := retry.Do(ctx, m.policy, func(ctx context.Context, _ int) error {
		c, err := m.dial(ctx, m.url)
		if err != nil {
			return retry.Transient(err)
		}
		client = c
		return nil
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = ConnDisconnected
		return nil, fmt.Errorf("dial %s: %w", redactURL(m.url), err)
	}
	m.client = client
	m.state = ConnReady
	m.logger.Info("websocket connected", "url", redactURL(m.url))
	return client, nil
}

// Invalidate closes the given client if it is still current. Stale clients
// from an earlier generation are ignored.
func (m *ConnManager) Invalidate(c logSubscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c == nil || c != m.client {
		return
	}
	m.client.Close()
	m.client = nil
	m.state = ConnDisconnected
	m.logger.Warn("websocket connection invalidated")
}

// Close releases the connection.
func (m *ConnManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	m.state = ConnDisconnected
}

// redactURL drops the path, which commonly carries provider API keys.
func redactURL(u string) string {
	scheme := ""
	if i := strings.Index(u, "://"); i >= 0 {
		scheme, u = u[:i+3], u[i+3:]
	}
	if i := strings.IndexByte(u, '/'); i >= 0 {
		u = u[:i]
	}
	return scheme + u
}
