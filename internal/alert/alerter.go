// Package alert delivers operator notifications about indexer health.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emperorhan/token-transfer-indexer/internal/metrics"
)

type AlertType string

const (
	AlertTypeBackfillStalled AlertType = "BACKFILL_STALLED"
	AlertTypeLiveEventDrop   AlertType = "LIVE_EVENT_DROPPED"
	AlertTypeUnhealthy       AlertType = "UNHEALTHY"
	AlertTypeRecovery        AlertType = "RECOVERY"
	AlertTypeReconcileErr    AlertType = "RECONCILIATION_MISMATCH"
)

// Alert is one notification. Indexer names the checkpoint the event
// concerns.
type Alert struct {
	Type    AlertType
	Chain   string
	Indexer string
	Title   string
	Message string
	Fields  map[string]string
}

type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// channel is an Alerter that can be labelled in metrics.
type channel interface {
	Alerter
	Name() string
}

func channelName(a Alerter) string {
	if c, ok := a.(channel); ok {
		return c.Name()
	}
	return "unknown"
}

// MultiAlerter fans alerts out to every channel. An alert with the same
// type, chain and indexer as one sent within the cooldown is dropped.
type MultiAlerter struct {
	channels []Alerter
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func NewMultiAlerter(cooldown time.Duration, logger *slog.Logger, channels ...Alerter) *MultiAlerter {
	return &MultiAlerter{
		channels: channels,
		cooldown: cooldown,
		logger:   logger.With("component", "alerter"),
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// admit records the send time and reports whether the alert is outside its
// cooldown window.
func (m *MultiAlerter) admit(a Alert) (string, bool) {
	key := fmt.Sprintf("%s/%s/%s", a.Type, a.Chain, a.Indexer)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, seen := m.last[key]; seen && now.Sub(prev) < m.cooldown {
		return key, false
	}
	m.last[key] = now
	return key, true
}

// Send delivers to every channel even when one fails; the returned error
// joins all channel failures.
func (m *MultiAlerter) Send(ctx context.Context, a Alert) error {
	key, ok := m.admit(a)
	if !ok {
		m.logger.Debug("alert suppressed by cooldown", "key", key)
		for _, c := range m.channels {
			metrics.AlertsCooldownSkipped.WithLabelValues(channelName(c), string(a.Type)).Inc()
		}
		return nil
	}

	var errs []error
	for _, c := range m.channels {
		name := channelName(c)
		if err := c.Send(ctx, a); err != nil {
			m.logger.Warn("alert send failed", "channel", name, "type", a.Type, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		metrics.AlertsSentTotal.WithLabelValues(name, string(a.Type)).Inc()
	}
	return errors.Join(errs...)
}

// NoopAlerter discards alerts. Used when no channel is configured.
type NoopAlerter struct{}

func (NoopAlerter) Send(context.Context, Alert) error { return nil }
