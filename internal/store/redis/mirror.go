// Package redis publishes indexer progress to Redis so readers that cannot
// reach the ledger database can still see how far indexing has come. The
// ledger checkpoint stays the source of truth; the mirror is best effort.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPingTimeout = 5 * time.Second

// publishHeight stores ARGV[1] at KEYS[1] only when it is greater than the
// current value, and returns the value held afterwards.
var publishHeight = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
local nxt = tonumber(ARGV[1])
if cur == false or tonumber(cur) < nxt then
  redis.call('SET', KEYS[1], ARGV[1])
  return nxt
end
return tonumber(cur)
`)

type CheckpointMirror struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// Dial connects to url (redis:// or rediss://) and pings it.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*CheckpointMirror, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.ContextTimeoutEnabled = true
	client := redis.NewClient(opts)

	m := NewCheckpointMirror(client, logger)
	if err := m.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	m.logger.Info("redis connected", "addr", opts.Addr, "db", opts.DB)
	return m, nil
}

func NewCheckpointMirror(client redis.UniversalClient, logger *slog.Logger) *CheckpointMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckpointMirror{client: client, logger: logger.With("component", "checkpoint_mirror")}
}

func lastBlockKey(name string) string  { return name + ":lastBlock" }
func catchingUpKey(name string) string { return name + ":catchingUp" }

// PublishHeight raises the mirrored height to at least height.
func (m *CheckpointMirror) PublishHeight(ctx context.Context, name string, height int64) (int64, error) {
	v, err := publishHeight.Run(ctx, m.client, []string{lastBlockKey(name)}, height).Int64()
	if err != nil {
		return 0, fmt.Errorf("publish height %s: %w", name, err)
	}
	return v, nil
}

func (m *CheckpointMirror) SetCatchingUp(ctx context.Context, name string, catchingUp bool) error {
	if err := m.client.Set(ctx, catchingUpKey(name), strconv.FormatBool(catchingUp), 0).Err(); err != nil {
		return fmt.Errorf("set catching-up %s: %w", name, err)
	}
	return nil
}

// LastBlock returns the mirrored height; ok is false when none was published.
func (m *CheckpointMirror) LastBlock(ctx context.Context, name string) (height int64, ok bool, err error) {
	raw, err := m.client.Get(ctx, lastBlockKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get last block %s: %w", name, err)
	}
	height, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse last block %s=%q: %w", name, raw, err)
	}
	return height, true, nil
}

func (m *CheckpointMirror) CatchingUp(ctx context.Context, name string) (bool, error) {
	raw, err := m.client.Get(ctx, catchingUpKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get catching-up %s: %w", name, err)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse catching-up %s=%q: %w", name, raw, err)
	}
	return v, nil
}

// Ping checks connectivity, bounded by a default timeout when ctx has none.
func (m *CheckpointMirror) Ping(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPingTimeout)
		defer cancel()
	}
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Delete removes both keys for name.
func (m *CheckpointMirror) Delete(ctx context.Context, name string) error {
	if err := m.client.Del(ctx, lastBlockKey(name), catchingUpKey(name)).Err(); err != nil {
		return fmt.Errorf("delete mirror %s: %w", name, err)
	}
	return nil
}

func (m *CheckpointMirror) Close() error {
	return m.client.Close()
}
