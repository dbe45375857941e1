//go:build integration

package redis

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// setupMirror connects to TEST_REDIS_URL when set, otherwise starts a
// container.
func setupMirror(t *testing.T) *CheckpointMirror {
	t.Helper()
	ctx := context.Background()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		container, err := tcredis.Run(ctx, "redis:7-alpine")
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, container.Terminate(context.Background())) })

		url, err = container.ConnectionString(ctx)
		require.NoError(t, err)
	}

	m, err := Dial(ctx, url, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMirror_PublishHeightIsMonotonic(t *testing.T) {
	m := setupMirror(t)
	ctx := context.Background()
	name := t.Name()

	_, ok, err := m.LastBlock(ctx, name)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := m.PublishHeight(ctx, name, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)

	v, err = m.PublishHeight(ctx, name, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(100), v, "lower height must not overwrite")

	h, ok, err := m.LastBlock(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(100), h)
}

func TestMirror_ConcurrentPublishKeepsMax(t *testing.T) {
	m := setupMirror(t)
	ctx := context.Background()
	name := t.Name()

	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(h int64) {
			defer wg.Done()
			_, err := m.PublishHeight(ctx, name, h)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	h, _, err := m.LastBlock(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(50), h)
}

func TestMirror_CatchingUpFlag(t *testing.T) {
	m := setupMirror(t)
	ctx := context.Background()
	name := t.Name()

	v, err := m.CatchingUp(ctx, name)
	require.NoError(t, err)
	assert.False(t, v)

	require.NoError(t, m.SetCatchingUp(ctx, name, true))
	v, err = m.CatchingUp(ctx, name)
	require.NoError(t, err)
	assert.True(t, v)

	require.NoError(t, m.Delete(ctx, name))
	v, err = m.CatchingUp(ctx, name)
	require.NoError(t, err)
	assert.False(t, v)
}
