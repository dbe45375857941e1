package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_InitOnlyOnce(t *testing.T) {
	s := New()
	ctx := context.Background()

	cp, err := s.Get(ctx, "idx")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, s.Init(ctx, "idx", 100))
	require.NoError(t, s.Init(ctx, "idx", 7))

	cp, err = s.Get(ctx, "idx")
	require.NoError(t, err)
	assert.EqualValues(t, 100, cp.Height)
	assert.False(t, cp.Backfilling)
}

func TestCheckpoint_ConcurrentAdvanceIsMonotonic(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, "idx", 0))

	var wg sync.WaitGroup
	for h := int64(1); h <= 500; h++ {
		wg.Add(1)
		go func(h int64) {
			defer wg.Done()
			assert.NoError(t, s.Advance(ctx, "idx", h))
		}(h)
	}
	wg.Wait()

	cp, err := s.Get(ctx, "idx")
	require.NoError(t, err)
	assert.EqualValues(t, 500, cp.Height)

	require.NoError(t, s.Advance(ctx, "idx", 10))
	cp, err = s.Get(ctx, "idx")
	require.NoError(t, err)
	assert.EqualValues(t, 500, cp.Height)
}

func TestCheckpoint_RepairPointSurvivesBackfillCompletion(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, "idx", 100))

	require.NoError(t, s.BeginBackfill(ctx, "idx", 100, 105))
	require.NoError(t, s.MarkGap(ctx, "idx", 110))
	require.NoError(t, s.AdvanceBackfill(ctx, "idx", 105))
	require.NoError(t, s.FinishBackfill(ctx, "idx"))

	cp, err := s.Get(ctx, "idx")
	require.NoError(t, err)
	assert.True(t, cp.Backfilling)
	assert.EqualValues(t, 105, cp.ResumeFrom())

	require.NoError(t, s.Advance(ctx, "idx", 130))
	cp, err = s.Get(ctx, "idx")
	require.NoError(t, err)
	assert.EqualValues(t, 105, cp.ResumeFrom())

	require.NoError(t, s.BeginBackfill(ctx, "idx", 105, 130))
	require.NoError(t, s.AdvanceBackfill(ctx, "idx", 130))
	require.NoError(t, s.FinishBackfill(ctx, "idx"))

	cp, err = s.Get(ctx, "idx")
	require.NoError(t, err)
	assert.False(t, cp.Backfilling)
	assert.Nil(t, cp.RepairFrom)
}

func TestCheckpoint_BackfillKeepsRepairPointAboveTarget(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, "idx", 100))
	require.NoError(t, s.MarkGap(ctx, "idx", 500))

	require.NoError(t, s.BeginBackfill(ctx, "idx", 100, 105))
	require.NoError(t, s.AdvanceBackfill(ctx, "idx", 105))
	require.NoError(t, s.FinishBackfill(ctx, "idx"))

	cp, err := s.Get(ctx, "idx")
	require.NoError(t, err)
	assert.True(t, cp.Backfilling)
	require.NotNil(t, cp.RepairFrom)
	assert.EqualValues(t, 500, *cp.RepairFrom)
	assert.EqualValues(t, 105, cp.ResumeFrom())

	// A range that reaches the repair point covers it.
	require.NoError(t, s.BeginBackfill(ctx, "idx", 105, 500))
	cp, err = s.Get(ctx, "idx")
	require.NoError(t, err)
	assert.Nil(t, cp.RepairFrom)
}

func TestCheckpoint_MarkGapWhileIdleResumesAtGap(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Init(ctx, "idx", 100))
	require.NoError(t, s.BeginBackfill(ctx, "idx", 50, 100))
	require.NoError(t, s.AdvanceBackfill(ctx, "idx", 100))
	require.NoError(t, s.FinishBackfill(ctx, "idx"))
	require.NoError(t, s.Advance(ctx, "idx", 300))
	require.NoError(t, s.MarkGap(ctx, "idx", 250))

	cp, err := s.Get(ctx, "idx")
	require.NoError(t, err)
	assert.True(t, cp.Backfilling)
	assert.EqualValues(t, 250, cp.BackfillCursor)
	assert.EqualValues(t, 250, cp.ResumeFrom())
}

func TestCheckpoint_MissingRowIgnoredByBackfillOps(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.MarkGap(ctx, "idx", 5))
	cp, err := s.Get(ctx, "idx")
	require.NoError(t, err)
	assert.Nil(t, cp)
}
