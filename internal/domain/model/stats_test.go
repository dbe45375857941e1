package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsDeltas_SortedByLowercasedAddress(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0).UTC()
	rec := &TransferRecord{
		FromAddress:  "0xBBBB",
		ToAddress:    "0xaaaa",
		Amount:       "10",
		TokenAddress: DefaultTokenAddress,
		TokenSymbol:  "USDC",
		BlockTime:    ts,
	}

	deltas := StatsDeltas(rec)
	require.Len(t, deltas, 2)

	assert.Equal(t, "0xaaaa", deltas[0].Address)
	assert.Equal(t, "0", deltas[0].Sent)
	assert.Equal(t, "10", deltas[0].Received)

	assert.Equal(t, "0xbbbb", deltas[1].Address)
	assert.Equal(t, "10", deltas[1].Sent)
	assert.Equal(t, "0", deltas[1].Received)

	for _, d := range deltas {
		assert.EqualValues(t, 1, d.Count)
		assert.Equal(t, ts, d.LastActive)
	}
}

func TestStatsDeltas_SameOrderBothDirections(t *testing.T) {
	ab := StatsDeltas(&TransferRecord{FromAddress: "0xa", ToAddress: "0xB", Amount: "1"})
	ba := StatsDeltas(&TransferRecord{FromAddress: "0xB", ToAddress: "0xa", Amount: "1"})

	require.Len(t, ab, 2)
	require.Len(t, ba, 2)
	assert.Equal(t, ab[0].Address, ba[0].Address)
	assert.Equal(t, ab[1].Address, ba[1].Address)
}

func TestStatsDeltas_SelfTransfer(t *testing.T) {
	deltas := StatsDeltas(&TransferRecord{FromAddress: "0xC", ToAddress: "0xc", Amount: "5"})

	require.Len(t, deltas, 1)
	assert.Equal(t, "0xc", deltas[0].Address)
	assert.Equal(t, "5", deltas[0].Sent)
	assert.Equal(t, "5", deltas[0].Received)
	assert.EqualValues(t, 1, deltas[0].Count)
}

func TestCheckpoint_ResumeFrom(t *testing.T) {
	assert.EqualValues(t, 120, (&Checkpoint{Height: 120}).ResumeFrom())
	assert.EqualValues(t, 100, (&Checkpoint{Height: 120, Backfilling: true, BackfillCursor: 100}).ResumeFrom())
	assert.EqualValues(t, 120, (&Checkpoint{Height: 120, Backfilling: true, BackfillCursor: 130}).ResumeFrom())

	repair := int64(90)
	assert.EqualValues(t, 90, (&Checkpoint{Height: 120, Backfilling: true, BackfillCursor: 100, RepairFrom: &repair}).ResumeFrom())
}
