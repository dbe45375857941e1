package model

import "time"

// Checkpoint tracks indexing progress for one named indexer.
//
// Height is the resume height: every block below it has been applied.
// While Backfilling is set, BackfillCursor is the first block of the next
// unprocessed backfill chunk and BackfillTarget the head observed when the
// backfill was planned. RepairFrom is the lowest block a live write failed to
// apply since the last backfill was planned.
type Checkpoint struct {
	Name           string    `db:"name" json:"name"`
	Height         int64     `db:"height" json:"height"`
	Backfilling    bool      `db:"backfilling" json:"backfilling"`
	BackfillCursor int64     `db:"backfill_cursor" json:"backfill_cursor"`
	BackfillTarget int64     `db:"backfill_target" json:"backfill_target"`
	RepairFrom     *int64    `db:"repair_from" json:"repair_from,omitempty"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ResumeFrom returns the first block that may not yet be applied.
func (c *Checkpoint) ResumeFrom() int64 {
	from := c.Height
	if c.Backfilling && c.BackfillCursor < from {
		from = c.BackfillCursor
	}
	if c.RepairFrom != nil && *c.RepairFrom < from {
		from = *c.RepairFrom
	}
	return from
}
