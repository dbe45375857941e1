package memory

import (
	"context"

	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
)

func (s *Store) Get(_ context.Context, name string) (*model.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[name]
	if !ok {
		return nil, nil
	}
	if cp.RepairFrom != nil {
		v := *cp.RepairFrom
		cp.RepairFrom = &v
	}
	return &cp, nil
}

func (s *Store) Init(ctx context.Context, name string, height int64) error {
	return s.updateCheckpoint(ctx, name, true, func(cp *model.Checkpoint, existed bool) {
		if !existed {
			cp.Height = height
		}
	})
}

func (s *Store) Advance(ctx context.Context, name string, height int64) error {
	return s.updateCheckpoint(ctx, name, true, func(cp *model.Checkpoint, _ bool) {
		if height > cp.Height {
			cp.Height = height
		}
	})
}

func (s *Store) BeginBackfill(ctx context.Context, name string, from, target int64) error {
	return s.updateCheckpoint(ctx, name, false, func(cp *model.Checkpoint, _ bool) {
		cp.Backfilling = true
		cp.BackfillCursor = from
		cp.BackfillTarget = target
		if cp.RepairFrom != nil && *cp.RepairFrom >= from && *cp.RepairFrom <= target {
			cp.RepairFrom = nil
		}
	})
}

func (s *Store) AdvanceBackfill(ctx context.Context, name string, cursor int64) error {
	return s.updateCheckpoint(ctx, name, false, func(cp *model.Checkpoint, _ bool) {
		if cursor > cp.BackfillCursor {
			cp.BackfillCursor = cursor
		}
		if cursor > cp.Height {
			cp.Height = cursor
		}
	})
}

func (s *Store) FinishBackfill(ctx context.Context, name string) error {
	return s.updateCheckpoint(ctx, name, false, func(cp *model.Checkpoint, _ bool) {
		if cp.RepairFrom == nil {
			cp.Backfilling = false
		}
	})
}

func (s *Store) MarkGap(ctx context.Context, name string, height int64) error {
	return s.updateCheckpoint(ctx, name, false, func(cp *model.Checkpoint, _ bool) {
		if !cp.Backfilling {
			cp.BackfillCursor = height
			cp.BackfillTarget = height
		}
		cp.Backfilling = true
		if cp.RepairFrom == nil || height < *cp.RepairFrom {
			h := height
			cp.RepairFrom = &h
		}
	})
}

// updateCheckpoint takes the checkpoint row lock so out-of-transaction
// updates serialize with ledger transactions. Rows that do not exist are
// created only when create is set.
func (s *Store) updateCheckpoint(ctx context.Context, name string, create bool, fn func(cp *model.Checkpoint, existed bool)) error {
	key := "checkpoint:" + name
	if err := s.locks.acquire(ctx, key, s.lockWait); err != nil {
		return err
	}
	defer s.locks.release(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[name]
	if !ok && !create {
		return nil
	}
	if !ok {
		cp = model.Checkpoint{Name: name}
	}
	fn(&cp, ok)
	cp.UpdatedAt = s.now()
	s.checkpoints[name] = cp
	return nil
}
