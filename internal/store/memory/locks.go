package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emperorhan/token-transfer-indexer/internal/store"
)

// lockTable hands out exclusive per-key locks. A lock is a buffered channel
// of capacity one; holding it means having sent into it.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]chan struct{})}
}

func (t *lockTable) slot(key string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[key] = ch
	}
	return ch
}

func (t *lockTable) acquire(ctx context.Context, key string, wait time.Duration) error {
	ch := t.slot(key)
	select {
	case ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("lock %s: wait exceeded %s: %w", key, wait, store.ErrWriteConflict)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *lockTable) release(key string) {
	<-t.slot(key)
}
