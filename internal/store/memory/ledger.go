// Package memory implements the store interfaces in process memory. Row locks
// are emulated per key and held until commit, so lock ordering matters here
// the same way it does against Postgres.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/emperorhan/token-transfer-indexer/internal/domain/event"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
	"github.com/emperorhan/token-transfer-indexer/internal/store"
)

const defaultLockWait = 2 * time.Second

var (
	_ store.Ledger          = (*Store)(nil)
	_ store.CheckpointStore = (*Store)(nil)
	_ store.StatsReader     = (*Store)(nil)
	_ store.TotalsReader    = (*Store)(nil)
)

type statsRow struct {
	symbol     string
	sent       decimal.Decimal
	received   decimal.Decimal
	count      int64
	lastActive time.Time
	updatedAt  time.Time
}

type statsKey struct {
	address string
	token   string
}

type Option func(*Store)

// WithLockWait bounds how long a transaction waits for a row lock before
// failing with store.ErrWriteConflict.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockWait = d
		}
	}
}

type Store struct {
	mu          sync.Mutex
	transfers   map[event.Key]model.TransferRecord
	stats       map[statsKey]*statsRow
	checkpoints map[string]model.Checkpoint

	locks    *lockTable
	lockWait time.Duration
	now      func() time.Time
}

func New(opts ...Option) *Store {
	s := &Store{
		transfers:   make(map[event.Key]model.TransferRecord),
		stats:       make(map[statsKey]*statsRow),
		checkpoints: make(map[string]model.Checkpoint),
		locks:       newLockTable(),
		lockWait:    defaultLockWait,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.LedgerTx) error) error {
	tx := &memTx{s: s, held: make(map[string]struct{})}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) GetStats(_ context.Context, address, tokenAddress string) (*model.AddressTokenStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.stats[statsKey{address: address, token: tokenAddress}]
	if !ok {
		return nil, nil
	}
	return &model.AddressTokenStats{
		Address:          address,
		TokenAddress:     tokenAddress,
		TokenSymbol:      row.symbol,
		TotalSent:        row.sent.String(),
		TotalReceived:    row.received.String(),
		TransactionCount: row.count,
		LastActive:       row.lastActive,
		UpdatedAt:        row.updatedAt,
	}, nil
}

func (s *Store) CountTransfers(_ context.Context, tokenAddress string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, t := range s.transfers {
		if t.TokenAddress == tokenAddress {
			n++
		}
	}
	return n, nil
}

func (s *Store) Totals(_ context.Context, tokenAddress string) (*model.LedgerTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var volume, sent, received decimal.Decimal
	t := &model.LedgerTotals{TokenAddress: tokenAddress}
	for _, tr := range s.transfers {
		if tr.TokenAddress != tokenAddress {
			continue
		}
		amt, err := decimal.NewFromString(tr.Amount)
		if err != nil {
			return nil, fmt.Errorf("transfer %s:%d amount %q: %w", tr.TxHash, tr.LogIndex, tr.Amount, err)
		}
		volume = volume.Add(amt)
		t.Transfers++
		t.Touches += 2
		if tr.FromAddress == tr.ToAddress {
			t.Touches--
		}
	}
	for k, row := range s.stats {
		if k.token != tokenAddress {
			continue
		}
		t.Addresses++
		sent = sent.Add(row.sent)
		received = received.Add(row.received)
		t.TransactionCount += row.count
	}
	t.TransferVolume = volume.String()
	t.TotalSent = sent.String()
	t.TotalReceived = received.String()
	return t, nil
}

// Transfer returns the stored record for key, if any.
func (s *Store) Transfer(key event.Key) (model.TransferRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[key]
	return t, ok
}

type stagedStats struct {
	key   statsKey
	delta model.StatsDelta
	sent  decimal.Decimal
	recv  decimal.Decimal
}

type memTx struct {
	s    *Store
	held map[string]struct{}

	transfers   []model.TransferRecord
	pending     map[event.Key]struct{}
	stats       []stagedStats
	checkpoints map[string]int64
}

func (tx *memTx) lock(ctx context.Context, key string) error {
	if _, ok := tx.held[key]; ok {
		return nil
	}
	if err := tx.s.locks.acquire(ctx, key, tx.s.lockWait); err != nil {
		return err
	}
	tx.held[key] = struct{}{}
	return nil
}

func (tx *memTx) release() {
	for key := range tx.held {
		tx.s.locks.release(key)
	}
	tx.held = nil
}

func (tx *memTx) InsertTransfer(ctx context.Context, rec *model.TransferRecord) (bool, error) {
	key := event.Key{TxHash: rec.TxHash, LogIndex: rec.LogIndex}
	if err := tx.lock(ctx, "transfer:"+key.String()); err != nil {
		return false, fmt.Errorf("insert transfer: %w", err)
	}

	tx.s.mu.Lock()
	_, exists := tx.s.transfers[key]
	tx.s.mu.Unlock()
	if exists {
		return false, nil
	}
	if _, staged := tx.pending[key]; staged {
		return false, nil
	}

	r := *rec
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if tx.pending == nil {
		tx.pending = make(map[event.Key]struct{})
	}
	tx.pending[key] = struct{}{}
	tx.transfers = append(tx.transfers, r)
	return true, nil
}

func (tx *memTx) ApplyStats(ctx context.Context, d model.StatsDelta) error {
	sent, err := decimal.NewFromString(d.Sent)
	if err != nil {
		return fmt.Errorf("apply stats: sent %q: %w", d.Sent, err)
	}
	recv, err := decimal.NewFromString(d.Received)
	if err != nil {
		return fmt.Errorf("apply stats: received %q: %w", d.Received, err)
	}

	key := statsKey{address: d.Address, token: d.TokenAddress}
	if err := tx.lock(ctx, "stats:"+d.Address+"|"+d.TokenAddress); err != nil {
		return fmt.Errorf("apply stats: %w", err)
	}
	tx.stats = append(tx.stats, stagedStats{key: key, delta: d, sent: sent, recv: recv})
	return nil
}

func (tx *memTx) AdvanceCheckpoint(ctx context.Context, name string, height int64) error {
	if err := tx.lock(ctx, "checkpoint:"+name); err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}
	if tx.checkpoints == nil {
		tx.checkpoints = make(map[string]int64)
	}
	if height > tx.checkpoints[name] {
		tx.checkpoints[name] = height
	}
	return nil
}

func (tx *memTx) commit() {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, t := range tx.transfers {
		t.CreatedAt = now
		s.transfers[event.Key{TxHash: t.TxHash, LogIndex: t.LogIndex}] = t
	}
	for _, st := range tx.stats {
		row, ok := s.stats[st.key]
		if !ok {
			row = &statsRow{symbol: st.delta.TokenSymbol}
			s.stats[st.key] = row
		}
		row.sent = row.sent.Add(st.sent)
		row.received = row.received.Add(st.recv)
		row.count += st.delta.Count
		if st.delta.LastActive.After(row.lastActive) {
			row.lastActive = st.delta.LastActive
		}
		row.updatedAt = now
	}
	for name, h := range tx.checkpoints {
		cp, ok := s.checkpoints[name]
		if !ok {
			cp = model.Checkpoint{Name: name}
		}
		if h > cp.Height {
			cp.Height = h
		}
		cp.UpdatedAt = now
		s.checkpoints[name] = cp
	}
}
