package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/emperorhan/token-transfer-indexer/internal/chain"
	"github.com/emperorhan/token-transfer-indexer/internal/chain/evm/rpc"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/event"
	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
	"github.com/emperorhan/token-transfer-indexer/internal/metrics"
)

const liveBufferSize = 256

type rangeClient interface {
	GetBlockNumber(ctx context.Context) (int64, error)
	GetLogs(ctx context.Context, filter rpc.LogFilter) ([]*rpc.Log, error)
	GetBlocksByNumber(ctx context.Context, blockNumbers []int64) ([]*rpc.BlockHeader, error)
}

var _ chain.Source = (*Source)(nil)

// Source serves Transfer events of a fixed token set from an EVM chain.
// Historical ranges go over HTTP JSON-RPC; live events over the WebSocket
// held by the ConnManager.
type Source struct {
	chain   string
	client  rangeClient
	conn    *ConnManager
	decoder *Decoder
	clock   *BlockClock
	logger  *slog.Logger
}

type SourceOption func(*Source)

// WithBlockClock replaces the default timestamp resolver.
func WithBlockClock(c *BlockClock) SourceOption {
	return func(s *Source) { s.clock = c }
}

func NewSource(chainName string, client rangeClient, conn *ConnManager, tokens []model.Token, logger *slog.Logger, opts ...SourceOption) *Source {
	s := &Source{
		chain:   chainName,
		client:  client,
		conn:    conn,
		decoder: NewDecoder(tokens),
		logger:  logger.With("component", "evm_source", "chain", chainName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = NewBlockClock(client, chainName, 0, logger)
	}
	return s
}

func (s *Source) Chain() string { return s.chain }

func (s *Source) LatestBlockHeight(ctx context.Context) (int64, error) {
	return s.client.GetBlockNumber(ctx)
}

func (s *Source) FetchLogs(ctx context.Context, from, to int64) ([]event.TransferEvent, error) {
	if from > to {
		return nil, nil
	}

	rawLogs, err := s.client.GetLogs(ctx, s.logFilter(from, to))
	if err != nil {
		return nil, err
	}

	logs := make([]types.Log, 0, len(rawLogs))
	blockSet := make(map[int64]struct{})
	for _, raw := range rawLogs {
		lg, err := FromRPCLog(raw)
		if err != nil {
			s.skipMalformed(err)
			continue
		}
		if lg.Removed {
			continue
		}
		logs = append(logs, lg)
		blockSet[int64(lg.BlockNumber)] = struct{}{}
	}
	if len(logs) == 0 {
		return nil, nil
	}

	blocks := make([]int64, 0, len(blockSet))
	for b := range blockSet {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })

	times, err := s.clock.Lookup(ctx, blocks)
	if err != nil {
		return nil, fmt.Errorf("block timestamps %d..%d: %w", from, to, err)
	}

	events := make([]event.TransferEvent, 0, len(logs))
	for _, lg := range logs {
		ev, err := s.decoder.Decode(lg, times[int64(lg.BlockNumber)])
		if err != nil {
			s.skipMalformed(err)
			continue
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return event.Less(events[i], events[j]) })
	return events, nil
}

func (s *Source) Subscribe(ctx context.Context, sink chan<- event.TransferEvent) (chain.Subscription, error) {
	client, err := s.conn.Get(ctx)
	if err != nil {
		return nil, err
	}

	logs := make(chan types.Log, liveBufferSize)
	sub, err := client.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: s.decoder.Addresses(),
		Topics:    [][]common.Hash{{TransferTopic}},
	}, logs)
	if err != nil {
		s.conn.Invalidate(client)
		return nil, fmt.Errorf("subscribe logs: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	ls := &liveSubscription{
		errCh:  make(chan error, 1),
		cancel: cancel,
	}
	ls.wg.Add(1)
	go func() {
		defer ls.wg.Done()
		defer sub.Unsubscribe()
		if err := s.pump(runCtx, client, sub, logs, sink); err != nil {
			ls.errCh <- err
		}
	}()

	s.logger.Info("live subscription registered", "tokens", len(s.decoder.tokens))
	return ls, nil
}

// pump forwards decoded logs until the context ends (nil) or the stream
// breaks (error).
func (s *Source) pump(ctx context.Context, client logSubscriber, sub ethereum.Subscription, logs <-chan types.Log, sink chan<- event.TransferEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			s.conn.Invalidate(client)
			if err == nil {
				err = errors.New("subscription closed by server")
			}
			return fmt.Errorf("live subscription: %w", err)
		case lg := <-logs:
			if lg.Removed {
				continue
			}
			ev, err := s.decodeLive(ctx, lg)
			if err != nil {
				if errors.Is(err, event.ErrMalformedEvent) {
					s.skipMalformed(err)
					continue
				}
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("live event %s:%d: %w", lg.TxHash.Hex(), lg.Index,
					&chain.MissedBlockError{Block: int64(lg.BlockNumber), Err: err})
			}
			select {
			case sink <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (s *Source) decodeLive(ctx context.Context, lg types.Log) (event.TransferEvent, error) {
	block := int64(lg.BlockNumber)
	times, err := s.clock.Lookup(ctx, []int64{block})
	if err != nil {
		return event.TransferEvent{}, fmt.Errorf("block %d timestamp: %w", block, err)
	}
	return s.decoder.Decode(lg, times[block])
}

func (s *Source) logFilter(from, to int64) rpc.LogFilter {
	addrs := s.decoder.Addresses()
	hexAddrs := make([]string, len(addrs))
	for i, a := range addrs {
		hexAddrs[i] = a.Hex()
	}
	return rpc.LogFilter{
		FromBlock: rpc.FormatHexInt64(from),
		ToBlock:   rpc.FormatHexInt64(to),
		Address:   hexAddrs,
		Topics:    [][]string{{TransferTopic.Hex()}},
	}
}

func (s *Source) skipMalformed(err error) {
	metrics.MalformedEventsTotal.WithLabelValues(s.chain).Inc()
	s.logger.Warn("skipping malformed transfer log", "error", err)
}

type liveSubscription struct {
	errCh  chan error
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (l *liveSubscription) Err() <-chan error { return l.errCh }

func (l *liveSubscription) Unsubscribe() {
	l.once.Do(func() {
		l.cancel()
		l.wg.Wait()
		close(l.errCh)
	})
}
