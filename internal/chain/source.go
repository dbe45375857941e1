package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/emperorhan/token-transfer-indexer/internal/domain/event"
)

//go:generate mockgen -source=source.go -destination=mocks/mock_source.go -package=mocks

// ErrSourceUnavailable means the chain endpoint could not be reached or kept
// failing after retries.
var ErrSourceUnavailable = errors.New("chain source unavailable")

// ErrMalformedEvent marks a log that cannot be decoded into a transfer.
var ErrMalformedEvent = event.ErrMalformedEvent

// MissedBlockError ends a live subscription when a transfer in Block was
// received but could not be turned into an event.
type MissedBlockError struct {
	Block int64
	Err   error
}

func (e *MissedBlockError) Error() string {
	return fmt.Sprintf("missed transfer in block %d: %v", e.Block, e.Err)
}

func (e *MissedBlockError) Unwrap() error { return e.Err }

// Source abstracts the chain endpoint that supplies Transfer events for the
// configured token set.
type Source interface {
	// Chain returns the chain identifier (e.g. "avalanche").
	Chain() string

	// LatestBlockHeight returns the current chain head.
	LatestBlockHeight(ctx context.Context) (int64, error)

	// FetchLogs returns decoded transfers in the inclusive range [from, to].
	// Implementations may cap the range size; callers split larger ranges.
	// Logs that cannot be decoded are skipped.
	FetchLogs(ctx context.Context, from, to int64) ([]event.TransferEvent, error)

	// Subscribe streams new transfers into sink until the returned
	// subscription fails or is cancelled. A failed subscription is not
	// restarted by the source.
	Subscribe(ctx context.Context, sink chan<- event.TransferEvent) (Subscription, error)
}

// Subscription is a live event stream registered with a Source.
type Subscription interface {
	// Err delivers at most one error when the stream terminates
	// unexpectedly. The channel is closed by Unsubscribe.
	Err() <-chan error
	// Unsubscribe stops delivery. Safe to call more than once.
	Unsubscribe()
}
