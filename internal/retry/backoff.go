package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy bounds a retry loop. Delay doubles from Initial up to Max; Jitter
// adds up to that fraction of the delay on top.
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Jitter      float64

	// ShouldRetry decides which errors are retried. Nil uses Classify.
	ShouldRetry func(error) bool
	// OnRetry is called before each sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep replaces the context-aware timer, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ExhaustedError reports that every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Delay returns the wait before the retry that follows attempt (1-based),
// without jitter.
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.Initial
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && delay > p.Max {
		delay = p.Max
	}
	return delay
}

func (p Policy) jittered(attempt int) time.Duration {
	d := p.Delay(attempt)
	if d <= 0 || p.Jitter <= 0 {
		return d
	}
	span := int64(float64(d) * p.Jitter)
	if span <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(span))
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempts
// run out. Exhaustion is reported as *ExhaustedError wrapping the last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(err error) bool { return Classify(err).IsTransient() }
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !shouldRetry(err) {
			return err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := p.jittered(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
