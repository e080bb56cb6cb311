package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Retrier re-runs storage operations that fail with a connection-level fault.
// Any other error is returned on the first attempt.
type Retrier struct {
	retries uint64
	base    time.Duration
}

// NewRetrier allows up to retries additional attempts with exponential
// backoff starting at base.
func NewRetrier(retries int, base time.Duration) *Retrier {
	if retries < 0 {
		retries = 0
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return &Retrier{retries: uint64(retries), base: base}
}

// Do runs fn, retrying it only while IsConnectionError holds for its error.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if r == nil {
		return fn(ctx)
	}

	attempt := 0
	backoff := retry.WithMaxRetries(r.retries, retry.NewExponential(r.base))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !IsConnectionError(err) {
			return err
		}
		slog.Warn("storage connection fault",
			"op", op,
			"attempt", attempt,
			"max_attempts", r.retries+1,
			"error", err,
		)
		return retry.RetryableError(err)
	})
}
