package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrUnavailable is returned once every attempt of a store call failed transiently.
var ErrUnavailable = errors.New("store unavailable")

// Defaults for Retrier.
const (
	DefaultAttemptTimeout = 3 * time.Second
	DefaultMaxTries       = 3
)

// Retrier runs store calls with a per-attempt timeout and bounded exponential backoff.
// The zero value uses the defaults above.
type Retrier struct {
	Timeout         time.Duration
	MaxTries        uint
	InitialInterval time.Duration // first backoff wait; 0 uses the backoff package default
}

// Retry runs op until it succeeds, fails permanently, or exhausts MaxTries.
// Only IsTransient errors are retried. Exhaustion wraps ErrUnavailable.
// PRE: op honours ctx cancellation
// POST: Returns op's value, op's permanent error, or an ErrUnavailable wrap
func Retry[T any](ctx context.Context, r Retrier, name string, op func(ctx context.Context) (T, error)) (T, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	tries := r.MaxTries
	if tries == 0 {
		tries = DefaultMaxTries
	}
	b := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		b.InitialInterval = r.InitialInterval
	}

	attempt := func() (T, error) {
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		v, err := op(actx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	v, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("store_retry", "op", name, "error", err, "wait_ms", wait.Milliseconds())
		}),
	)
	if err != nil && IsTransient(err) && ctx.Err() == nil {
		slog.Error("store_unavailable", "op", name, "tries", tries, "error", err)
		return v, fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
	}
	return v, err
}

// IsTransient reports whether err is worth retrying: a lock conflict,
// an attempt timeout or a dropped connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
