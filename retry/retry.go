// Package retry wraps one call attempt in a retry policy.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mini-rpc-core/errs"
	"mini-rpc-core/internal/logging"
	"mini-rpc-core/message"
	"mini-rpc-core/spi"
)

// Op is one complete attempt: resolve, serialize, transmit, receive, deserialize.
type Op func(ctx context.Context) (*message.RpcResponse, error)

// Retryer runs one call attempt under a retry policy.
type Retryer interface {
	DoRetry(ctx context.Context, op Op) (*message.RpcResponse, error)
}

func init() {
	spi.RegisterFactory("retry.NoRetry", func() any { return NoRetry{} })
	spi.RegisterFactory("retry.ScheduledRetry", func() any { return NewScheduledRetry(DefaultAttempts, DefaultDelay) })
}

// NoRetry runs the operation exactly once.
type NoRetry struct{}

func (NoRetry) DoRetry(ctx context.Context, op Op) (*message.RpcResponse, error) {
	return op(ctx)
}

// Settings of the spi-built ScheduledRetry.
const (
	DefaultAttempts = 3
	DefaultDelay    = 2 * time.Second
)

// ScheduledRetry retries every failure after a fixed delay, up to a fixed number
// of attempts in total.
type ScheduledRetry struct {
	attempts int
	delay    time.Duration
	logger   *zap.Logger
}

// NewScheduledRetry makes at most attempts calls, delay apart.
func NewScheduledRetry(attempts int, delay time.Duration) *ScheduledRetry {
	if attempts < 1 {
		attempts = 1
	}
	return &ScheduledRetry{
		attempts: attempts,
		delay:    delay,
		logger:   logging.Named("retry"),
	}
}

// DoRetry returns the first success. After the last failed attempt the error wraps
// both errs.ErrRetryExhausted and the last failure. A done ctx stops the wait
// between attempts.
func (r *ScheduledRetry) DoRetry(ctx context.Context, op Op) (*message.RpcResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		resp, err := op(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == r.attempts {
			break
		}
		r.logger.Warn("attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", r.attempts),
			zap.Duration("delay", r.delay),
			zap.Error(err))

		timer := time.NewTimer(r.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w after %d attempts: %w (last: %w)", errs.ErrRetryExhausted, attempt, ctx.Err(), lastErr)
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", errs.ErrRetryExhausted, r.attempts, lastErr)
}
