package indexer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// retrier repeats chain calls with doubling delays. It is for the source
// side only; failed batches are left to the caller.
type retrier struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

func (r retrier) do(ctx context.Context, op string, fn func(context.Context) error, fields ...zap.Field) error {
	maxRetries := r.maxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := r.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || ctx.Err() != nil {
			return err
		}
		if r.logger != nil {
			r.logger.Warn(op+" failed", append(fields, zap.Int("attempt", attempt+1), zap.Error(err))...)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
