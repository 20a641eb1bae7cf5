package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nftsync/internal/metrics"
)

// leaseSlack keeps a lease alive a little past the job timeout so a slow
// but finishing job is not claimed twice.
const leaseSlack = 30 * time.Second

func (m *Manager) consume(ctx context.Context, def Definition) error {
	logger := m.logger.With(zap.String("queue", def.Name))
	if def.Lazy {
		if !m.waitForWork(ctx, def.Name) {
			return nil
		}
		logger.Debug("lazy queue has work, starting consumer")
	}

	var pool errgroup.Group
	pool.SetLimit(def.Concurrency)
	var inflight atomic.Int64

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	logger.Info("consumer started", zap.Int("concurrency", def.Concurrency))
	for {
		claimed := 0
		free := def.Concurrency - int(inflight.Load())

		paused, err := m.Paused(ctx, def.Name)
		if err != nil && ctx.Err() == nil {
			logger.Warn("read pause flag failed", zap.Error(err))
		}
		if !paused && err == nil && free > 0 {
			jobs, err := m.broker.Claim(ctx, def.Name, free, def.Timeout+leaseSlack)
			if err != nil && ctx.Err() == nil {
				logger.Warn("claim failed", zap.Error(err))
			}
			claimed = len(jobs)
			for _, job := range jobs {
				job := job
				inflight.Add(1)
				metrics.JobsInFlight.WithLabelValues(def.Name).Inc()
				pool.Go(func() error {
					defer func() {
						inflight.Add(-1)
						metrics.JobsInFlight.WithLabelValues(def.Name).Dec()
					}()
					m.execute(ctx, def, job, logger)
					return nil
				})
			}
		}

		// A full claim likely means more work is waiting.
		if claimed > 0 && claimed == free {
			select {
			case <-ctx.Done():
			default:
				continue
			}
		}
		select {
		case <-ctx.Done():
			logger.Info("consumer stopping, waiting for running jobs", zap.Int64("in_flight", inflight.Load()))
			return pool.Wait()
		case <-ticker.C:
		}
	}
}

func (m *Manager) waitForWork(ctx context.Context, queue string) bool {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		stats, err := m.broker.Stats(ctx, queue)
		if err == nil && stats.Pending() > 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// execute runs one job detached from shutdown, bounded by the job timeout,
// and records the outcome with the broker.
func (m *Manager) execute(ctx context.Context, def Definition, job Job, logger *zap.Logger) {
	bg := context.WithoutCancel(ctx)
	runCtx, cancel := context.WithTimeout(bg, def.Timeout)
	defer cancel()

	start := time.Now()
	res, err := safeCall(runCtx, def.Handler, job)
	if err == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("job timed out after %s", def.Timeout)
	}
	metrics.JobDuration.WithLabelValues(def.Name).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		m.fail(bg, def, job, err, logger)
	case res.Retry:
		metrics.JobsProcessed.WithLabelValues(def.Name, "requeued").Inc()
		if rerr := m.broker.Retry(bg, job, m.now().Add(res.Delay), job.Attempt, ""); rerr != nil {
			logger.Error("requeue job failed", zap.String("job", job.ID), zap.Error(rerr))
		}
	default:
		metrics.JobsProcessed.WithLabelValues(def.Name, "completed").Inc()
		if cerr := m.broker.Complete(bg, job); cerr != nil {
			logger.Error("complete job failed", zap.String("job", job.ID), zap.Error(cerr))
		}
	}
}

func (m *Manager) fail(ctx context.Context, def Definition, job Job, cause error, logger *zap.Logger) {
	attempt := job.Attempt + 1
	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = def.MaxRetries
	}
	fields := []zap.Field{
		zap.String("job", job.ID),
		zap.String("key", job.Key),
		zap.Int("attempt", attempt),
		zap.Error(cause),
	}
	if attempt > maxRetries {
		metrics.JobsProcessed.WithLabelValues(def.Name, "dead").Inc()
		metrics.JobsDeadLettered.WithLabelValues(def.Name).Inc()
		logger.Error("job dead-lettered", fields...)
		job.Attempt = attempt
		if err := m.broker.DeadLetter(ctx, job, cause.Error()); err != nil {
			logger.Error("dead-letter job failed", zap.String("job", job.ID), zap.Error(err))
		}
		return
	}
	delay := def.Backoff.Next(attempt)
	metrics.JobsProcessed.WithLabelValues(def.Name, "failed").Inc()
	logger.Warn("job failed, retrying", append(fields, zap.Duration("delay", delay))...)
	if err := m.broker.Retry(ctx, job, m.now().Add(delay), attempt, cause.Error()); err != nil {
		logger.Error("retry job failed", zap.String("job", job.ID), zap.Error(err))
	}
}

func safeCall(ctx context.Context, handler Handler, job Job) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}
