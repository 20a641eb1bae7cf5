package reorg

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nftsync/internal/metrics"
	"nftsync/internal/queue"
	"nftsync/internal/storage"
)

const (
	defaultLimit         = 1000
	defaultMaxIterations = 10
	defaultRequeueDelay  = time.Second
)

// BlockCleaner is a secondary index that also drops an orphaned block.
type BlockCleaner interface {
	DeleteBlock(ctx context.Context, blockHash string) error
}

// Cleanup is the handler of the cleanup queue. Each pass deletes at most
// Limit rows per table; a job that runs out of iterations asks to run again
// with the same payload, so progress survives restarts.
type Cleanup struct {
	Store         storage.ReorgStore
	Indexes       []BlockCleaner
	Limit         int
	MaxIterations int
	RequeueDelay  time.Duration
	Logger        *zap.Logger
}

func (c *Cleanup) Handle(ctx context.Context, job queue.Job) (queue.Result, error) {
	var p Payload
	if err := job.Decode(&p); err != nil {
		return queue.Done, err
	}
	if p.BlockHash == "" {
		return queue.Done, fmt.Errorf("cleanup job %s has no block hash", job.ID)
	}
	logger := c.logger().With(zap.Uint64("block", p.Block), zap.String("block_hash", p.BlockHash))

	iterations := c.MaxIterations
	if iterations <= 0 {
		iterations = defaultMaxIterations
	}
	for i := 0; i < iterations; i++ {
		deleted, err := c.pass(ctx, p)
		if err != nil {
			return queue.Done, err
		}
		if deleted > 0 {
			logger.Debug("purged orphaned rows", zap.Int64("rows", deleted), zap.Int("pass", i+1))
			continue
		}
		for _, idx := range c.Indexes {
			if err := idx.DeleteBlock(ctx, p.BlockHash); err != nil {
				return queue.Done, fmt.Errorf("purge index: %w", err)
			}
		}
		if err := c.Store.DeleteBlock(ctx, p.BlockHash); err != nil {
			return queue.Done, fmt.Errorf("delete block %s: %w", p.BlockHash, err)
		}
		logger.Info("orphaned block purged")
		return queue.Done, nil
	}

	delay := c.RequeueDelay
	if delay <= 0 {
		delay = defaultRequeueDelay
	}
	return queue.Again(delay), nil
}

// pass deletes one bounded slice from every event table.
func (c *Cleanup) pass(ctx context.Context, p Payload) (int64, error) {
	limit := c.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	var total int64
	for _, table := range storage.EventTables {
		n, err := c.Store.DeleteBlockRows(ctx, table, p.Block, p.BlockHash, limit)
		if err != nil {
			return total, err
		}
		if n > 0 {
			metrics.ReorgRowsDeleted.WithLabelValues(table).Add(float64(n))
		}
		total += n
	}
	return total, nil
}

func (c *Cleanup) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
