// Package indexer drives extraction: a backfill over a fixed block range and
// a realtime poller that follows the chain head.
package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nftsync/internal/model"
	"nftsync/internal/onchain"
)

// Extractor produces protocol-tagged events for a block range.
type Extractor interface {
	FromRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.EnhancedEvent, error)
}

// BatchProcessor decodes and commits one batch; pipeline.Processor implements it.
type BatchProcessor interface {
	Process(ctx context.Context, batch model.EventsBatch) (*onchain.Data, error)
}

// HeadSource reports the latest block number.
type HeadSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// processBatches runs batches with at most concurrency in flight. Batches
// touch disjoint transactions, so their order does not matter. Every
// scheduled batch finishes even when ctx is cancelled; ctx only stops new
// ones from starting.
func processBatches(ctx context.Context, processor BatchProcessor, batches []model.EventsBatch, concurrency int, logger *zap.Logger) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(concurrency)
	for _, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		batch := batch
		g.Go(func() error {
			if _, err := processor.Process(gctx, batch); err != nil {
				logger.Error("batch failed", zap.String("batch_id", batch.ID), zap.Error(err))
				return fmt.Errorf("batch %s: %w", batch.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
