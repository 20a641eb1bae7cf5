package indexer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"nftsync/internal/events"
	"nftsync/internal/kv"
	"nftsync/internal/metrics"
	"nftsync/internal/model"
	"nftsync/internal/storage"
)

// PendingList holds block numbers that failed or must be synced again.
const PendingList = "realtime-pending"

// RealtimeConfig holds runtime settings for the head follower.
type RealtimeConfig struct {
	StateName        string
	PollInterval     time.Duration
	MaxBlockLag      uint64
	LastBlockLatency uint64
	Concurrency      int
	MaxRetries       int
	RetryBackoff     time.Duration
	// PendingLimit caps how many pending blocks one tick picks up.
	PendingLimit int
}

// ChainSource serves canonical headers.
type ChainSource interface {
	HeadSource
	Block(ctx context.Context, number uint64) (model.Block, error)
}

// ReorgChecker schedules cleanup of displaced blocks and returns the heights
// to sync again; reorg.Detector implements it.
type ReorgChecker interface {
	Check(ctx context.Context, head model.Block) ([]uint64, error)
}

// Realtime follows the chain head one block at a time.
type Realtime struct {
	cfg       RealtimeConfig
	chain     ChainSource
	extractor Extractor
	processor BatchProcessor
	blocks    storage.BlockStore
	reorgs    ReorgChecker
	pending   kv.Store
	state     storage.StateStore
	logger    *zap.Logger
	onReorg   []func(from uint64)
}

func NewRealtime(
	cfg RealtimeConfig,
	chain ChainSource,
	extractor Extractor,
	processor BatchProcessor,
	blocks storage.BlockStore,
	reorgs ReorgChecker,
	pending kv.Store,
	state storage.StateStore,
	logger *zap.Logger,
) *Realtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StateName == "" {
		cfg.StateName = "realtime"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.PendingLimit <= 0 {
		cfg.PendingLimit = 64
	}
	return &Realtime{
		cfg:       cfg,
		chain:     chain,
		extractor: extractor,
		processor: processor,
		blocks:    blocks,
		reorgs:    reorgs,
		pending:   pending,
		state:     state,
		logger:    logger,
	}
}

// OnReorg registers fn to run with the lowest resynced height whenever a
// reorg is detected, so caches keyed by height can be dropped.
func (r *Realtime) OnReorg(fn func(from uint64)) {
	r.onReorg = append(r.onReorg, fn)
}

// Run polls until ctx is cancelled. A failed tick is logged and retried on
// the next one.
func (r *Realtime) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := r.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("realtime tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick syncs every block between the last processed one and the head minus
// the configured latency, plus any pending blocks. Blocks further than
// MaxBlockLag behind the target are skipped.
func (r *Realtime) Tick(ctx context.Context) error {
	retry := retrier{maxRetries: r.cfg.MaxRetries, baseDelay: r.cfg.RetryBackoff, logger: r.logger}

	var head uint64
	err := retry.do(ctx, "latest block", func(ctx context.Context) error {
		var err error
		head, err = r.chain.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	if head < r.cfg.LastBlockLatency {
		return nil
	}
	target := head - r.cfg.LastBlockLatency

	next := target
	if r.state != nil {
		last, ok, err := r.state.LoadState(ctx, r.cfg.StateName)
		if err != nil {
			return err
		}
		if ok {
			next = last + 1
		}
	}
	if r.cfg.MaxBlockLag > 0 && target >= r.cfg.MaxBlockLag && next < target-r.cfg.MaxBlockLag {
		r.logger.Warn("too far behind head, skipping blocks",
			zap.Uint64("from", next),
			zap.Uint64("to", target-r.cfg.MaxBlockLag-1),
		)
		next = target - r.cfg.MaxBlockLag
	}

	numbers, err := r.popPending(ctx)
	if err != nil {
		return err
	}
	for n := next; n <= target; n++ {
		numbers = append(numbers, n)
	}
	numbers = uniqueSorted(numbers)

	var failed []uint64
	for _, n := range numbers {
		if err := ctx.Err(); err != nil {
			failed = append(failed, n)
			continue
		}
		if err := r.syncBlock(ctx, n); err != nil {
			r.logger.Error("block sync failed", zap.Uint64("block", n), zap.Error(err))
			failed = append(failed, n)
		}
	}
	if err := r.pushPending(context.WithoutCancel(ctx), failed...); err != nil {
		return err
	}

	if next <= target && r.state != nil {
		if err := r.state.SaveState(ctx, r.cfg.StateName, target); err != nil {
			return err
		}
	}
	if next <= target {
		metrics.LastProcessedBlock.WithLabelValues("realtime").Set(float64(target))
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d blocks left pending", len(failed))
	}
	return nil
}

// syncBlock processes the canonical block at height n. Events whose block
// hash differs from the header mean the block changed under us; the block
// is retried later.
func (r *Realtime) syncBlock(ctx context.Context, n uint64) error {
	retry := retrier{maxRetries: r.cfg.MaxRetries, baseDelay: r.cfg.RetryBackoff, logger: r.logger}
	fields := []zap.Field{zap.Uint64("block", n)}

	var block model.Block
	err := retry.do(ctx, "fetch block", func(ctx context.Context) error {
		var err error
		block, err = r.chain.Block(ctx, n)
		return err
	}, fields...)
	if err != nil {
		return fmt.Errorf("fetch block: %w", err)
	}

	if r.reorgs != nil {
		resync, err := r.reorgs.Check(ctx, block)
		if err != nil {
			return fmt.Errorf("reorg check: %w", err)
		}
		if len(resync) > 0 {
			r.logger.Info("resyncing reorged heights", zap.Uint64("block", n), zap.Int("heights", len(resync)))
			for _, fn := range r.onReorg {
				fn(resync[0])
			}
			if err := r.pushPending(ctx, resync...); err != nil {
				return err
			}
		}
	}

	var evs []model.EnhancedEvent
	err = retry.do(ctx, "extract block", func(ctx context.Context) error {
		var err error
		evs, err = r.extractor.FromRange(ctx, n, n)
		return err
	}, fields...)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	for _, ev := range evs {
		if ev.Params.BlockHash != block.Hash {
			return fmt.Errorf("block %d changed during sync: header %s, log %s", n, block.Hash, ev.Params.BlockHash)
		}
	}

	if err := processBatches(ctx, r.processor, events.SplitBatches(evs, false), r.cfg.Concurrency, r.logger); err != nil {
		return err
	}
	if err := r.blocks.SaveBlock(ctx, block); err != nil {
		return fmt.Errorf("save block: %w", err)
	}
	r.logger.Debug("block synced", zap.Uint64("block", n), zap.String("block_hash", block.Hash), zap.Int("events", len(evs)))
	return nil
}

func (r *Realtime) popPending(ctx context.Context) ([]uint64, error) {
	if r.pending == nil {
		return nil, nil
	}
	values, err := r.pending.PopPending(ctx, PendingList, r.cfg.PendingLimit)
	if err != nil {
		return nil, fmt.Errorf("pop pending blocks: %w", err)
	}
	out := make([]uint64, 0, len(values))
	for _, v := range values {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			r.logger.Warn("dropping malformed pending block", zap.String("value", v))
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *Realtime) pushPending(ctx context.Context, numbers ...uint64) error {
	if r.pending == nil || len(numbers) == 0 {
		return nil
	}
	values := make([]string, len(numbers))
	for i, n := range numbers {
		values[i] = strconv.FormatUint(n, 10)
	}
	if err := r.pending.PushPending(ctx, PendingList, values...); err != nil {
		return fmt.Errorf("push pending blocks: %w", err)
	}
	return nil
}

func uniqueSorted(numbers []uint64) []uint64 {
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	out := numbers[:0]
	for i, n := range numbers {
		if i > 0 && n == numbers[i-1] {
			continue
		}
		out = append(out, n)
	}
	return out
}
