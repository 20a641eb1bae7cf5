// Package reorg finds stored blocks that left the canonical chain and purges
// the rows derived from them.
package reorg

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"nftsync/internal/metrics"
	"nftsync/internal/model"
	"nftsync/internal/queue"
	"nftsync/internal/storage"
)

// Queue is the name of the cleanup queue.
const Queue = "reorg-cleanup"

// Payload identifies one orphaned block.
type Payload struct {
	Block     uint64 `json:"block"`
	BlockHash string `json:"block_hash"`
}

// JobID is the idempotency key of the cleanup of blockHash.
func JobID(blockHash string) string { return Queue + ":" + blockHash }

// BlockSource returns the canonical block at a height.
type BlockSource interface {
	Block(ctx context.Context, number uint64) (model.Block, error)
}

// Producer enqueues jobs; queue.Manager implements it.
type Producer interface {
	Enqueue(ctx context.Context, queue string, payload any, opts queue.EnqueueOptions) (bool, error)
}

// Detector compares newly observed blocks with the stored ones.
type Detector struct {
	blocks   storage.BlockStore
	source   BlockSource
	producer Producer
	depth    uint64
	logger   *zap.Logger
}

func NewDetector(blocks storage.BlockStore, source BlockSource, producer Producer, depth uint64, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{blocks: blocks, source: source, producer: producer, depth: depth, logger: logger}
}

// Check schedules cleanup of every stored block that head displaces and
// returns the heights below head whose canonical block must be synced
// again. It walks back at most depth blocks.
func (d *Detector) Check(ctx context.Context, head model.Block) ([]uint64, error) {
	var resync []uint64
	cur := head
	for walked := uint64(0); ; walked++ {
		orphaned, err := d.orphanSiblings(ctx, cur)
		if err != nil {
			return nil, err
		}
		if orphaned > 0 && cur.Number != head.Number {
			resync = append(resync, cur.Number)
		}
		if cur.Number == 0 || walked >= d.depth {
			break
		}

		parents, err := d.blocks.BlocksAt(ctx, cur.Number-1)
		if err != nil {
			return nil, fmt.Errorf("load blocks at %d: %w", cur.Number-1, err)
		}
		if len(parents) == 0 {
			break
		}
		if containsHash(parents, cur.ParentHash) {
			parent := model.Block{Number: cur.Number - 1, Hash: cur.ParentHash}
			n, err := d.orphanSiblings(ctx, parent)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				resync = append(resync, parent.Number)
			}
			break
		}

		// The stored parent is not an ancestor of head: follow the canonical chain down.
		parent, err := d.source.Block(ctx, cur.Number-1)
		if err != nil {
			return nil, fmt.Errorf("fetch canonical block %d: %w", cur.Number-1, err)
		}
		cur = parent
	}
	sort.Slice(resync, func(i, j int) bool { return resync[i] < resync[j] })
	return resync, nil
}

func (d *Detector) orphanSiblings(ctx context.Context, canonical model.Block) (int, error) {
	stored, err := d.blocks.BlocksAt(ctx, canonical.Number)
	if err != nil {
		return 0, fmt.Errorf("load blocks at %d: %w", canonical.Number, err)
	}
	n := 0
	for _, b := range stored {
		if b.Hash == canonical.Hash {
			continue
		}
		_, err := d.producer.Enqueue(ctx, Queue, Payload{Block: b.Number, BlockHash: b.Hash}, queue.EnqueueOptions{
			JobID:    JobID(b.Hash),
			Priority: 1,
		})
		if err != nil {
			return n, fmt.Errorf("schedule cleanup of %s: %w", b.Hash, err)
		}
		metrics.ReorgsDetected.Inc()
		d.logger.Warn("orphaned block",
			zap.Uint64("block", b.Number),
			zap.String("block_hash", b.Hash),
			zap.String("canonical_hash", canonical.Hash),
		)
		n++
	}
	return n, nil
}

func containsHash(blocks []model.Block, hash string) bool {
	for _, b := range blocks {
		if b.Hash == hash {
			return true
		}
	}
	return false
}
