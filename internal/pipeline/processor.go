package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nftsync/internal/handlers"
	"nftsync/internal/metrics"
	"nftsync/internal/model"
	"nftsync/internal/onchain"
	"nftsync/internal/queue"
	"nftsync/internal/storage"
)

// Producer enqueues jobs; queue.Manager implements it.
type Producer interface {
	Enqueue(ctx context.Context, queue string, payload any, opts queue.EnqueueOptions) (bool, error)
}

// FillPostProcessPayload is the payload of the fill post-process queue.
type FillPostProcessPayload struct {
	TxHash string `json:"tx_hash"`
}

// Processor decodes, persists and publishes one batch at a time. It is safe
// for concurrent use; every call owns its accumulator.
type Processor struct {
	registry *handlers.Registry
	store    storage.BatchStore
	producer Producer
	decode   handlers.DecodeContext
	logger   *zap.Logger
}

// NewProcessor builds a processor. decode carries the network, chain state
// and error sink shared by every batch; its Context is replaced per call.
func NewProcessor(registry *handlers.Registry, store storage.BatchStore, producer Producer, decode handlers.DecodeContext, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if decode.Logger == nil {
		decode.Logger = logger
	}
	return &Processor{registry: registry, store: store, producer: producer, decode: decode, logger: logger}
}

// Process runs one batch. Dispatch and persistence errors leave nothing
// committed; a publish error after commit is returned too, and replaying the
// batch is harmless because rows and jobs are both keyed.
func (p *Processor) Process(ctx context.Context, batch model.EventsBatch) (*onchain.Data, error) {
	start := time.Now()
	data := onchain.New()

	dctx := p.decode
	dctx.Context = ctx
	if err := p.registry.Dispatch(dctx, batch.Events, data); err != nil {
		metrics.BatchesProcessed.WithLabelValues("dispatch_failed").Inc()
		return nil, fmt.Errorf("dispatch batch %s: %w", batch.ID, err)
	}
	if err := p.store.PersistBatch(ctx, batch, data); err != nil {
		metrics.BatchesProcessed.WithLabelValues("persist_failed").Inc()
		return nil, fmt.Errorf("persist batch %s: %w", batch.ID, err)
	}
	if err := p.publish(ctx, batch, data); err != nil {
		metrics.BatchesProcessed.WithLabelValues("publish_failed").Inc()
		return data, fmt.Errorf("publish batch %s: %w", batch.ID, err)
	}

	metrics.BatchesProcessed.WithLabelValues("ok").Inc()
	metrics.BatchDuration.Observe(time.Since(start).Seconds())
	if !data.Empty() {
		p.logger.Debug("batch processed",
			append(data.LogFields(),
				zap.String("batch_id", batch.ID),
				zap.Int("events", len(batch.Events)),
				zap.Bool("backfill", batch.Backfill),
			)...,
		)
	}
	return data, nil
}

func (p *Processor) publish(ctx context.Context, batch model.EventsBatch, data *onchain.Data) error {
	if !batch.Backfill {
		for _, info := range data.OrderInfos {
			if err := p.enqueue(ctx, QueueOrderUpdatesByID, info, info.Context); err != nil {
				return err
			}
		}
		for _, info := range data.MakerInfos {
			if err := p.enqueue(ctx, QueueOrderUpdatesByMaker, info, info.Context); err != nil {
				return err
			}
		}
	}
	for _, info := range data.MintInfos {
		if err := p.enqueue(ctx, QueueMintInfo, info, "mint:"+info.Contract+":"+info.TokenID); err != nil {
			return err
		}
	}
	for _, order := range data.Orders {
		if err := p.enqueue(ctx, QueueOrderbookOrders, order, order.Kind+":"+order.ID); err != nil {
			return err
		}
	}

	for _, tx := range fillTxs(data) {
		err := p.enqueue(ctx, QueueFillPostProcess, FillPostProcessPayload{TxHash: tx}, QueueFillPostProcess+":"+tx)
		if err != nil {
			return err
		}
	}

	rows := data.Counts().Total()
	if rows == 0 || len(batch.Events) == 0 {
		return nil
	}
	first := batch.Events[0].Params
	note := model.BatchProcessed{
		BatchID:   batch.ID,
		Block:     first.Block,
		BlockHash: first.BlockHash,
		TxHashes:  batchTxs(batch),
		Backfill:  batch.Backfill,
		Rows:      rows,
	}
	for _, name := range Subscribers {
		if err := p.enqueue(ctx, name, note, name+":"+batch.ID); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) enqueue(ctx context.Context, name string, payload any, jobID string) error {
	if _, err := p.producer.Enqueue(ctx, name, payload, queue.EnqueueOptions{JobID: jobID}); err != nil {
		return fmt.Errorf("enqueue %s: %w", name, err)
	}
	return nil
}

func fillTxs(data *onchain.Data) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range data.AllFills() {
		if _, ok := seen[f.TxHash]; ok {
			continue
		}
		seen[f.TxHash] = struct{}{}
		out = append(out, f.TxHash)
	}
	return out
}

func batchTxs(batch model.EventsBatch) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ev := range batch.Events {
		if _, ok := seen[ev.Params.TxHash]; ok {
			continue
		}
		seen[ev.Params.TxHash] = struct{}{}
		out = append(out, ev.Params.TxHash)
	}
	return out
}
