package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/zap"

	"nftsync/internal/chain"
	"nftsync/internal/kv"
	"nftsync/internal/metrics"
	"nftsync/internal/model"
	"nftsync/internal/queue"
	"nftsync/internal/reconcile"
	"nftsync/internal/storage"
)

// PaymentSource reports the native currency movements of a transaction.
type PaymentSource interface {
	NativePayments(ctx context.Context, txHash string) ([]model.Payment, error)
}

// FillPostProcessor reconciles the committed fills of one transaction
// against its payments and stores the attribution.
type FillPostProcessor struct {
	Store storage.FillStore
	Locks kv.Store
	// Payments is optional. Without it native fills are marked unreliable.
	Payments   PaymentSource
	LockTTL    time.Duration
	RetryDelay time.Duration
	Logger     *zap.Logger
}

func (f *FillPostProcessor) Handle(ctx context.Context, job queue.Job) (queue.Result, error) {
	var p FillPostProcessPayload
	if err := job.Decode(&p); err != nil {
		return queue.Done, err
	}
	if p.TxHash == "" {
		return queue.Done, fmt.Errorf("fill post-process job %s has no tx hash", job.ID)
	}
	logger := f.logger().With(zap.String("tx_hash", p.TxHash))

	ttl := f.LockTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	lock := QueueFillPostProcess + ":" + p.TxHash
	ok, err := f.Locks.AcquireLock(ctx, lock, ttl)
	if err != nil {
		return queue.Done, fmt.Errorf("lock %s: %w", lock, err)
	}
	if !ok {
		delay := f.RetryDelay
		if delay <= 0 {
			delay = time.Second
		}
		logger.Debug("fill post-process locked, retrying later")
		return queue.Again(delay), nil
	}
	defer func() {
		if err := f.Locks.ReleaseLock(context.WithoutCancel(ctx), lock); err != nil {
			logger.Warn("release lock", zap.Error(err))
		}
	}()

	fills, err := f.Store.FillsByTx(ctx, p.TxHash)
	if err != nil {
		return queue.Done, fmt.Errorf("load fills: %w", err)
	}
	if len(fills) == 0 {
		return queue.Done, nil
	}
	transfers, err := f.Store.FtTransfersByTx(ctx, p.TxHash)
	if err != nil {
		return queue.Done, fmt.Errorf("load transfers: %w", err)
	}

	native, nativeKnown, err := f.nativePayments(ctx, p.TxHash)
	if err != nil {
		return queue.Done, err
	}

	// a tx seen in several blocks (pending reorg cleanup) is reconciled per block
	var attributions []model.FillAttribution
	for _, blockHash := range blockHashes(fills) {
		blockFills := fillsInBlock(fills, blockHash)
		payments := paymentsInBlock(transfers, blockHash)
		payments = append(payments, native...)

		res := reconcile.Reconcile(blockFills, payments)
		for _, a := range res.Chunked {
			reliable := a.IsReliable
			if !nativeKnown && isNative(a.Fill.Currency) {
				reliable = false
			}
			metrics.ReconcileGroups.WithLabelValues(strconv.FormatBool(a.HasMultiple), strconv.FormatBool(reliable)).Inc()
			attributions = append(attributions, model.FillAttribution{
				BlockHash:        a.Fill.BlockHash,
				TxHash:           a.Fill.TxHash,
				LogIndex:         a.Fill.LogIndex,
				BatchIndex:       a.Fill.BatchIndex,
				IsBundle:         a.HasMultiple,
				IsReliable:       reliable,
				AttributedAmount: sumPayments(a.RelatedPayments),
			})
		}
	}

	if err := f.Store.UpdateFillAttribution(ctx, attributions); err != nil {
		return queue.Done, fmt.Errorf("store attribution: %w", err)
	}
	logger.Debug("fills reconciled", zap.Int("fills", len(fills)), zap.Int("transfers", len(transfers)), zap.Int("native", len(native)))
	return queue.Done, nil
}

func (f *FillPostProcessor) nativePayments(ctx context.Context, txHash string) ([]model.Payment, bool, error) {
	if f.Payments == nil {
		return nil, false, nil
	}
	payments, err := f.Payments.NativePayments(ctx, txHash)
	if errors.Is(err, chain.ErrTraceUnsupported) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("native payments: %w", err)
	}
	return payments, true, nil
}

func (f *FillPostProcessor) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

func blockHashes(fills []model.FillEvent) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range fills {
		if _, ok := seen[f.BlockHash]; ok {
			continue
		}
		seen[f.BlockHash] = struct{}{}
		out = append(out, f.BlockHash)
	}
	return out
}

func fillsInBlock(fills []model.FillEvent, blockHash string) []model.FillEvent {
	var out []model.FillEvent
	for _, f := range fills {
		if f.BlockHash == blockHash {
			out = append(out, f)
		}
	}
	return out
}

func paymentsInBlock(transfers []model.FtTransferEvent, blockHash string) []model.Payment {
	var out []model.Payment
	for _, t := range transfers {
		if t.BlockHash != blockHash {
			continue
		}
		out = append(out, model.Payment{
			Token:    t.Address,
			From:     t.From,
			To:       t.To,
			Amount:   t.Amount,
			LogIndex: t.LogIndex,
		})
	}
	return out
}

func isNative(currency string) bool {
	return currency == "" || currency == model.ZeroAddress
}

func sumPayments(payments []model.Payment) *big.Int {
	total := new(big.Int)
	for _, p := range payments {
		if p.Amount != nil {
			total.Add(total, p.Amount)
		}
	}
	return total
}
