package pipeline

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"nftsync/internal/config"
	"nftsync/internal/model"
	"nftsync/internal/queue"
	"nftsync/internal/storage"
)

// ActivitySink stores activity documents; clickhouse.ActivityStore implements it.
type ActivitySink interface {
	InsertActivities(ctx context.Context, activities []model.Activity) error
}

// ActivityIndexer is the activities-index subscriber. It rebuilds the
// documents of a committed batch from the store, so redelivery rewrites the
// same documents.
type ActivityIndexer struct {
	Store   storage.FillStore
	Sink    ActivitySink
	Network config.Network
	Logger  *zap.Logger
}

func (a *ActivityIndexer) Handle(ctx context.Context, job queue.Job) (queue.Result, error) {
	var note model.BatchProcessed
	if err := job.Decode(&note); err != nil {
		return queue.Done, err
	}
	var docs []model.Activity
	for _, tx := range note.TxHashes {
		fills, err := a.Store.FillsByTx(ctx, tx)
		if err != nil {
			return queue.Done, fmt.Errorf("load fills of %s: %w", tx, err)
		}
		transfers, err := a.Store.NftTransfersByTx(ctx, tx)
		if err != nil {
			return queue.Done, fmt.Errorf("load transfers of %s: %w", tx, err)
		}
		docs = append(docs, BuildActivities(a.Network, note.BlockHash, fills, transfers)...)
	}
	if err := a.Sink.InsertActivities(ctx, docs); err != nil {
		return queue.Done, err
	}
	if a.Logger != nil {
		a.Logger.Debug("activities indexed", zap.String("batch_id", note.BatchID), zap.Int("documents", len(docs)))
	}
	return queue.Done, nil
}

// BuildActivities derives the documents of the rows committed under
// blockHash. Sales come from fills; transfers out of a mint address are
// mints.
func BuildActivities(network config.Network, blockHash string, fills []model.FillEvent, transfers []model.NftTransferEvent) []model.Activity {
	var out []model.Activity
	for _, f := range fills {
		if f.BlockHash != blockHash {
			continue
		}
		doc := model.Activity{
			Type:            model.ActivitySale,
			Contract:        f.Contract,
			TokenID:         f.TokenID,
			From:            f.Maker,
			To:              f.Taker,
			Amount:          decimal(f.Amount),
			Price:           decimal(f.UnitPrice()),
			Currency:        f.Currency,
			OrderKind:       f.OrderKind,
			BaseEventParams: f.BaseEventParams,
		}
		if f.OrderSide == model.SideBuy {
			doc.From, doc.To = f.Taker, f.Maker
		}
		out = append(out, doc)
	}
	for _, t := range transfers {
		if t.BlockHash != blockHash {
			continue
		}
		kind := model.ActivityTransfer
		if network.IsMintAddress(t.From) {
			kind = model.ActivityMint
		}
		out = append(out, model.Activity{
			Type:            kind,
			Contract:        t.Address,
			TokenID:         t.TokenID,
			From:            t.From,
			To:              t.To,
			Amount:          decimal(t.Amount),
			BaseEventParams: t.BaseEventParams,
		})
	}
	return out
}

// Broadcaster pushes a message to connected clients; notify.Hub implements it.
type Broadcaster interface {
	Broadcast(topic string, payload any) error
}

// WebsocketPublisher is the websocket-events subscriber.
type WebsocketPublisher struct {
	Hub Broadcaster
}

func (w *WebsocketPublisher) Handle(_ context.Context, job queue.Job) (queue.Result, error) {
	var note model.BatchProcessed
	if err := job.Decode(&note); err != nil {
		return queue.Done, err
	}
	if note.Backfill {
		return queue.Done, nil
	}
	return queue.Done, w.Hub.Broadcast("batch.processed", note)
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
