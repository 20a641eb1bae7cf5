package events

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"nftsync/internal/model"
)

// batchNamespace seeds deterministic batch ids so that a redelivered
// transaction always maps to the same batch.
var batchNamespace = uuid.MustParse("6f1c2d4e-8a3b-5c7d-9e0f-1a2b3c4d5e6f")

// Source supplies raw logs and block timestamps.
type Source interface {
	TransactionLogs(ctx context.Context, txHash common.Hash) ([]types.Log, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Extractor turns raw logs into protocol-tagged events. It only reads, so
// retrying any call is safe.
type Extractor struct {
	source    Source
	catalogue *Catalogue
	chainID   uint64
}

func NewExtractor(source Source, catalogue *Catalogue, chainID uint64) *Extractor {
	return &Extractor{source: source, catalogue: catalogue, chainID: chainID}
}

// Catalogue returns the catalogue used for matching.
func (e *Extractor) Catalogue() *Catalogue {
	return e.catalogue
}

// FromTx returns the ordered events of one transaction.
func (e *Extractor) FromTx(ctx context.Context, txHash common.Hash) ([]model.EnhancedEvent, error) {
	logs, err := e.source.TransactionLogs(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("transaction logs %s: %w", txHash.Hex(), err)
	}
	return e.Enhance(ctx, logs)
}

// FromRange returns the ordered events of an inclusive block range.
func (e *Extractor) FromRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.EnhancedEvent, error) {
	if toBlock < fromBlock {
		return nil, fmt.Errorf("to block must be >= from block")
	}
	logs, err := e.source.FilterLogs(ctx, fromBlock, toBlock, nil, e.catalogue.Topics())
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", fromBlock, toBlock, err)
	}
	return e.Enhance(ctx, logs)
}

// Enhance matches raw logs against the catalogue. Logs matching nothing and
// logs removed by a reorg are dropped.
func (e *Extractor) Enhance(ctx context.Context, logs []types.Log) ([]model.EnhancedEvent, error) {
	out := make([]model.EnhancedEvent, 0, len(logs))
	timestamps := make(map[uint64]uint64)
	for _, log := range logs {
		if log.Removed {
			continue
		}
		record := buildLogRecord(e.chainID, log, 0)
		entry, ok := e.catalogue.Match(record)
		if !ok {
			continue
		}

		ts, ok := timestamps[log.BlockNumber]
		if !ok {
			var err error
			ts, err = e.source.BlockTimestamp(ctx, log.BlockNumber)
			if err != nil {
				return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			timestamps[log.BlockNumber] = ts
		}
		record.Timestamp = ts

		out = append(out, buildEnhancedEvent(entry, record))
	}

	SortEvents(out)
	return out, nil
}

// SortEvents orders events by (block, txIndex, logIndex, batchIndex).
func SortEvents(events []model.EnhancedEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Params.Less(events[j].Params)
	})
}

// SplitBatches groups ordered events into one batch per transaction.
func SplitBatches(events []model.EnhancedEvent, backfill bool) []model.EventsBatch {
	var batches []model.EventsBatch
	index := make(map[string]int)
	for _, ev := range events {
		key := ev.Params.TxHash + ":" + ev.Params.BlockHash
		i, ok := index[key]
		if !ok {
			i = len(batches)
			index[key] = i
			batches = append(batches, model.EventsBatch{
				ID:       BatchID(ev.Params.TxHash, ev.Params.BlockHash),
				Backfill: backfill,
			})
		}
		batches[i].Events = append(batches[i].Events, ev)
	}
	return batches
}

// BatchID derives the deterministic id of a transaction's batch.
func BatchID(txHash, blockHash string) string {
	return uuid.NewSHA1(batchNamespace, []byte(txHash+":"+blockHash)).String()
}
