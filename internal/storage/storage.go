// Package storage defines the persistence contracts of the pipeline. Every
// event row is keyed by (block_hash, tx_hash, log_index, batch_index) and
// written with ignore-on-conflict, so replaying a batch is harmless.
package storage

import (
	"context"

	"nftsync/internal/model"
	"nftsync/internal/onchain"
)

// Event tables, in the order a batch writes them.
const (
	TableFills        = "fill_events"
	TableCancels      = "cancel_events"
	TableBulkCancels  = "bulk_cancel_events"
	TableNonceCancels = "nonce_cancel_events"
	TableNftApprovals = "nft_approval_events"
	TableFtApprovals  = "ft_approval_events"
	TableNftTransfers = "nft_transfer_events"
	TableFtTransfers  = "ft_transfer_events"
	TableMints        = "mint_events"
)

// EventTables lists every table holding rows derived from a block.
var EventTables = []string{
	TableFills,
	TableCancels,
	TableBulkCancels,
	TableNonceCancels,
	TableNftApprovals,
	TableFtApprovals,
	TableNftTransfers,
	TableFtTransfers,
	TableMints,
}

// IsEventTable reports whether name is one of EventTables.
func IsEventTable(name string) bool {
	for _, t := range EventTables {
		if t == name {
			return true
		}
	}
	return false
}

// BatchStore writes the rows of one batch atomically.
type BatchStore interface {
	PersistBatch(ctx context.Context, batch model.EventsBatch, data *onchain.Data) error
}

// FillStore serves the payment reconciliation of committed fills.
type FillStore interface {
	FillsByTx(ctx context.Context, txHash string) ([]model.FillEvent, error)
	FtTransfersByTx(ctx context.Context, txHash string) ([]model.FtTransferEvent, error)
	NftTransfersByTx(ctx context.Context, txHash string) ([]model.NftTransferEvent, error)
	UpdateFillAttribution(ctx context.Context, rows []model.FillAttribution) error
}

// BlockStore records observed blocks. Several hashes may share a number
// while a reorg is unresolved.
type BlockStore interface {
	SaveBlock(ctx context.Context, block model.Block) error
	BlocksAt(ctx context.Context, number uint64) ([]model.Block, error)
	DeleteBlock(ctx context.Context, hash string) error
}

// ReorgStore deletes rows of orphaned blocks in bounded slices.
type ReorgStore interface {
	DeleteBlockRows(ctx context.Context, table string, block uint64, blockHash string, limit int) (int64, error)
	DeleteBlock(ctx context.Context, hash string) error
}

// StateStore keeps driver progress by name.
type StateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, block uint64) error
}

// Store is everything the pipeline needs from a relational backend.
type Store interface {
	BatchStore
	FillStore
	BlockStore
	ReorgStore
	StateStore
}
