package clickhouse

import (
	"context"
	"fmt"
	"time"

	"nftsync/internal/model"
)

// ReplacingMergeTree collapses redelivered documents that share the sort key.
const createActivities = `
CREATE TABLE IF NOT EXISTS activities (
	type        LowCardinality(String),
	contract    String,
	token_id    String,
	from_addr   String,
	to_addr     String,
	amount      String,
	price       String,
	currency    String,
	order_kind  LowCardinality(String),
	address     String,
	block       UInt64,
	block_hash  String,
	tx_hash     String,
	tx_index    UInt32,
	log_index   UInt32,
	batch_index UInt32,
	timestamp   DateTime
) ENGINE = ReplacingMergeTree
ORDER BY (block_hash, tx_hash, log_index, batch_index, type)`

// ActivityStore appends activity documents.
type ActivityStore struct {
	conn *Conn
}

func NewActivityStore(conn *Conn) *ActivityStore {
	return &ActivityStore{conn: conn}
}

func (s *ActivityStore) Migrate(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createActivities); err != nil {
		return fmt.Errorf("create activities: %w", err)
	}
	return nil
}

func (s *ActivityStore) InsertActivities(ctx context.Context, activities []model.Activity) error {
	if len(activities) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO activities`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, a := range activities {
		err := batch.Append(
			string(a.Type), a.Contract, a.TokenID, a.From, a.To, a.Amount, a.Price, a.Currency, a.OrderKind,
			a.Address, a.Block, a.BlockHash, a.TxHash,
			uint32(a.TxIndex), uint32(a.LogIndex), uint32(a.BatchIndex), unixTime(a.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("append activity %s/%d: %w", a.TxHash, a.LogIndex, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// DeleteBlock drops the documents of an orphaned block.
func (s *ActivityStore) DeleteBlock(ctx context.Context, blockHash string) error {
	return s.conn.Exec(ctx, `ALTER TABLE activities DELETE WHERE block_hash = ?`, blockHash)
}

// CountByTx is used by tests and the decode command.
func (s *ActivityStore) CountByTx(ctx context.Context, txHash string) (uint64, error) {
	var n uint64
	err := s.conn.QueryRow(ctx, `SELECT count() FROM activities FINAL WHERE tx_hash = ?`, txHash).Scan(&n)
	return n, err
}

func unixTime(ts uint64) time.Time {
	return time.Unix(int64(ts), 0).UTC()
}
