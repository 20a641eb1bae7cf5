// Package postgres is the durable backend of the pipeline: event rows,
// observed blocks, driver checkpoints, the job broker and the kv store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nftsync/internal/metrics"
	"nftsync/internal/model"
	"nftsync/internal/onchain"
	"nftsync/internal/storage"
)

// Store provides Postgres persistence for the sync pipeline.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const baseColumns = `block_hash, tx_hash, log_index, batch_index, block, tx_index, timestamp, address`

func baseArgs(p model.BaseEventParams) []any {
	return []any{
		p.BlockHash,
		p.TxHash,
		int64(p.LogIndex),
		int64(p.BatchIndex),
		int64(p.Block),
		int64(p.TxIndex),
		int64(p.Timestamp),
		p.Address,
	}
}

// insertBatch remembers the target table of every queued insert so rows
// affected can be attributed after the batch runs.
type insertBatch struct {
	batch  pgx.Batch
	tables []string
}

func (b *insertBatch) add(table, extraColumns string, p model.BaseEventParams, extra ...any) {
	args := append(baseArgs(p), extra...)
	placeholders := ""
	for i := range args {
		if i > 0 {
			placeholders += ","
		}
		placeholders += fmt.Sprintf("$%d", i+1)
	}
	b.batch.Queue(fmt.Sprintf(
		`INSERT INTO %s (%s, %s) VALUES (%s) ON CONFLICT DO NOTHING`,
		table, baseColumns, extraColumns, placeholders,
	), args...)
	b.tables = append(b.tables, table)
}

// PersistBatch writes every row of data in one transaction. Rows already
// present are left untouched, so a replayed batch commits nothing new.
func (s *Store) PersistBatch(ctx context.Context, batch model.EventsBatch, data *onchain.Data) error {
	if data == nil || data.Empty() {
		return nil
	}
	ib := &insertBatch{}
	for _, f := range data.AllFills() {
		ib.add(storage.TableFills,
			`order_kind, order_id, order_side, maker, taker, currency, currency_price, price, amount, contract, token_id, is_primary`,
			f.BaseEventParams,
			f.OrderKind, nullString(f.OrderID), string(f.OrderSide), f.Maker, f.Taker, f.Currency,
			numeric(f.CurrencyPrice), numeric(f.Price), numeric(f.Amount), f.Contract, f.TokenID, f.IsPrimary,
		)
	}
	for _, e := range data.CancelEvents {
		ib.add(storage.TableCancels, `order_kind, order_id`, e.BaseEventParams, e.OrderKind, e.OrderID)
	}
	for _, e := range data.BulkCancelEvents {
		ib.add(storage.TableBulkCancels, `order_kind, maker, min_nonce`, e.BaseEventParams,
			e.OrderKind, e.Maker, numeric(e.MinNonce))
	}
	for _, e := range data.NonceCancelEvents {
		ib.add(storage.TableNonceCancels, `order_kind, maker, nonce`, e.BaseEventParams,
			e.OrderKind, e.Maker, numeric(e.Nonce))
	}
	for _, e := range data.NftApprovalEvents {
		ib.add(storage.TableNftApprovals, `owner, operator, approved`, e.BaseEventParams,
			e.Owner, e.Operator, e.Approved)
	}
	for _, e := range data.FtApprovalEvents {
		ib.add(storage.TableFtApprovals, `owner, spender, value`, e.BaseEventParams,
			e.Owner, e.Spender, numeric(e.Value))
	}
	for _, e := range data.NftTransferEvents {
		ib.add(storage.TableNftTransfers, `kind, from_address, to_address, token_id, amount`, e.BaseEventParams,
			string(e.Kind), e.From, e.To, e.TokenID, numeric(e.Amount))
	}
	for _, e := range data.FtTransferEvents {
		ib.add(storage.TableFtTransfers, `from_address, to_address, amount`, e.BaseEventParams,
			e.From, e.To, numeric(e.Amount))
	}
	for _, e := range data.Mints {
		ib.add(storage.TableMints, `contract, token_id, minter, amount`, e.BaseEventParams,
			e.Contract, e.TokenID, e.Minter, numeric(e.Amount))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch %s: %w", batch.ID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted := make(map[string]int64, len(storage.EventTables))
	br := tx.SendBatch(ctx, &ib.batch)
	for _, table := range ib.tables {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return fmt.Errorf("persist batch %s into %s: %w", batch.ID, table, err)
		}
		inserted[table] += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("persist batch %s: %w", batch.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch %s: %w", batch.ID, err)
	}
	for table, n := range inserted {
		metrics.RowsPersisted.WithLabelValues(table).Add(float64(n))
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *Store) FillsByTx(ctx context.Context, txHash string) ([]model.FillEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+baseColumns+`,
			order_kind, order_id, order_side, maker, taker, currency,
			currency_price::text, price::text, amount::text, contract, token_id, is_primary
		FROM fill_events
		WHERE tx_hash = $1
		ORDER BY log_index, batch_index
	`, txHash)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.FillEvent, error) {
		var (
			f                    model.FillEvent
			orderID              *string
			side                 string
			currencyPrice, price *string
			amount               *string
		)
		err := row.Scan(scanBase(&f.BaseEventParams,
			&f.OrderKind, &orderID, &side, &f.Maker, &f.Taker, &f.Currency,
			&currencyPrice, &price, &amount, &f.Contract, &f.TokenID, &f.IsPrimary,
		)...)
		if err != nil {
			return f, err
		}
		f.OrderID = stringOrEmpty(orderID)
		f.OrderSide = model.OrderSide(side)
		f.CurrencyPrice = bigFromText(currencyPrice)
		f.Price = bigFromText(price)
		f.Amount = bigFromText(amount)
		return f, nil
	})
}

// scanBase reads the leading baseColumns of a row.
func scanBase(p *model.BaseEventParams, dest ...any) []any {
	return append([]any{&p.BlockHash, &p.TxHash, &p.LogIndex, &p.BatchIndex, &p.Block, &p.TxIndex, &p.Timestamp, &p.Address}, dest...)
}

func (s *Store) FtTransfersByTx(ctx context.Context, txHash string) ([]model.FtTransferEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+baseColumns+`, from_address, to_address, amount::text
		FROM ft_transfer_events
		WHERE tx_hash = $1
		ORDER BY log_index, batch_index
	`, txHash)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.FtTransferEvent, error) {
		var (
			e      model.FtTransferEvent
			amount *string
		)
		if err := row.Scan(scanBase(&e.BaseEventParams, &e.From, &e.To, &amount)...); err != nil {
			return e, err
		}
		e.Amount = bigFromText(amount)
		return e, nil
	})
}

func (s *Store) NftTransfersByTx(ctx context.Context, txHash string) ([]model.NftTransferEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+baseColumns+`, kind, from_address, to_address, token_id, amount::text
		FROM nft_transfer_events
		WHERE tx_hash = $1
		ORDER BY log_index, batch_index
	`, txHash)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.NftTransferEvent, error) {
		var (
			e      model.NftTransferEvent
			kind   string
			amount *string
		)
		if err := row.Scan(scanBase(&e.BaseEventParams, &kind, &e.From, &e.To, &e.TokenID, &amount)...); err != nil {
			return e, err
		}
		e.Kind = model.EventKind(kind)
		e.Amount = bigFromText(amount)
		return e, nil
	})
}

// UpdateFillAttribution stores reconciliation outcomes. It is a full
// overwrite, so recomputing a transaction converges.
func (s *Store) UpdateFillAttribution(ctx context.Context, attributions []model.FillAttribution) error {
	if len(attributions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range attributions {
		batch.Queue(`
			UPDATE fill_events
			SET is_bundle = $5, attribution_reliable = $6, attributed_amount = $7
			WHERE block_hash = $1 AND tx_hash = $2 AND log_index = $3 AND batch_index = $4
		`,
			a.BlockHash,
			a.TxHash,
			int64(a.LogIndex),
			int64(a.BatchIndex),
			a.IsBundle,
			a.IsReliable,
			numeric(a.AttributedAmount),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range attributions {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveBlock(ctx context.Context, block model.Block) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blocks (hash, number, parent_hash, timestamp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hash) DO NOTHING
	`, block.Hash, int64(block.Number), block.ParentHash, int64(block.Timestamp))
	return err
}

func (s *Store) BlocksAt(ctx context.Context, number uint64) ([]model.Block, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT hash, number, parent_hash, timestamp FROM blocks WHERE number = $1 ORDER BY hash
	`, int64(number))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Block, error) {
		var b model.Block
		err := row.Scan(&b.Hash, &b.Number, &b.ParentHash, &b.Timestamp)
		return b, err
	})
}

func (s *Store) DeleteBlock(ctx context.Context, hash string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM blocks WHERE hash = $1`, hash)
	return err
}

// DeleteBlockRows removes at most limit rows of (block, blockHash) from table.
func (s *Store) DeleteBlockRows(ctx context.Context, table string, block uint64, blockHash string, limit int) (int64, error) {
	if !storage.IsEventTable(table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	if limit <= 0 {
		limit = 1000
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		DELETE FROM %[1]s WHERE ctid IN (
			SELECT ctid FROM %[1]s WHERE block = $1 AND block_hash = $2 LIMIT $3
		)
	`, table), int64(block), blockHash, limit)
	if err != nil {
		return 0, fmt.Errorf("delete %s rows of %s: %w", table, blockHash, err)
	}
	return tag.RowsAffected(), nil
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}
