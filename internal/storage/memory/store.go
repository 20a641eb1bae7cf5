// Package memory is an in-process storage.Store for tests and runs without
// a database.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"nftsync/internal/model"
	"nftsync/internal/onchain"
	"nftsync/internal/storage"
)

type rowKey struct {
	blockHash  string
	txHash     string
	logIndex   uint64
	batchIndex uint64
}

func keyOf(p model.BaseEventParams) rowKey {
	return rowKey{p.BlockHash, p.TxHash, p.LogIndex, p.BatchIndex}
}

type row struct {
	params model.BaseEventParams
	value  interface{}
}

type fillState struct {
	isBundle   *bool
	isReliable *bool
	attributed *big.Int
}

// Store keeps rows per table keyed like the Postgres schema.
type Store struct {
	mu     sync.RWMutex
	tables map[string]map[rowKey]row
	fills  map[rowKey]fillState
	blocks map[string]model.Block
	state  map[string]uint64
}

var _ storage.Store = (*Store)(nil)

func NewStore() *Store {
	s := &Store{
		tables: make(map[string]map[rowKey]row),
		fills:  make(map[rowKey]fillState),
		blocks: make(map[string]model.Block),
		state:  make(map[string]uint64),
	}
	for _, t := range storage.EventTables {
		s.tables[t] = make(map[rowKey]row)
	}
	return s
}

func (s *Store) insert(table string, p model.BaseEventParams, v interface{}) {
	rows := s.tables[table]
	if _, ok := rows[keyOf(p)]; ok {
		return
	}
	rows[keyOf(p)] = row{params: p, value: v}
}

func (s *Store) PersistBatch(_ context.Context, _ model.EventsBatch, data *onchain.Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range data.AllFills() {
		s.insert(storage.TableFills, f.BaseEventParams, f)
	}
	for _, e := range data.CancelEvents {
		s.insert(storage.TableCancels, e.BaseEventParams, e)
	}
	for _, e := range data.BulkCancelEvents {
		s.insert(storage.TableBulkCancels, e.BaseEventParams, e)
	}
	for _, e := range data.NonceCancelEvents {
		s.insert(storage.TableNonceCancels, e.BaseEventParams, e)
	}
	for _, e := range data.NftApprovalEvents {
		s.insert(storage.TableNftApprovals, e.BaseEventParams, e)
	}
	for _, e := range data.FtApprovalEvents {
		s.insert(storage.TableFtApprovals, e.BaseEventParams, e)
	}
	for _, e := range data.NftTransferEvents {
		s.insert(storage.TableNftTransfers, e.BaseEventParams, e)
	}
	for _, e := range data.FtTransferEvents {
		s.insert(storage.TableFtTransfers, e.BaseEventParams, e)
	}
	for _, e := range data.Mints {
		s.insert(storage.TableMints, e.BaseEventParams, e)
	}
	return nil
}

// Count returns the number of rows in a table.
func (s *Store) Count(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

// CountBlock returns the rows of a table that belong to blockHash.
func (s *Store) CountBlock(table, blockHash string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.tables[table] {
		if k.blockHash == blockHash {
			n++
		}
	}
	return n
}

func sortedRows(rows map[rowKey]row, txHash string) []row {
	var out []row
	for k, r := range rows {
		if k.txHash == txHash {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].params.Less(out[j].params) })
	return out
}

func (s *Store) FillsByTx(_ context.Context, txHash string) ([]model.FillEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.FillEvent
	for _, r := range sortedRows(s.tables[storage.TableFills], txHash) {
		out = append(out, r.value.(model.FillEvent))
	}
	return out, nil
}

func (s *Store) FtTransfersByTx(_ context.Context, txHash string) ([]model.FtTransferEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.FtTransferEvent
	for _, r := range sortedRows(s.tables[storage.TableFtTransfers], txHash) {
		out = append(out, r.value.(model.FtTransferEvent))
	}
	return out, nil
}

func (s *Store) NftTransfersByTx(_ context.Context, txHash string) ([]model.NftTransferEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.NftTransferEvent
	for _, r := range sortedRows(s.tables[storage.TableNftTransfers], txHash) {
		out = append(out, r.value.(model.NftTransferEvent))
	}
	return out, nil
}

func (s *Store) UpdateFillAttribution(_ context.Context, rows []model.FillAttribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range rows {
		k := rowKey{a.BlockHash, a.TxHash, a.LogIndex, a.BatchIndex}
		if _, ok := s.tables[storage.TableFills][k]; !ok {
			continue
		}
		bundle, reliable := a.IsBundle, a.IsReliable
		s.fills[k] = fillState{isBundle: &bundle, isReliable: &reliable, attributed: a.AttributedAmount}
	}
	return nil
}

// Attribution returns the stored reconciliation outcome of a fill.
func (s *Store) Attribution(p model.BaseEventParams) (model.FillAttribution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.fills[keyOf(p)]
	if !ok {
		return model.FillAttribution{}, false
	}
	return model.FillAttribution{
		BlockHash:        p.BlockHash,
		TxHash:           p.TxHash,
		LogIndex:         p.LogIndex,
		BatchIndex:       p.BatchIndex,
		IsBundle:         *st.isBundle,
		IsReliable:       *st.isReliable,
		AttributedAmount: st.attributed,
	}, true
}

func (s *Store) SaveBlock(_ context.Context, block model.Block) error {
	s.mu.Lock()
	s.blocks[block.Hash] = block
	s.mu.Unlock()
	return nil
}

func (s *Store) BlocksAt(_ context.Context, number uint64) ([]model.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Block
	for _, b := range s.blocks {
		if b.Number == number {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}

func (s *Store) DeleteBlock(_ context.Context, hash string) error {
	s.mu.Lock()
	delete(s.blocks, hash)
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteBlockRows(_ context.Context, table string, block uint64, blockHash string, limit int) (int64, error) {
	if !storage.IsEventTable(table) {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for k, r := range s.tables[table] {
		if limit > 0 && deleted >= int64(limit) {
			break
		}
		if k.blockHash == blockHash && r.params.Block == block {
			delete(s.tables[table], k)
			delete(s.fills, k)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) LoadState(_ context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state[name]
	return v, ok, nil
}

func (s *Store) SaveState(_ context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	s.mu.Lock()
	s.state[name] = block
	s.mu.Unlock()
	return nil
}
