package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nftsync/internal/kv"
	"nftsync/internal/model"
	"nftsync/internal/onchain"
	"nftsync/internal/storage/memory"
)

func hashOf(n uint64) string { return fmt.Sprintf("0xh%d", n) }

type fakeChain struct {
	mu     sync.Mutex
	head   uint64
	hashes map[uint64]string
}

func (c *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func (c *fakeChain) Block(_ context.Context, n uint64) (model.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash := hashOf(n)
	if h, ok := c.hashes[n]; ok {
		hash = h
	}
	return model.Block{Number: n, Hash: hash, ParentHash: hashOf(n - 1), Timestamp: 1700000000 + n}, nil
}

type fakeExtractor struct {
	mu        sync.Mutex
	events    map[uint64][]model.EnhancedEvent
	failFirst int
	calls     [][2]uint64
}

func (e *fakeExtractor) FromRange(_ context.Context, from, to uint64) ([]model.EnhancedEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, [2]uint64{from, to})
	if e.failFirst > 0 {
		e.failFirst--
		return nil, errors.New("rpc unavailable")
	}
	var out []model.EnhancedEvent
	for n := from; n <= to; n++ {
		out = append(out, e.events[n]...)
	}
	return out, nil
}

type fakeProcessor struct {
	mu      sync.Mutex
	batches []model.EventsBatch
	failTx  string
}

func (p *fakeProcessor) Process(_ context.Context, batch model.EventsBatch) (*onchain.Data, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTx != "" && batch.Events[0].Params.TxHash == p.failTx {
		return nil, errors.New("persist failed")
	}
	p.batches = append(p.batches, batch)
	return onchain.New(), nil
}

func (p *fakeProcessor) txs() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]bool)
	for _, b := range p.batches {
		out[b.Events[0].Params.TxHash] = true
	}
	return out
}

type fakeChecker struct {
	resync map[uint64][]uint64
}

func (c *fakeChecker) Check(_ context.Context, head model.Block) ([]uint64, error) {
	out := c.resync[head.Number]
	delete(c.resync, head.Number)
	return out, nil
}

func event(block uint64, blockHash, tx string, logIndex uint64) model.EnhancedEvent {
	return model.EnhancedEvent{
		Kind:    "erc721",
		SubKind: "erc721-transfer",
		Params: model.BaseEventParams{
			Block:     block,
			BlockHash: blockHash,
			TxHash:    tx,
			LogIndex:  logIndex,
		},
	}
}

func TestBackfillResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	state := memory.NewStore()
	require.NoError(t, state.SaveState(ctx, "backfill", 2))

	extractor := &fakeExtractor{
		failFirst: 1,
		events: map[uint64][]model.EnhancedEvent{
			1: {event(1, hashOf(1), "0xold", 0)},
			3: {event(3, hashOf(3), "0xa", 0), event(3, hashOf(3), "0xa", 1)},
			5: {event(5, hashOf(5), "0xb", 0)},
		},
	}
	processor := &fakeProcessor{}
	b := NewBackfiller(BackfillConfig{
		FromBlock:    1,
		ToBlock:      6,
		BatchSize:    2,
		Concurrency:  2,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}, &fakeChain{}, extractor, processor, state, nil)

	require.NoError(t, b.Run(ctx))

	assert.Equal(t, [][2]uint64{{3, 4}, {3, 4}, {5, 6}}, extractor.calls, "first range is retried once")
	assert.Equal(t, map[string]bool{"0xa": true, "0xb": true}, processor.txs())
	for _, batch := range processor.batches {
		assert.True(t, batch.Backfill)
	}
	last, ok, err := state.LoadState(ctx, "backfill")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 6, last)
}

func TestBackfillStopsOnFailedBatch(t *testing.T) {
	ctx := context.Background()
	state := memory.NewStore()
	extractor := &fakeExtractor{events: map[uint64][]model.EnhancedEvent{
		1: {event(1, hashOf(1), "0xa", 0)},
		3: {event(3, hashOf(3), "0xbad", 0)},
		5: {event(5, hashOf(5), "0xc", 0)},
	}}
	processor := &fakeProcessor{failTx: "0xbad"}
	b := NewBackfiller(BackfillConfig{FromBlock: 1, ToBlock: 6, BatchSize: 2}, &fakeChain{}, extractor, processor, state, nil)

	err := b.Run(ctx)
	require.Error(t, err)
	assert.NotContains(t, processor.txs(), "0xc")

	last, ok, err := state.LoadState(ctx, "backfill")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 2, last, "failed range is not checkpointed")
}

func TestBackfillDefaultsToHead(t *testing.T) {
	ctx := context.Background()
	state := memory.NewStore()
	require.NoError(t, state.SaveState(ctx, "backfill", 20))

	extractor := &fakeExtractor{}
	b := NewBackfiller(BackfillConfig{FromBlock: 1, BatchSize: 5}, &fakeChain{head: 20}, extractor, &fakeProcessor{}, state, nil)
	require.NoError(t, b.Run(ctx))
	assert.Empty(t, extractor.calls)
}

func newRealtime(chain *fakeChain, extractor *fakeExtractor, processor *fakeProcessor, checker ReorgChecker, store *memory.Store, pending kv.Store, lag uint64) *Realtime {
	return NewRealtime(RealtimeConfig{
		MaxBlockLag:      lag,
		LastBlockLatency: 5,
		Concurrency:      4,
		RetryBackoff:     time.Millisecond,
	}, chain, extractor, processor, store, checker, pending, store, nil)
}

func TestRealtimeFollowsHead(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{head: 110}
	extractor := &fakeExtractor{events: map[uint64][]model.EnhancedEvent{
		105: {event(105, hashOf(105), "0xa", 0)},
		107: {event(107, hashOf(107), "0xb", 0), event(107, hashOf(107), "0xc", 2)},
	}}
	processor := &fakeProcessor{}
	store := memory.NewStore()
	r := newRealtime(chain, extractor, processor, nil, store, kv.NewMemory(), 16)

	require.NoError(t, r.Tick(ctx))
	assert.Equal(t, [][2]uint64{{105, 105}}, extractor.calls, "first tick starts at the target block")

	chain.head = 112
	require.NoError(t, r.Tick(ctx))
	assert.Equal(t, [][2]uint64{{105, 105}, {106, 106}, {107, 107}}, extractor.calls)
	assert.Equal(t, map[string]bool{"0xa": true, "0xb": true, "0xc": true}, processor.txs())
	for _, batch := range processor.batches {
		assert.False(t, batch.Backfill)
	}

	blocks, err := store.BlocksAt(ctx, 106)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, hashOf(106), blocks[0].Hash)

	last, _, err := store.LoadState(ctx, "realtime")
	require.NoError(t, err)
	assert.EqualValues(t, 107, last)
}

func TestRealtimeCapsLag(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.SaveState(ctx, "realtime", 10))
	extractor := &fakeExtractor{}
	r := newRealtime(&fakeChain{head: 105}, extractor, &fakeProcessor{}, nil, store, kv.NewMemory(), 16)

	require.NoError(t, r.Tick(ctx))
	require.Len(t, extractor.calls, 17)
	assert.Equal(t, [2]uint64{84, 84}, extractor.calls[0])
	assert.Equal(t, [2]uint64{100, 100}, extractor.calls[16])
}

func TestRealtimeRetriesChangedBlock(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.SaveState(ctx, "realtime", 99))
	pending := kv.NewMemory()
	extractor := &fakeExtractor{events: map[uint64][]model.EnhancedEvent{
		100: {event(100, "0xstale", "0xa", 0)},
	}}
	processor := &fakeProcessor{}
	r := newRealtime(&fakeChain{head: 105}, extractor, processor, nil, store, pending, 16)

	require.Error(t, r.Tick(ctx))
	assert.Empty(t, processor.txs())
	blocks, err := store.BlocksAt(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, blocks)

	extractor.events[100] = []model.EnhancedEvent{event(100, hashOf(100), "0xa", 0)}
	require.NoError(t, r.Tick(ctx))
	assert.Equal(t, map[string]bool{"0xa": true}, processor.txs())

	left, err := pending.PopPending(ctx, PendingList, 10)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRealtimeResyncsReorgedHeights(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.SaveState(ctx, "realtime", 99))
	checker := &fakeChecker{resync: map[uint64][]uint64{100: {98, 99}}}
	extractor := &fakeExtractor{}
	r := newRealtime(&fakeChain{head: 105}, extractor, &fakeProcessor{}, checker, store, kv.NewMemory(), 16)
	var forgotten []uint64
	r.OnReorg(func(from uint64) { forgotten = append(forgotten, from) })

	require.NoError(t, r.Tick(ctx))
	assert.Equal(t, [][2]uint64{{100, 100}}, extractor.calls)
	assert.Equal(t, []uint64{98}, forgotten)

	require.NoError(t, r.Tick(ctx))
	assert.Equal(t, [][2]uint64{{100, 100}, {98, 98}, {99, 99}}, extractor.calls)
}

func TestFileState(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/state/checkpoint.json"

	state := NewFileState(path, true)
	if _, ok, err := state.LoadState(ctx, "backfill"); err != nil || ok {
		t.Fatalf("expected empty state, got ok=%v err=%v", ok, err)
	}
	if err := state.SaveState(ctx, "backfill", 42); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := state.SaveState(ctx, "realtime", 7); err != nil {
		t.Fatalf("save: %v", err)
	}

	reopened := NewFileState(path, true)
	got, ok, err := reopened.LoadState(ctx, "backfill")
	if err != nil || !ok || got != 42 {
		t.Fatalf("unexpected state: %d %v %v", got, ok, err)
	}

	disabled := NewFileState(path, false)
	if _, ok, _ := disabled.LoadState(ctx, "backfill"); ok {
		t.Fatalf("disabled state must not load")
	}
}
