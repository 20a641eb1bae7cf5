package events

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nftsync/internal/config"
	"nftsync/internal/model"
)

type fakeSource struct {
	txLogs     map[common.Hash][]types.Log
	rangeLogs  []types.Log
	timestamps map[uint64]uint64
	tsCalls    int
}

func (f *fakeSource) TransactionLogs(_ context.Context, txHash common.Hash) ([]types.Log, error) {
	return f.txLogs[txHash], nil
}

func (f *fakeSource) FilterLogs(_ context.Context, _, _ uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	return f.rangeLogs, nil
}

func (f *fakeSource) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	f.tsCalls++
	return f.timestamps[number], nil
}

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	token = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

func mainnet(t *testing.T) config.Network {
	t.Helper()
	n, err := config.NetworkFor(1, nil)
	require.NoError(t, err)
	return n
}

func erc20TransferLog(t *testing.T, block uint64, txIndex uint, logIndex uint, tx common.Hash) types.Log {
	t.Helper()
	parsed, err := ERC20ABI()
	require.NoError(t, err)
	data, err := parsed.Events["Transfer"].Inputs.NonIndexed().Pack(big.NewInt(7))
	require.NoError(t, err)
	return types.Log{
		Address:     token,
		Topics:      []common.Hash{parsed.Events["Transfer"].ID, common.BytesToHash(alice.Bytes()), common.BytesToHash(bob.Bytes())},
		Data:        data,
		BlockNumber: block,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(block)),
		TxHash:      tx,
		TxIndex:     txIndex,
		Index:       logIndex,
	}
}

func erc721TransferLog(t *testing.T, block uint64, txIndex uint, logIndex uint, tx common.Hash) types.Log {
	t.Helper()
	parsed, err := ERC721ABI()
	require.NoError(t, err)
	return types.Log{
		Address: token,
		Topics: []common.Hash{
			parsed.Events["Transfer"].ID,
			common.BytesToHash(alice.Bytes()),
			common.BytesToHash(bob.Bytes()),
			common.BigToHash(big.NewInt(42)),
		},
		BlockNumber: block,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(block)),
		TxHash:      tx,
		TxIndex:     txIndex,
		Index:       logIndex,
	}
}

func TestCatalogueMatchesByTopicCount(t *testing.T) {
	cat, err := NewCatalogue(mainnet(t))
	require.NoError(t, err)

	tx := common.HexToHash("0x01")
	erc20 := buildLogRecord(1, erc20TransferLog(t, 10, 0, 0, tx), 0)
	erc721 := buildLogRecord(1, erc721TransferLog(t, 10, 0, 1, tx), 0)

	entry, ok := cat.Match(erc20)
	require.True(t, ok)
	assert.Equal(t, model.SubKindERC20Transfer, entry.SubKind)

	entry, ok = cat.Match(erc721)
	require.True(t, ok)
	assert.Equal(t, model.SubKindERC721Transfer, entry.SubKind)

	erc20.Topics = erc20.Topics[:2]
	_, ok = cat.Match(erc20)
	assert.False(t, ok, "a two-topic Transfer matches no entry")
}

func TestCatalogueAddressAllowList(t *testing.T) {
	network := mainnet(t)
	cat, err := NewCatalogue(network)
	require.NoError(t, err)

	parsed, err := SeaportABI()
	require.NoError(t, err)
	event := parsed.Events["OrderCancelled"]
	data, err := event.Inputs.NonIndexed().Pack(common.HexToHash("0xfeed"))
	require.NoError(t, err)

	log := types.Log{
		Address: common.HexToAddress(network.Seaport),
		Topics:  []common.Hash{event.ID, common.BytesToHash(alice.Bytes()), common.BytesToHash(bob.Bytes())},
		Data:    data,
	}
	entry, ok := cat.Match(buildLogRecord(1, log, 0))
	require.True(t, ok)
	assert.Equal(t, model.SubKindSeaportCancel, entry.SubKind)

	log.Address = token
	_, ok = cat.Match(buildLogRecord(1, log, 0))
	assert.False(t, ok, "a Seaport topic from another contract must be rejected")
}

func TestCatalogueSkipsUndeployedProtocols(t *testing.T) {
	network := mainnet(t)
	network.LooksRare = ""
	cat, err := NewCatalogue(network)
	require.NoError(t, err)

	_, ok := cat.Entry(model.SubKindLooksRareAsk)
	assert.False(t, ok)
	_, ok = cat.Entry(model.SubKindSeaportFilled)
	assert.True(t, ok)
}

func TestCatalogueFoundationOnlyWhereDeployed(t *testing.T) {
	cat, err := NewCatalogue(mainnet(t))
	require.NoError(t, err)
	entry, ok := cat.Entry(model.SubKindFoundationAccepted)
	require.True(t, ok)
	assert.Contains(t, entry.Addresses, "0xcda72070e455bb31c7690a170224ce43623d0b6f")

	sepolia, err := config.NetworkFor(11155111, nil)
	require.NoError(t, err)
	cat, err = NewCatalogue(sepolia)
	require.NoError(t, err)
	_, ok = cat.Entry(model.SubKindFoundationAccepted)
	assert.False(t, ok)
}

func TestCatalogueRestrict(t *testing.T) {
	cat, err := NewCatalogue(mainnet(t))
	require.NoError(t, err)

	restricted, err := cat.Restrict([]string{string(model.SubKindERC721Transfer)})
	require.NoError(t, err)
	assert.Len(t, restricted.Entries(), 1)
	assert.Len(t, restricted.Topics(), 1)

	_, err = cat.Restrict([]string{"nope"})
	assert.Error(t, err)
}

func TestExtractorFromRangeOrdersAndFilters(t *testing.T) {
	cat, err := NewCatalogue(mainnet(t))
	require.NoError(t, err)

	txA := common.HexToHash("0xa")
	txB := common.HexToHash("0xb")
	removed := erc20TransferLog(t, 11, 0, 9, txA)
	removed.Removed = true
	unrelated := types.Log{Address: token, Topics: []common.Hash{common.HexToHash("0xdead")}, BlockNumber: 11, TxHash: txA}

	source := &fakeSource{
		rangeLogs: []types.Log{
			erc721TransferLog(t, 11, 2, 5, txB),
			erc20TransferLog(t, 10, 0, 1, txA),
			unrelated,
			removed,
			erc20TransferLog(t, 11, 2, 4, txB),
		},
		timestamps: map[uint64]uint64{10: 1000, 11: 1012},
	}

	ex := NewExtractor(source, cat, 1)
	events, err := ex.FromRange(context.Background(), 10, 11)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, uint64(10), events[0].Params.Block)
	assert.Equal(t, uint64(1000), events[0].Params.Timestamp)
	assert.Equal(t, uint64(4), events[1].Params.LogIndex)
	assert.Equal(t, model.SubKindERC721Transfer, events[2].SubKind)
	assert.Equal(t, uint64(1012), events[2].Log.Timestamp)
	assert.Equal(t, 2, source.tsCalls, "timestamps are fetched once per block")

	batches := SplitBatches(events, true)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Events, 1)
	assert.Len(t, batches[1].Events, 2)
	assert.True(t, batches[1].Backfill)
	assert.Equal(t, BatchID(events[1].Params.TxHash, events[1].Params.BlockHash), batches[1].ID)
	assert.NotEqual(t, batches[0].ID, batches[1].ID)
}

func TestExtractorFromTxIsRepeatable(t *testing.T) {
	cat, err := NewCatalogue(mainnet(t))
	require.NoError(t, err)

	tx := common.HexToHash("0xc")
	source := &fakeSource{
		txLogs:     map[common.Hash][]types.Log{tx: {erc20TransferLog(t, 5, 1, 3, tx), erc721TransferLog(t, 5, 1, 2, tx)}},
		timestamps: map[uint64]uint64{5: 500},
	}
	ex := NewExtractor(source, cat, 1)

	first, err := ex.FromTx(context.Background(), tx)
	require.NoError(t, err)
	second, err := ex.FromTx(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, uint64(2), first[0].Params.LogIndex)
}
