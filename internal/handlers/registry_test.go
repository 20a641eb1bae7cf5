package handlers

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nftsync/internal/model"
	"nftsync/internal/onchain"
)

type stubDecoder struct {
	kind     model.EventKind
	subKinds []model.EventSubKind
	err      error
	seen     []model.EnhancedEvent
}

func (s *stubDecoder) Kind() model.EventKind          { return s.kind }
func (s *stubDecoder) SubKinds() []model.EventSubKind { return s.subKinds }
func (s *stubDecoder) Decode(_ DecodeContext, evs []model.EnhancedEvent, _ *onchain.Data) error {
	s.seen = append(s.seen, evs...)
	return s.err
}

func TestRegistryRejectsDuplicateSubKind(t *testing.T) {
	a := &stubDecoder{kind: "a", subKinds: []model.EventSubKind{"x"}}
	b := &stubDecoder{kind: "b", subKinds: []model.EventSubKind{"x"}}
	_, err := NewRegistry(zap.NewNop(), a, b)
	require.Error(t, err)
}

func TestRegistryDispatchKindsUnknownKind(t *testing.T) {
	reg, err := NewDefaultRegistry(zap.NewNop())
	require.NoError(t, err)

	err = reg.DispatchKinds(DecodeContext{}, []model.EventKind{"blur"}, nil, onchain.New())
	assert.True(t, errors.Is(err, ErrUnknownKind))

	_, err = reg.Lookup(model.KindSeaport)
	assert.NoError(t, err)
}

func TestRegistryIgnoresUnknownSubKind(t *testing.T) {
	stub := &stubDecoder{kind: "a", subKinds: []model.EventSubKind{"x"}}
	reg, err := NewRegistry(zap.NewNop(), stub)
	require.NoError(t, err)

	evs := []model.EnhancedEvent{
		{Kind: "a", SubKind: "x", Params: model.BaseEventParams{LogIndex: 2}},
		{Kind: "zzz", SubKind: "unknown", Params: model.BaseEventParams{LogIndex: 1}},
	}
	require.NoError(t, reg.Dispatch(DecodeContext{}, evs, onchain.New()))
	require.Len(t, stub.seen, 1)
	assert.Equal(t, model.EventSubKind("x"), stub.seen[0].SubKind)
}

func TestRegistryDecoderErrorAbortsBatch(t *testing.T) {
	boom := errors.New("rpc timeout")
	stub := &stubDecoder{kind: "a", subKinds: []model.EventSubKind{"x"}, err: boom}
	reg, err := NewRegistry(zap.NewNop(), stub)
	require.NoError(t, err)

	err = reg.Dispatch(DecodeContext{}, []model.EnhancedEvent{{Kind: "a", SubKind: "x"}}, onchain.New())
	assert.ErrorIs(t, err, boom)
}

func TestRegistrySortsAndSharesRelatedEvents(t *testing.T) {
	network := testNetwork(t)
	reg, err := NewDefaultRegistry(zap.NewNop())
	require.NoError(t, err)

	weth := common.HexToAddress(network.WETH)
	// out of chain order on purpose
	evs := []model.EnhancedEvent{
		looksRareTakerBid(t, network, 2, weth, 300),
		erc20Transfer(t, weth, 1, bob, alice, 300),
	}
	acc := onchain.New()
	require.NoError(t, reg.Dispatch(DecodeContext{Network: network}, evs, acc))

	assert.Len(t, acc.FtTransferEvents, 1, "transfer decoded once by its owner")
	assert.Len(t, acc.FillEventsPartial, 1)
	assert.Equal(t, 1, approvalHints(acc), "looks-rare saw the earlier transfer")
}

func TestRegistryRelatedEventsAloneDoNotInvokeDecoder(t *testing.T) {
	network := testNetwork(t)
	reg, err := NewDefaultRegistry(zap.NewNop())
	require.NoError(t, err)

	acc := onchain.New()
	evs := []model.EnhancedEvent{erc20Transfer(t, usdc, 1, alice, bob, 5)}
	require.NoError(t, reg.DispatchKinds(DecodeContext{Network: network}, []model.EventKind{model.KindSeaport}, evs, acc))
	assert.True(t, acc.Empty())
}

func TestRegistryPricesMintsAcrossStandardsTogether(t *testing.T) {
	network := testNetwork(t)
	reg, err := NewDefaultRegistry(zap.NewNop())
	require.NoError(t, err)
	erc1155, err := NewERC1155Decoder()
	require.NoError(t, err)

	zero := common.Address{}
	evs := []model.EnhancedEvent{
		erc721Transfer(t, 1, zero, alice, 10),
		buildEvent(t, model.KindERC1155, model.SubKindERC1155Single, erc1155.single, collection, 2,
			[]common.Hash{addressTopic(alice), addressTopic(zero), addressTopic(alice)},
			big.NewInt(7), big.NewInt(3)),
	}
	chain := &fakeChain{values: map[string]*big.Int{testTx: big.NewInt(1000)}}
	acc := onchain.New()
	require.NoError(t, reg.Dispatch(DecodeContext{Network: network, Chain: chain}, evs, acc))

	// one erc721 unit plus three erc1155 units share the tx value
	require.Len(t, acc.FillEvents, 2)
	for _, fill := range acc.FillEvents {
		assert.Equal(t, "mint", fill.OrderKind)
		assert.Equal(t, int64(250), fill.Price.Int64())
	}
	assert.Equal(t, "10", acc.FillEvents[0].TokenID)
	assert.Equal(t, int64(3), acc.FillEvents[1].Amount.Int64())
	assert.Equal(t, 1, chain.calls)
}
