package handlers

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nftsync/internal/model"
	"nftsync/internal/onchain"
)

func TestLooksRareTakerBidFill(t *testing.T) {
	network := testNetwork(t)
	decoder, err := NewLooksRareDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	ev := looksRareTakerBid(t, network, 4, common.HexToAddress(network.WETH), 300)

	acc := onchain.New()
	if err := decoder.Decode(DecodeContext{Network: network}, []model.EnhancedEvent{ev}, acc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(acc.FillEventsPartial) != 1 {
		t.Fatalf("expected one fill, got %d", len(acc.FillEventsPartial))
	}
	fill := acc.FillEventsPartial[0]
	if fill.OrderSide != model.SideSell || fill.Maker != lower(alice) || fill.Taker != lower(bob) {
		t.Fatalf("fill parties mismatch: %+v", fill)
	}
	if fill.Price.Int64() != 300 || fill.TokenID != "9" || fill.Contract != lower(collection) {
		t.Fatalf("fill mismatch: %+v", fill)
	}
	if len(acc.NonceCancelEvents) != 1 || acc.NonceCancelEvents[0].Nonce.Int64() != 4 {
		t.Fatalf("fill should burn the order nonce: %+v", acc.NonceCancelEvents)
	}
}

func TestLooksRareCancelMultipleOrders(t *testing.T) {
	network := testNetwork(t)
	decoder, err := NewLooksRareDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	exchange := common.HexToAddress(network.LooksRare)
	multiple := buildEvent(t, model.KindLooksRare, model.SubKindLooksRareNonces, decoder.cancelMultiple, exchange, 1,
		[]common.Hash{addressTopic(alice)}, []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(8)})
	all := buildEvent(t, model.KindLooksRare, model.SubKindLooksRareAll, decoder.cancelAll, exchange, 2,
		[]common.Hash{addressTopic(alice)}, big.NewInt(10))

	acc := onchain.New()
	if err := decoder.Decode(DecodeContext{Network: network}, []model.EnhancedEvent{multiple, all}, acc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(acc.NonceCancelEvents) != 3 {
		t.Fatalf("expected 3 nonce cancels, got %d", len(acc.NonceCancelEvents))
	}
	for i, cancel := range acc.NonceCancelEvents {
		if cancel.BatchIndex != uint64(i+1) || cancel.Maker != lower(alice) {
			t.Fatalf("nonce cancel %d mismatch: %+v", i, cancel)
		}
	}
	if acc.NonceCancelEvents[2].Nonce.Int64() != 8 {
		t.Fatalf("nonce mismatch: %s", acc.NonceCancelEvents[2].Nonce)
	}
	if len(acc.BulkCancelEvents) != 1 || acc.BulkCancelEvents[0].MinNonce.Int64() != 10 {
		t.Fatalf("bulk cancel mismatch: %+v", acc.BulkCancelEvents)
	}
}
