package handlers

import (
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nftsync/internal/model"
	"nftsync/internal/onchain"
)

func reversed(evs []model.EnhancedEvent) []model.EnhancedEvent {
	out := make([]model.EnhancedEvent, len(evs))
	for i, ev := range evs {
		out[len(evs)-1-i] = ev
	}
	return out
}

func approvalHints(acc *onchain.Data) int {
	n := 0
	for _, info := range acc.MakerInfos {
		if info.Data.Kind == makerBuyApproval {
			n++
		}
	}
	return n
}

// A payment logged before a fill triggers an approval recheck for the maker.
// Feeding the same pair backwards loses it.
func TestDecodeOrderChangesDependentOutcome(t *testing.T) {
	network := testNetwork(t)
	decoder, err := NewLooksRareDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	weth := common.HexToAddress(network.WETH)
	evs := []model.EnhancedEvent{
		erc20Transfer(t, weth, 1, bob, alice, 300),
		looksRareTakerBid(t, network, 2, weth, 300),
	}

	inOrder := onchain.New()
	if err := decoder.Decode(DecodeContext{Network: network}, evs, inOrder); err != nil {
		t.Fatalf("decode: %v", err)
	}
	outOfOrder := onchain.New()
	if err := decoder.Decode(DecodeContext{Network: network}, reversed(evs), outOfOrder); err != nil {
		t.Fatalf("decode reversed: %v", err)
	}

	if approvalHints(inOrder) != 1 {
		t.Fatalf("in order: expected approval hint, got %d", approvalHints(inOrder))
	}
	if approvalHints(outOfOrder) != 0 {
		t.Fatalf("out of order: expected no approval hint, got %d", approvalHints(outOfOrder))
	}
}

func TestDecodeOrderIndependentEvents(t *testing.T) {
	network := testNetwork(t)
	decoder, err := NewERC721Decoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	evs := []model.EnhancedEvent{
		erc721Transfer(t, 1, alice, bob, 1),
		erc721Transfer(t, 2, bob, alice, 2),
		erc721Transfer(t, 3, alice, bob, 3),
	}

	a := onchain.New()
	if err := decoder.Decode(DecodeContext{Network: network}, evs, a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := onchain.New()
	if err := decoder.Decode(DecodeContext{Network: network}, reversed(evs), b); err != nil {
		t.Fatalf("decode reversed: %v", err)
	}

	byKey := func(rows []model.NftTransferEvent) {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Less(rows[j].BaseEventParams) })
	}
	byKey(a.NftTransferEvents)
	byKey(b.NftTransferEvents)
	if len(a.NftTransferEvents) != len(b.NftTransferEvents) {
		t.Fatalf("row count differs: %d vs %d", len(a.NftTransferEvents), len(b.NftTransferEvents))
	}
	for i := range a.NftTransferEvents {
		x, y := a.NftTransferEvents[i], b.NftTransferEvents[i]
		if x.LogIndex != y.LogIndex || x.From != y.From || x.To != y.To || x.TokenID != y.TokenID {
			t.Fatalf("row %d differs: %+v vs %+v", i, x, y)
		}
	}
}
