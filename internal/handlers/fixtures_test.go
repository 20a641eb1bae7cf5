package handlers

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"nftsync/internal/config"
	"nftsync/internal/model"
)

const (
	testTx    = "0x00000000000000000000000000000000000000000000000000000000000000aa"
	testBlock = "0x00000000000000000000000000000000000000000000000000000000000000bb"
)

var (
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	collection = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	usdc       = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

func testNetwork(t *testing.T) config.Network {
	t.Helper()
	n, err := config.NetworkFor(1, nil)
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	return n
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func numberTopic(n int64) common.Hash {
	return common.BigToHash(big.NewInt(n))
}

// buildEvent packs a log for ev. Indexed values go to topics, the rest to data.
func buildEvent(t *testing.T, kind model.EventKind, subKind model.EventSubKind, ev abi.Event, address common.Address, logIndex uint64, topics []common.Hash, data ...interface{}) model.EnhancedEvent {
	t.Helper()
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		t.Fatalf("pack %s: %v", ev.Name, err)
	}
	rawTopics := []string{strings.ToLower(ev.ID.Hex())}
	for _, topic := range topics {
		rawTopics = append(rawTopics, strings.ToLower(topic.Hex()))
	}
	addr := strings.ToLower(address.Hex())
	return model.EnhancedEvent{
		Kind:    kind,
		SubKind: subKind,
		Log: model.LogRecord{
			ChainID:     1,
			BlockNumber: 100,
			BlockHash:   testBlock,
			TxHash:      testTx,
			LogIndex:    logIndex,
			Address:     addr,
			Topics:      rawTopics,
			Data:        hexutil.Encode(packed),
		},
		Params: model.BaseEventParams{
			Address:   addr,
			Block:     100,
			BlockHash: testBlock,
			TxHash:    testTx,
			LogIndex:  logIndex,
			Timestamp: 1700000000,
		},
	}
}

func erc20Transfer(t *testing.T, token common.Address, logIndex uint64, from, to common.Address, amount int64) model.EnhancedEvent {
	t.Helper()
	d, err := NewERC20Decoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return buildEvent(t, model.KindERC20, model.SubKindERC20Transfer, d.transfer, token, logIndex,
		[]common.Hash{addressTopic(from), addressTopic(to)}, big.NewInt(amount))
}

func erc721Transfer(t *testing.T, logIndex uint64, from, to common.Address, tokenID int64) model.EnhancedEvent {
	t.Helper()
	d, err := NewERC721Decoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return buildEvent(t, model.KindERC721, model.SubKindERC721Transfer, d.transfer, collection, logIndex,
		[]common.Hash{addressTopic(from), addressTopic(to), numberTopic(tokenID)})
}

func looksRareTakerBid(t *testing.T, network config.Network, logIndex uint64, currency common.Address, price int64) model.EnhancedEvent {
	t.Helper()
	d, err := NewLooksRareDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return buildEvent(t, model.KindLooksRare, model.SubKindLooksRareBid, d.takerBid, common.HexToAddress(network.LooksRare), logIndex,
		[]common.Hash{addressTopic(bob), addressTopic(alice), addressTopic(common.Address{})},
		[32]byte{0x01}, big.NewInt(4), currency, collection, big.NewInt(9), big.NewInt(1), big.NewInt(price))
}

type fakeChain struct {
	values map[string]*big.Int
	calls  int
}

func (f *fakeChain) TransactionValue(_ context.Context, txHash string) (*big.Int, error) {
	f.calls++
	if v, ok := f.values[txHash]; ok {
		return v, nil
	}
	return new(big.Int), nil
}

type recordingSink struct {
	records []model.DecodeError
}

func (s *recordingSink) PutDecodeErrors(records []model.DecodeError) error {
	s.records = append(s.records, records...)
	return nil
}
