package handlers

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"nftsync/internal/events"
	"nftsync/internal/model"
	"nftsync/internal/onchain"
)

// ERC1155Decoder handles single and batch transfers. A batch of n ids yields
// rows with batch indexes 1..n.
type ERC1155Decoder struct {
	single abi.Event
	batch  abi.Event
}

func NewERC1155Decoder() (*ERC1155Decoder, error) {
	parsed, err := events.ERC1155ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc1155 abi: %w", err)
	}
	return &ERC1155Decoder{
		single: parsed.Events["TransferSingle"],
		batch:  parsed.Events["TransferBatch"],
	}, nil
}

func (d *ERC1155Decoder) Kind() model.EventKind { return model.KindERC1155 }

func (d *ERC1155Decoder) SubKinds() []model.EventSubKind {
	return []model.EventSubKind{model.SubKindERC1155Single, model.SubKindERC1155Batch}
}

type erc1155Topics struct {
	Operator common.Address
	From     common.Address
	To       common.Address
}

type erc1155SingleData struct {
	Id    *big.Int
	Value *big.Int
}

type erc1155BatchData struct {
	Ids    []*big.Int
	Values []*big.Int
}

func (d *ERC1155Decoder) Decode(ctx DecodeContext, evs []model.EnhancedEvent, acc *onchain.Data) error {
	sales, owned := ctx.mintCollector()
	err := eachEvent(ctx, evs, func(_ int, ev model.EnhancedEvent) error {
		var topics erc1155Topics
		switch ev.SubKind {
		case model.SubKindERC1155Single:
			var data erc1155SingleData
			if err := unpackLog(d.single, ev.Log, &topics, &data); err != nil {
				return err
			}
			pushNftTransfer(ctx, sales, acc, model.KindERC1155, ev.Params,
				lower(topics.From), lower(topics.To), data.Id.String(), data.Value)
		case model.SubKindERC1155Batch:
			var data erc1155BatchData
			if err := unpackLog(d.batch, ev.Log, &topics, &data); err != nil {
				return err
			}
			if len(data.Ids) != len(data.Values) {
				return malformed("transfer batch has %d ids and %d values", len(data.Ids), len(data.Values))
			}
			from, to := lower(topics.From), lower(topics.To)
			for i := range data.Ids {
				pushNftTransfer(ctx, sales, acc, model.KindERC1155, ev.Params.WithBatchIndex(uint64(i+1)),
					from, to, data.Ids[i].String(), data.Values[i])
			}
		default:
			return malformed("unexpected sub kind %s", ev.SubKind)
		}
		return nil
	})
	if err != nil || !owned {
		return err
	}
	return sales.flush(ctx, acc)
}
