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

// ERC721Decoder handles ERC721 transfers and operator approvals. The
// approval-for-all signature is shared with ERC1155 and decoded here.
type ERC721Decoder struct {
	transfer       abi.Event
	approvalForAll abi.Event
}

func NewERC721Decoder() (*ERC721Decoder, error) {
	parsed, err := events.ERC721ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc721 abi: %w", err)
	}
	return &ERC721Decoder{
		transfer:       parsed.Events["Transfer"],
		approvalForAll: parsed.Events["ApprovalForAll"],
	}, nil
}

func (d *ERC721Decoder) Kind() model.EventKind { return model.KindERC721 }

func (d *ERC721Decoder) SubKinds() []model.EventSubKind {
	return []model.EventSubKind{model.SubKindERC721Transfer, model.SubKindApprovalForAll}
}

type erc721TransferTopics struct {
	From    common.Address
	To      common.Address
	TokenId *big.Int
}

type approvalForAllTopics struct {
	Owner    common.Address
	Operator common.Address
}

type approvalForAllData struct {
	Approved bool
}

func (d *ERC721Decoder) Decode(ctx DecodeContext, evs []model.EnhancedEvent, acc *onchain.Data) error {
	sales, owned := ctx.mintCollector()
	err := eachEvent(ctx, evs, func(_ int, ev model.EnhancedEvent) error {
		switch ev.SubKind {
		case model.SubKindERC721Transfer:
			var topics erc721TransferTopics
			if err := unpackLog(d.transfer, ev.Log, &topics, nil); err != nil {
				return err
			}
			from, to := lower(topics.From), lower(topics.To)
			tokenID := topics.TokenId.String()
			pushNftTransfer(ctx, sales, acc, model.KindERC721, ev.Params, from, to, tokenID, big.NewInt(1))
		case model.SubKindApprovalForAll:
			var topics approvalForAllTopics
			var data approvalForAllData
			if err := unpackLog(d.approvalForAll, ev.Log, &topics, &data); err != nil {
				return err
			}
			owner, operator := lower(topics.Owner), lower(topics.Operator)
			acc.PushNftApproval(model.NftApprovalEvent{
				Owner:           owner,
				Operator:        operator,
				Approved:        data.Approved,
				BaseEventParams: ev.Params,
			})
			acc.PushMakerInfo(makerInfo(ev.Params, owner, model.MakerData{
				Kind:     makerSellApproval,
				Contract: ev.Params.Address,
				Operator: operator,
			}))
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

// pushNftTransfer records a transfer, the balance hints of both parties and,
// for transfers out of a mint address, the mint rows.
func pushNftTransfer(ctx DecodeContext, sales *mintSales, acc *onchain.Data, kind model.EventKind, p model.BaseEventParams, from, to, tokenID string, amount *big.Int) {
	acc.PushNftTransfer(model.NftTransferEvent{
		Kind:            kind,
		From:            from,
		To:              to,
		TokenID:         tokenID,
		Amount:          amount,
		BaseEventParams: p,
	})
	for _, maker := range []string{from, to} {
		if maker == model.ZeroAddress {
			continue
		}
		acc.PushMakerInfo(makerInfo(p, maker, model.MakerData{
			Kind:     makerSellBalance,
			Contract: p.Address,
			TokenID:  tokenID,
		}))
	}
	if ctx.Network.IsMintAddress(from) {
		recordMint(ctx, sales, acc, p, from, to, tokenID, amount)
	}
}
