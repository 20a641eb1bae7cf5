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

// ERC20Decoder handles fungible token transfers, approvals and WETH wraps.
type ERC20Decoder struct {
	transfer   abi.Event
	approval   abi.Event
	deposit    abi.Event
	withdrawal abi.Event
}

func NewERC20Decoder() (*ERC20Decoder, error) {
	parsed, err := events.ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &ERC20Decoder{
		transfer:   parsed.Events["Transfer"],
		approval:   parsed.Events["Approval"],
		deposit:    parsed.Events["Deposit"],
		withdrawal: parsed.Events["Withdrawal"],
	}, nil
}

func (d *ERC20Decoder) Kind() model.EventKind { return model.KindERC20 }

func (d *ERC20Decoder) SubKinds() []model.EventSubKind {
	return []model.EventSubKind{
		model.SubKindERC20Transfer,
		model.SubKindERC20Approval,
		model.SubKindWETHDeposit,
		model.SubKindWETHWithdrawal,
	}
}

type erc20TransferTopics struct {
	From common.Address
	To   common.Address
}

type erc20ApprovalTopics struct {
	Owner   common.Address
	Spender common.Address
}

type erc20Value struct {
	Value *big.Int
}

type wethDepositTopics struct {
	Dst common.Address
}

type wethWithdrawalTopics struct {
	Src common.Address
}

type wethAmount struct {
	Wad *big.Int
}

func (d *ERC20Decoder) Decode(ctx DecodeContext, evs []model.EnhancedEvent, acc *onchain.Data) error {
	return eachEvent(ctx, evs, func(_ int, ev model.EnhancedEvent) error {
		switch ev.SubKind {
		case model.SubKindERC20Transfer:
			var topics erc20TransferTopics
			var data erc20Value
			if err := unpackLog(d.transfer, ev.Log, &topics, &data); err != nil {
				return err
			}
			d.pushTransfer(ev.Params, lower(topics.From), lower(topics.To), data.Value, acc)
		case model.SubKindERC20Approval:
			var topics erc20ApprovalTopics
			var data erc20Value
			if err := unpackLog(d.approval, ev.Log, &topics, &data); err != nil {
				return err
			}
			owner, spender := lower(topics.Owner), lower(topics.Spender)
			acc.PushFtApproval(model.FtApprovalEvent{
				Owner:           owner,
				Spender:         spender,
				Value:           data.Value,
				BaseEventParams: ev.Params,
			})
			acc.PushMakerInfo(makerInfo(ev.Params, owner, model.MakerData{
				Kind:     makerBuyApproval,
				Contract: ev.Params.Address,
				Operator: spender,
			}))
		case model.SubKindWETHDeposit:
			var topics wethDepositTopics
			var data wethAmount
			if err := unpackLog(d.deposit, ev.Log, &topics, &data); err != nil {
				return err
			}
			d.pushTransfer(ev.Params, model.ZeroAddress, lower(topics.Dst), data.Wad, acc)
		case model.SubKindWETHWithdrawal:
			var topics wethWithdrawalTopics
			var data wethAmount
			if err := unpackLog(d.withdrawal, ev.Log, &topics, &data); err != nil {
				return err
			}
			d.pushTransfer(ev.Params, lower(topics.Src), model.ZeroAddress, data.Wad, acc)
		default:
			return malformed("unexpected sub kind %s", ev.SubKind)
		}
		return nil
	})
}

func (d *ERC20Decoder) pushTransfer(p model.BaseEventParams, from, to string, amount *big.Int, acc *onchain.Data) {
	acc.PushFtTransfer(model.FtTransferEvent{
		From:            from,
		To:              to,
		Amount:          amount,
		BaseEventParams: p,
	})
	for _, maker := range []string{from, to} {
		if maker == model.ZeroAddress {
			continue
		}
		acc.PushMakerInfo(makerInfo(p, maker, model.MakerData{
			Kind:     makerBuyBalance,
			Contract: p.Address,
		}))
	}
}
