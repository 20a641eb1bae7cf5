package handlers

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"nftsync/internal/events"
	"nftsync/internal/model"
	"nftsync/internal/onchain"
)

const orderKindSeaport = "seaport"

// Seaport item types.
const (
	itemNative uint8 = iota
	itemERC20
	itemERC721
	itemERC1155
	itemERC721WithCriteria
	itemERC1155WithCriteria
)

// SeaportDecoder handles fills, cancels, counter increments and on-chain
// order validations of the Seaport exchange.
type SeaportDecoder struct {
	fulfilled abi.Event
	cancelled abi.Event
	validated abi.Event
	counter   abi.Event
}

func NewSeaportDecoder() (*SeaportDecoder, error) {
	parsed, err := events.SeaportABI()
	if err != nil {
		return nil, fmt.Errorf("parse seaport abi: %w", err)
	}
	return &SeaportDecoder{
		fulfilled: parsed.Events["OrderFulfilled"],
		cancelled: parsed.Events["OrderCancelled"],
		validated: parsed.Events["OrderValidated"],
		counter:   parsed.Events["CounterIncremented"],
	}, nil
}

func (d *SeaportDecoder) Kind() model.EventKind { return model.KindSeaport }

func (d *SeaportDecoder) SubKinds() []model.EventSubKind {
	return []model.EventSubKind{
		model.SubKindSeaportFilled,
		model.SubKindSeaportCancel,
		model.SubKindSeaportCounter,
		model.SubKindSeaportValidate,
	}
}

// RelatedSubKinds makes the transaction's erc20 transfers visible to the decoder.
func (d *SeaportDecoder) RelatedSubKinds() []model.EventSubKind {
	return []model.EventSubKind{model.SubKindERC20Transfer}
}

type seaportOrderTopics struct {
	Offerer common.Address
	Zone    common.Address
}

type seaportSpentItem struct {
	ItemType   uint8
	Token      common.Address
	Identifier *big.Int
	Amount     *big.Int
}

type seaportReceivedItem struct {
	ItemType   uint8
	Token      common.Address
	Identifier *big.Int
	Amount     *big.Int
	Recipient  common.Address
}

type seaportFulfilledData struct {
	OrderHash     [32]byte
	Recipient     common.Address
	Offer         []seaportSpentItem
	Consideration []seaportReceivedItem
}

type seaportOrderHash struct {
	OrderHash [32]byte
}

type seaportCounterTopics struct {
	Offerer common.Address
}

type seaportCounterData struct {
	NewCounter *big.Int
}

type basicSale struct {
	side     model.OrderSide
	contract string
	tokenID  string
	amount   *big.Int
	currency string
	total    *big.Int
}

func (d *SeaportDecoder) Decode(ctx DecodeContext, evs []model.EnhancedEvent, acc *onchain.Data) error {
	payments := newPaymentTracker()
	validated := make(map[string]struct{})

	return eachEvent(ctx, evs, func(i int, ev model.EnhancedEvent) error {
		switch ev.SubKind {
		case model.SubKindERC20Transfer:
			payments.observe(ev.Params.TxHash)
		case model.SubKindSeaportFilled:
			return d.decodeFill(ctx, evs, i, payments, validated, acc)
		case model.SubKindSeaportCancel:
			var topics seaportOrderTopics
			var data seaportOrderHash
			if err := unpackLog(d.cancelled, ev.Log, &topics, &data); err != nil {
				return err
			}
			orderID := hexutil.Encode(data.OrderHash[:])
			acc.PushCancel(model.CancelEvent{
				OrderKind:       orderKindSeaport,
				OrderID:         orderID,
				BaseEventParams: ev.Params,
			})
			acc.PushOrderInfo(orderInfo(fmt.Sprintf("cancelled-%s", orderID), orderID, ev.Params))
		case model.SubKindSeaportCounter:
			var topics seaportCounterTopics
			var data seaportCounterData
			if err := unpackLog(d.counter, ev.Log, &topics, &data); err != nil {
				return err
			}
			acc.PushBulkCancel(model.BulkCancelEvent{
				OrderKind:       orderKindSeaport,
				Maker:           lower(topics.Offerer),
				MinNonce:        data.NewCounter,
				BaseEventParams: ev.Params,
			})
		case model.SubKindSeaportValidate:
			var topics seaportOrderTopics
			var data seaportOrderHash
			if err := unpackLog(d.validated, ev.Log, &topics, &data); err != nil {
				return err
			}
			orderID := hexutil.Encode(data.OrderHash[:])
			validated[orderID] = struct{}{}
			acc.PushOrder(model.OrderRef{
				Kind:            orderKindSeaport,
				ID:              orderID,
				Maker:           lower(topics.Offerer),
				Zone:            lower(topics.Zone),
				BaseEventParams: ev.Params,
			})
		default:
			return malformed("unexpected sub kind %s", ev.SubKind)
		}
		return nil
	})
}

func (d *SeaportDecoder) decodeFill(ctx DecodeContext, evs []model.EnhancedEvent, i int, payments *paymentTracker, validated map[string]struct{}, acc *onchain.Data) error {
	ev := evs[i]
	topics, data, err := d.unpackFill(ev)
	if err != nil {
		return err
	}
	sale, err := deriveBasicSale(data.Offer, data.Consideration)
	if err != nil {
		return err
	}

	orderID := hexutil.Encode(data.OrderHash[:])
	maker := lower(topics.Offerer)
	taker := lower(data.Recipient)
	if taker == model.ZeroAddress {
		// matchOrders leaves the recipient empty; the counter order is logged next.
		if next, ok := d.counterOrderMaker(evs, i); ok {
			taker = next
		}
	}

	fill := model.FillEvent{
		OrderKind:       orderKindSeaport,
		OrderID:         orderID,
		OrderSide:       sale.side,
		Maker:           maker,
		Taker:           taker,
		Currency:        sale.currency,
		Amount:          sale.amount,
		Contract:        sale.contract,
		TokenID:         sale.tokenID,
		BaseEventParams: ev.Params,
	}
	fill.CurrencyPrice = new(big.Int).Quo(sale.total, sale.amount)
	if isNativeLike(ctx, sale.currency) {
		fill.Price = new(big.Int).Set(fill.CurrencyPrice)
	}

	if _, ok := validated[orderID]; ok {
		acc.PushOnChainFill(fill)
	} else {
		acc.PushPartialFill(fill)
	}
	acc.PushOrderInfo(orderInfo(fmt.Sprintf("filled-%s-%s", orderID, ev.Params.TxHash), orderID, ev.Params))
	payments.makerHint(acc, ev.Params, orderKindSeaport, maker, sale.currency)
	return nil
}

func (d *SeaportDecoder) unpackFill(ev model.EnhancedEvent) (seaportOrderTopics, seaportFulfilledData, error) {
	var topics seaportOrderTopics
	var data seaportFulfilledData
	err := unpackLog(d.fulfilled, ev.Log, &topics, &data)
	return topics, data, err
}

func (d *SeaportDecoder) counterOrderMaker(evs []model.EnhancedEvent, i int) (string, bool) {
	ev := evs[i]
	for _, next := range evs[i+1:] {
		if next.Params.TxHash != ev.Params.TxHash {
			continue
		}
		if next.SubKind != model.SubKindSeaportFilled || next.Params.LogIndex != ev.Params.LogIndex+1 {
			continue
		}
		topics, _, err := d.unpackFill(next)
		if err != nil {
			return "", false
		}
		return lower(topics.Offerer), true
	}
	return "", false
}

// deriveBasicSale supports one NFT item against payment items of a single
// currency. The NFT on the offer side is a sell (listing), on the
// consideration side a buy (bid).
func deriveBasicSale(offer []seaportSpentItem, consideration []seaportReceivedItem) (basicSale, error) {
	if len(offer) == 0 || len(consideration) == 0 {
		return basicSale{}, malformed("empty offer or consideration")
	}

	if len(offer) == 1 && isNFTItem(offer[0].ItemType) {
		nft := offer[0]
		payment := make([]seaportSpentItem, 0, len(consideration))
		for _, item := range consideration {
			if isNFTItem(item.ItemType) {
				return basicSale{}, malformed("nft in consideration of a listing")
			}
			payment = append(payment, seaportSpentItem{ItemType: item.ItemType, Token: item.Token, Amount: item.Amount})
		}
		return newBasicSale(model.SideSell, nft.Token, nft.Identifier, nft.Amount, payment)
	}

	var nft *seaportReceivedItem
	for idx := range consideration {
		if isNFTItem(consideration[idx].ItemType) {
			if nft != nil {
				return basicSale{}, malformed("multiple nft items in consideration")
			}
			nft = &consideration[idx]
		}
	}
	if nft == nil {
		return basicSale{}, malformed("no nft item")
	}
	for _, item := range offer {
		if isNFTItem(item.ItemType) {
			return basicSale{}, malformed("nft on both sides")
		}
	}
	return newBasicSale(model.SideBuy, nft.Token, nft.Identifier, nft.Amount, offer)
}

func newBasicSale(side model.OrderSide, token common.Address, identifier, amount *big.Int, payment []seaportSpentItem) (basicSale, error) {
	if amount == nil || amount.Sign() <= 0 {
		return basicSale{}, malformed("nft amount is zero")
	}
	var currency *common.Address
	total := new(big.Int)
	for _, item := range payment {
		if item.ItemType != itemNative && item.ItemType != itemERC20 {
			return basicSale{}, malformed("unsupported payment item type %d", item.ItemType)
		}
		token := item.Token
		if currency == nil {
			currency = &token
		} else if *currency != token {
			return basicSale{}, malformed("mixed payment currencies")
		}
		total.Add(total, item.Amount)
	}
	return basicSale{
		side:     side,
		contract: lower(token),
		tokenID:  identifier.String(),
		amount:   new(big.Int).Set(amount),
		currency: lower(*currency),
		total:    total,
	}, nil
}

func isNFTItem(itemType uint8) bool {
	return itemType >= itemERC721 && itemType <= itemERC1155WithCriteria
}

// isNativeLike reports whether a currency is priced in the native unit.
func isNativeLike(ctx DecodeContext, currency string) bool {
	return currency == model.ZeroAddress || (ctx.Network.WETH != "" && currency == ctx.Network.WETH)
}
