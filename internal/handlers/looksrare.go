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

const orderKindLooksRare = "looks-rare"

// LooksRareDecoder handles taker fills and nonce based cancellations.
type LooksRareDecoder struct {
	takerAsk       abi.Event
	takerBid       abi.Event
	cancelAll      abi.Event
	cancelMultiple abi.Event
}

func NewLooksRareDecoder() (*LooksRareDecoder, error) {
	parsed, err := events.LooksRareABI()
	if err != nil {
		return nil, fmt.Errorf("parse looks-rare abi: %w", err)
	}
	return &LooksRareDecoder{
		takerAsk:       parsed.Events["TakerAsk"],
		takerBid:       parsed.Events["TakerBid"],
		cancelAll:      parsed.Events["CancelAllOrders"],
		cancelMultiple: parsed.Events["CancelMultipleOrders"],
	}, nil
}

func (d *LooksRareDecoder) Kind() model.EventKind { return model.KindLooksRare }

func (d *LooksRareDecoder) SubKinds() []model.EventSubKind {
	return []model.EventSubKind{
		model.SubKindLooksRareAsk,
		model.SubKindLooksRareBid,
		model.SubKindLooksRareAll,
		model.SubKindLooksRareNonces,
	}
}

func (d *LooksRareDecoder) RelatedSubKinds() []model.EventSubKind {
	return []model.EventSubKind{model.SubKindERC20Transfer}
}

type looksRareTakerTopics struct {
	Taker    common.Address
	Maker    common.Address
	Strategy common.Address
}

type looksRareTakerData struct {
	OrderHash  [32]byte
	OrderNonce *big.Int
	Currency   common.Address
	Collection common.Address
	TokenId    *big.Int
	Amount     *big.Int
	Price      *big.Int
}

type looksRareUserTopics struct {
	User common.Address
}

type looksRareCancelAllData struct {
	NewMinNonce *big.Int
}

type looksRareCancelMultipleData struct {
	OrderNonces []*big.Int
}

func (d *LooksRareDecoder) Decode(ctx DecodeContext, evs []model.EnhancedEvent, acc *onchain.Data) error {
	payments := newPaymentTracker()

	return eachEvent(ctx, evs, func(_ int, ev model.EnhancedEvent) error {
		switch ev.SubKind {
		case model.SubKindERC20Transfer:
			payments.observe(ev.Params.TxHash)
		case model.SubKindLooksRareAsk:
			// The taker accepts a bid, so the maker's order is a buy.
			return d.decodeFill(ctx, d.takerAsk, model.SideBuy, ev, payments, acc)
		case model.SubKindLooksRareBid:
			return d.decodeFill(ctx, d.takerBid, model.SideSell, ev, payments, acc)
		case model.SubKindLooksRareAll:
			var topics looksRareUserTopics
			var data looksRareCancelAllData
			if err := unpackLog(d.cancelAll, ev.Log, &topics, &data); err != nil {
				return err
			}
			acc.PushBulkCancel(model.BulkCancelEvent{
				OrderKind:       orderKindLooksRare,
				Maker:           lower(topics.User),
				MinNonce:        data.NewMinNonce,
				BaseEventParams: ev.Params,
			})
		case model.SubKindLooksRareNonces:
			var topics looksRareUserTopics
			var data looksRareCancelMultipleData
			if err := unpackLog(d.cancelMultiple, ev.Log, &topics, &data); err != nil {
				return err
			}
			maker := lower(topics.User)
			for i, nonce := range data.OrderNonces {
				acc.PushNonceCancel(model.NonceCancelEvent{
					OrderKind:       orderKindLooksRare,
					Maker:           maker,
					Nonce:           nonce,
					BaseEventParams: ev.Params.WithBatchIndex(uint64(i + 1)),
				})
			}
		default:
			return malformed("unexpected sub kind %s", ev.SubKind)
		}
		return nil
	})
}

func (d *LooksRareDecoder) decodeFill(ctx DecodeContext, event abi.Event, side model.OrderSide, ev model.EnhancedEvent, payments *paymentTracker, acc *onchain.Data) error {
	var topics looksRareTakerTopics
	var data looksRareTakerData
	if err := unpackLog(event, ev.Log, &topics, &data); err != nil {
		return err
	}
	if data.Amount == nil || data.Amount.Sign() <= 0 {
		return malformed("%s amount is zero", event.Name)
	}

	orderID := hexutil.Encode(data.OrderHash[:])
	maker := lower(topics.Maker)
	currency := lower(data.Currency)
	fill := model.FillEvent{
		OrderKind:       orderKindLooksRare,
		OrderID:         orderID,
		OrderSide:       side,
		Maker:           maker,
		Taker:           lower(topics.Taker),
		Currency:        currency,
		CurrencyPrice:   new(big.Int).Quo(data.Price, data.Amount),
		Amount:          data.Amount,
		Contract:        lower(data.Collection),
		TokenID:         data.TokenId.String(),
		BaseEventParams: ev.Params,
	}
	if isNativeLike(ctx, currency) {
		fill.Price = new(big.Int).Set(fill.CurrencyPrice)
	}
	acc.PushPartialFill(fill)

	// A filled order burns its nonce.
	acc.PushNonceCancel(model.NonceCancelEvent{
		OrderKind:       orderKindLooksRare,
		Maker:           maker,
		Nonce:           data.OrderNonce,
		BaseEventParams: ev.Params,
	})
	acc.PushOrderInfo(orderInfo(fmt.Sprintf("filled-%s-%s", orderID, ev.Params.TxHash), orderID, ev.Params))
	payments.makerHint(acc, ev.Params, orderKindLooksRare, maker, currency)
	return nil
}
