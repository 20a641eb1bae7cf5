package handlers

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"nftsync/internal/events"
	"nftsync/internal/model"
	"nftsync/internal/onchain"
)

const orderKindFoundation = "foundation"

// The market takes a flat 5% protocol fee, so the sale price is fee * 20.
const foundationFeeBps = 500

// FoundationDecoder handles Foundation buy-now listings and accepted offers.
// The market only lists ERC721 tokens, so every fill has amount 1.
type FoundationDecoder struct {
	priceSet       abi.Event
	priceAccepted  abi.Event
	priceCancelled abi.Event
	invalidated    abi.Event
	offerAccepted  abi.Event
}

func NewFoundationDecoder() (*FoundationDecoder, error) {
	parsed, err := events.FoundationABI()
	if err != nil {
		return nil, fmt.Errorf("parse foundation abi: %w", err)
	}
	return &FoundationDecoder{
		priceSet:       parsed.Events["BuyPriceSet"],
		priceAccepted:  parsed.Events["BuyPriceAccepted"],
		priceCancelled: parsed.Events["BuyPriceCanceled"],
		invalidated:    parsed.Events["BuyPriceInvalidated"],
		offerAccepted:  parsed.Events["OfferAccepted"],
	}, nil
}

func (d *FoundationDecoder) Kind() model.EventKind { return model.KindFoundation }

func (d *FoundationDecoder) SubKinds() []model.EventSubKind {
	return []model.EventSubKind{
		model.SubKindFoundationSet,
		model.SubKindFoundationAccepted,
		model.SubKindFoundationCancelled,
		model.SubKindFoundationInvalidated,
		model.SubKindFoundationOffer,
	}
}

type foundationTokenTopics struct {
	NftContract common.Address
	TokenId     *big.Int
}

type foundationListingTopics struct {
	NftContract common.Address
	TokenId     *big.Int
	Seller      common.Address
}

type foundationOfferTopics struct {
	NftContract common.Address
	TokenId     *big.Int
	Buyer       common.Address
}

type foundationPriceSetData struct {
	Price *big.Int
}

type foundationAcceptedData struct {
	Buyer       common.Address
	ProtocolFee *big.Int
	CreatorFee  *big.Int
	SellerRev   *big.Int
}

type foundationOfferData struct {
	Seller      common.Address
	ProtocolFee *big.Int
	CreatorFee  *big.Int
	SellerRev   *big.Int
}

func (d *FoundationDecoder) Decode(ctx DecodeContext, evs []model.EnhancedEvent, acc *onchain.Data) error {
	return eachEvent(ctx, evs, func(_ int, ev model.EnhancedEvent) error {
		switch ev.SubKind {
		case model.SubKindFoundationSet:
			var topics foundationListingTopics
			var data foundationPriceSetData
			if err := unpackLog(d.priceSet, ev.Log, &topics, &data); err != nil {
				return err
			}
			acc.PushOrder(model.OrderRef{
				Kind:            orderKindFoundation,
				ID:              foundationOrderID(topics.NftContract, topics.TokenId),
				Maker:           lower(topics.Seller),
				BaseEventParams: ev.Params,
			})
		case model.SubKindFoundationAccepted:
			var topics foundationListingTopics
			var data foundationAcceptedData
			if err := unpackLog(d.priceAccepted, ev.Log, &topics, &data); err != nil {
				return err
			}
			orderID := foundationOrderID(topics.NftContract, topics.TokenId)
			acc.PushOnChainFill(foundationFill(orderID, model.SideSell, lower(topics.Seller), lower(data.Buyer),
				topics.NftContract, topics.TokenId, data.ProtocolFee, ev.Params))
			acc.PushOrderInfo(orderInfo(fmt.Sprintf("filled-%s-%s", orderID, ev.Params.TxHash), orderID, ev.Params))
		case model.SubKindFoundationOffer:
			var topics foundationOfferTopics
			var data foundationOfferData
			if err := unpackLog(d.offerAccepted, ev.Log, &topics, &data); err != nil {
				return err
			}
			// offers are not tracked as orders
			acc.PushOnChainFill(foundationFill("", model.SideBuy, lower(topics.Buyer), lower(data.Seller),
				topics.NftContract, topics.TokenId, data.ProtocolFee, ev.Params))
		case model.SubKindFoundationCancelled, model.SubKindFoundationInvalidated:
			event := d.priceCancelled
			if ev.SubKind == model.SubKindFoundationInvalidated {
				event = d.invalidated
			}
			var topics foundationTokenTopics
			if err := unpackLog(event, ev.Log, &topics, nil); err != nil {
				return err
			}
			orderID := foundationOrderID(topics.NftContract, topics.TokenId)
			acc.PushCancel(model.CancelEvent{
				OrderKind:       orderKindFoundation,
				OrderID:         orderID,
				BaseEventParams: ev.Params,
			})
			acc.PushOrderInfo(model.OrderInfo{
				Context: fmt.Sprintf("cancelled-%s-%s", orderID, ev.Params.TxHash),
				ID:      orderID,
				Trigger: trigger("cancel", ev.Params),
			})
		default:
			return malformed("unexpected sub kind %s", ev.SubKind)
		}
		return nil
	})
}

func foundationFill(orderID string, side model.OrderSide, maker, taker string, contract common.Address, tokenID, protocolFee *big.Int, p model.BaseEventParams) model.FillEvent {
	price := new(big.Int).Mul(protocolFee, big.NewInt(10000))
	price.Quo(price, big.NewInt(foundationFeeBps))
	return model.FillEvent{
		OrderKind:       orderKindFoundation,
		OrderID:         orderID,
		OrderSide:       side,
		Maker:           maker,
		Taker:           taker,
		Currency:        model.ZeroAddress,
		CurrencyPrice:   price,
		Price:           new(big.Int).Set(price),
		Amount:          big.NewInt(1),
		Contract:        lower(contract),
		TokenID:         tokenID.String(),
		BaseEventParams: p,
	}
}

// A listing is unique per token, so its id is keccak256(contract, tokenId)
// with both values packed.
func foundationOrderID(contract common.Address, tokenID *big.Int) string {
	return lowerHash(crypto.Keccak256Hash(contract.Bytes(), common.LeftPadBytes(tokenID.Bytes(), 32)))
}
