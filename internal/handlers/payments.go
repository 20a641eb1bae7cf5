package handlers

import (
	"nftsync/internal/model"
	"nftsync/internal/onchain"
)

// paymentTracker remembers which transactions moved erc20 funds so far.
// It depends on events arriving in chain order.
type paymentTracker struct {
	seen map[string]struct{}
}

func newPaymentTracker() *paymentTracker {
	return &paymentTracker{seen: make(map[string]struct{})}
}

func (t *paymentTracker) observe(txHash string) {
	t.seen[txHash] = struct{}{}
}

func (t *paymentTracker) paid(txHash string) bool {
	_, ok := t.seen[txHash]
	return ok
}

// makerHint asks for the maker's currency approval to be rechecked when the
// fill was settled by an erc20 transfer logged before it.
func (t *paymentTracker) makerHint(acc *onchain.Data, p model.BaseEventParams, orderKind, maker, currency string) {
	if currency == model.ZeroAddress || !t.paid(p.TxHash) {
		return
	}
	acc.PushMakerInfo(makerInfo(p, maker, model.MakerData{
		Kind:      makerBuyApproval,
		Contract:  currency,
		Operator:  p.Address,
		OrderKind: orderKind,
	}))
}
