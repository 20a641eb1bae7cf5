package handlers

import (
	"fmt"
	"math/big"

	"nftsync/internal/model"
	"nftsync/internal/onchain"
)

const orderKindMint = "mint"

type mintSale struct {
	from string
	mint model.MintEvent
}

// mintSales collects paid mints per transaction. A mint in a transaction
// carrying native value is recorded as a primary sale at value / minted units.
type mintSales struct {
	byTx  map[string][]mintSale
	order []string
}

func newMintSales() *mintSales {
	return &mintSales{byTx: make(map[string][]mintSale)}
}

func (m *mintSales) add(from string, mint model.MintEvent) {
	if _, ok := m.byTx[mint.TxHash]; !ok {
		m.order = append(m.order, mint.TxHash)
	}
	m.byTx[mint.TxHash] = append(m.byTx[mint.TxHash], mintSale{from: from, mint: mint})
}

// flush needs the chain state capability; without it paid mints are not priced.
func (m *mintSales) flush(ctx DecodeContext, acc *onchain.Data) error {
	if ctx.Chain == nil || len(m.order) == 0 {
		return nil
	}
	for _, txHash := range m.order {
		value, err := ctx.Chain.TransactionValue(ctx.ctx(), txHash)
		if err != nil {
			return fmt.Errorf("transaction value %s: %w", txHash, err)
		}
		if value == nil || value.Sign() <= 0 {
			continue
		}
		sales := m.byTx[txHash]
		total := new(big.Int)
		for _, s := range sales {
			total.Add(total, s.mint.Amount)
		}
		if total.Sign() == 0 {
			continue
		}
		price := new(big.Int).Quo(value, total)
		for _, s := range sales {
			acc.PushFill(model.FillEvent{
				OrderKind:       orderKindMint,
				OrderSide:       model.SideSell,
				Maker:           s.from,
				Taker:           s.mint.Minter,
				Currency:        model.ZeroAddress,
				CurrencyPrice:   new(big.Int).Set(price),
				Price:           new(big.Int).Set(price),
				Amount:          new(big.Int).Set(s.mint.Amount),
				Contract:        s.mint.Contract,
				TokenID:         s.mint.TokenID,
				IsPrimary:       true,
				BaseEventParams: s.mint.BaseEventParams,
			})
		}
	}
	return nil
}

// recordMint pushes the mint rows for a transfer out of a mint address.
func recordMint(ctx DecodeContext, sales *mintSales, acc *onchain.Data, p model.BaseEventParams, from, to, tokenID string, amount *big.Int) {
	mint := model.MintEvent{
		Contract:        p.Address,
		TokenID:         tokenID,
		Minter:          to,
		Amount:          new(big.Int).Set(amount),
		BaseEventParams: p,
	}
	acc.PushMint(mint)
	acc.PushMintInfo(model.MintInfo{Contract: p.Address, TokenID: tokenID, MintedTimestamp: p.Timestamp})
	if ctx.Network.MintAsSaleAllowed(p.Address) {
		sales.add(from, mint)
	}
}
