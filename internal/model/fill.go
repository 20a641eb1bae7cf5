package model

import "math/big"

// ZeroAddress is the native currency marker and the default mint source.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// OrderSide is the side of the filled order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// FillEvent is an executed order. Until payments are reconciled the
// royalty and fee attribution of a fill is unresolved.
type FillEvent struct {
	OrderKind     string    `json:"order_kind"`
	OrderID       string    `json:"order_id,omitempty"`
	OrderSide     OrderSide `json:"order_side"`
	Maker         string    `json:"maker"`
	Taker         string    `json:"taker"`
	Currency      string    `json:"currency"`
	CurrencyPrice *big.Int  `json:"currency_price"`
	Price         *big.Int  `json:"price"`
	Amount        *big.Int  `json:"amount"`
	Contract      string    `json:"contract"`
	TokenID       string    `json:"token_id"`
	IsPrimary     bool      `json:"is_primary,omitempty"`

	BaseEventParams
}

// UnitPrice returns the per-unit price in the fill currency.
func (f FillEvent) UnitPrice() *big.Int {
	if f.CurrencyPrice != nil {
		return f.CurrencyPrice
	}
	if f.Price != nil {
		return f.Price
	}
	return new(big.Int)
}

// Value returns the total currency amount the fill settles.
func (f FillEvent) Value() *big.Int {
	amount := f.Amount
	if amount == nil || amount.Sign() <= 0 {
		amount = big.NewInt(1)
	}
	return new(big.Int).Mul(f.UnitPrice(), amount)
}

// Payment is a currency movement inside the same transaction as a fill.
// Native payments found in call traces sit between logs; AfterLog marks a
// payment that happened after the log at LogIndex rather than at it.
type Payment struct {
	Token    string   `json:"token"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Amount   *big.Int `json:"amount"`
	LogIndex uint64   `json:"log_index"`
	AfterLog bool     `json:"after_log,omitempty"`
}

// FillAttribution is the persisted outcome of payment reconciliation for a fill.
type FillAttribution struct {
	BlockHash        string   `json:"block_hash"`
	TxHash           string   `json:"tx_hash"`
	LogIndex         uint64   `json:"log_index"`
	BatchIndex       uint64   `json:"batch_index"`
	IsBundle         bool     `json:"is_bundle"`
	IsReliable       bool     `json:"is_reliable"`
	AttributedAmount *big.Int `json:"attributed_amount"`
}
