package model

import "math/big"

// CancelEvent invalidates a single order.
type CancelEvent struct {
	OrderKind string `json:"order_kind"`
	OrderID   string `json:"order_id"`

	BaseEventParams
}

// BulkCancelEvent invalidates every order of a maker below MinNonce.
type BulkCancelEvent struct {
	OrderKind string   `json:"order_kind"`
	Maker     string   `json:"maker"`
	MinNonce  *big.Int `json:"min_nonce"`

	BaseEventParams
}

// NonceCancelEvent invalidates every order of a maker carrying Nonce.
type NonceCancelEvent struct {
	OrderKind string   `json:"order_kind"`
	Maker     string   `json:"maker"`
	Nonce     *big.Int `json:"nonce"`

	BaseEventParams
}

// NftApprovalEvent is an operator approval for all tokens of a contract.
type NftApprovalEvent struct {
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`

	BaseEventParams
}

// FtApprovalEvent is an ERC20 allowance change.
type FtApprovalEvent struct {
	Owner   string   `json:"owner"`
	Spender string   `json:"spender"`
	Value   *big.Int `json:"value"`

	BaseEventParams
}

// NftTransferEvent moves Amount units of TokenID. Address is the contract.
type NftTransferEvent struct {
	Kind    EventKind `json:"kind"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	TokenID string    `json:"token_id"`
	Amount  *big.Int  `json:"amount"`

	BaseEventParams
}

// FtTransferEvent moves fungible tokens. Address is the token.
type FtTransferEvent struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`

	BaseEventParams
}

// MintEvent is a token minted out of a mint address.
type MintEvent struct {
	Contract string   `json:"contract"`
	TokenID  string   `json:"token_id"`
	Minter   string   `json:"minter"`
	Amount   *big.Int `json:"amount"`

	BaseEventParams
}
