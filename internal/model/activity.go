package model

// ActivityType classifies a row of the activity index.
type ActivityType string

const (
	ActivitySale     ActivityType = "sale"
	ActivityMint     ActivityType = "mint"
	ActivityTransfer ActivityType = "transfer"
)

// Activity is one document of the search-facing activity index. Amounts
// are decimal strings so the index never rounds wei values.
type Activity struct {
	Type      ActivityType `json:"type"`
	Contract  string       `json:"contract"`
	TokenID   string       `json:"token_id"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	Amount    string       `json:"amount"`
	Price     string       `json:"price,omitempty"`
	Currency  string       `json:"currency,omitempty"`
	OrderKind string       `json:"order_kind,omitempty"`

	BaseEventParams
}

// BatchProcessed is published once a batch has committed. Subscribers are
// idempotent on redelivery and read the committed rows by transaction.
type BatchProcessed struct {
	BatchID   string   `json:"batch_id"`
	Block     uint64   `json:"block"`
	BlockHash string   `json:"block_hash"`
	TxHashes  []string `json:"tx_hashes"`
	Backfill  bool     `json:"backfill"`
	Rows      int      `json:"rows"`
}
