package model

// Trigger describes why a follow-up recompute was requested.
type Trigger struct {
	Kind        string `json:"kind"`
	TxHash      string `json:"tx_hash,omitempty"`
	TxTimestamp uint64 `json:"tx_timestamp,omitempty"`
	LogIndex    uint64 `json:"log_index,omitempty"`
	BatchIndex  uint64 `json:"batch_index,omitempty"`
	BlockHash   string `json:"block_hash,omitempty"`
}

// OrderInfo asks the order-state subscriber to recompute one order.
// Context doubles as the job id.
type OrderInfo struct {
	Context string  `json:"context"`
	ID      string  `json:"id"`
	Trigger Trigger `json:"trigger"`
}

// MakerData narrows a maker recompute to one balance or approval.
type MakerData struct {
	Kind      string `json:"kind"`
	Contract  string `json:"contract"`
	TokenID   string `json:"token_id,omitempty"`
	Operator  string `json:"operator,omitempty"`
	OrderKind string `json:"order_kind,omitempty"`
}

// MakerInfo asks the order-state subscriber to recompute a maker's orders.
type MakerInfo struct {
	Context string    `json:"context"`
	Maker   string    `json:"maker"`
	Trigger Trigger   `json:"trigger"`
	Data    MakerData `json:"data"`
}

// MintInfo asks the mint subscriber to record first-mint metadata.
type MintInfo struct {
	Contract        string `json:"contract"`
	TokenID         string `json:"token_id"`
	MintedTimestamp uint64 `json:"minted_timestamp"`
}

// OrderRef is an order announced on chain that the orderbook should ingest.
type OrderRef struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Maker string `json:"maker"`
	Zone  string `json:"zone,omitempty"`

	BaseEventParams
}
