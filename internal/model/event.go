package model

// EventKind is the protocol family of an event.
type EventKind string

// EventSubKind is the specific event variant; it selects the decoder.
type EventSubKind string

const (
	KindERC20      EventKind = "erc20"
	KindERC721     EventKind = "erc721"
	KindERC1155    EventKind = "erc1155"
	KindSeaport    EventKind = "seaport"
	KindLooksRare  EventKind = "looks-rare"
	KindFoundation EventKind = "foundation"
)

const (
	SubKindERC20Transfer         EventSubKind = "erc20-transfer"
	SubKindERC20Approval         EventSubKind = "erc20-approval"
	SubKindWETHDeposit           EventSubKind = "weth-deposit"
	SubKindWETHWithdrawal        EventSubKind = "weth-withdrawal"
	SubKindERC721Transfer        EventSubKind = "erc721-transfer"
	SubKindApprovalForAll        EventSubKind = "erc721/1155-approval-for-all"
	SubKindERC1155Single         EventSubKind = "erc1155-transfer-single"
	SubKindERC1155Batch          EventSubKind = "erc1155-transfer-batch"
	SubKindSeaportFilled         EventSubKind = "seaport-order-filled"
	SubKindSeaportCancel         EventSubKind = "seaport-order-cancelled"
	SubKindSeaportCounter        EventSubKind = "seaport-counter-incremented"
	SubKindSeaportValidate       EventSubKind = "seaport-order-validated"
	SubKindLooksRareAsk          EventSubKind = "looks-rare-taker-ask"
	SubKindLooksRareBid          EventSubKind = "looks-rare-taker-bid"
	SubKindLooksRareAll          EventSubKind = "looks-rare-cancel-all-orders"
	SubKindLooksRareNonces       EventSubKind = "looks-rare-cancel-multiple-orders"
	SubKindFoundationSet         EventSubKind = "foundation-buy-price-set"
	SubKindFoundationAccepted    EventSubKind = "foundation-buy-price-accepted"
	SubKindFoundationCancelled   EventSubKind = "foundation-buy-price-cancelled"
	SubKindFoundationInvalidated EventSubKind = "foundation-buy-price-invalidated"
	SubKindFoundationOffer       EventSubKind = "foundation-offer-accepted"
)

// BaseEventParams locates an event on chain. (BlockHash, TxHash, LogIndex, BatchIndex)
// is the natural key of every row derived from it.
type BaseEventParams struct {
	Address    string `json:"address"`
	Block      uint64 `json:"block"`
	BlockHash  string `json:"block_hash"`
	TxHash     string `json:"tx_hash"`
	TxIndex    uint64 `json:"tx_index"`
	LogIndex   uint64 `json:"log_index"`
	BatchIndex uint64 `json:"batch_index"`
	Timestamp  uint64 `json:"timestamp"`
}

// Less orders events by (block, txIndex, logIndex, batchIndex).
func (p BaseEventParams) Less(o BaseEventParams) bool {
	if p.Block != o.Block {
		return p.Block < o.Block
	}
	if p.TxIndex != o.TxIndex {
		return p.TxIndex < o.TxIndex
	}
	if p.LogIndex != o.LogIndex {
		return p.LogIndex < o.LogIndex
	}
	return p.BatchIndex < o.BatchIndex
}

// WithBatchIndex returns a copy with the batch index replaced. Decoders use it
// when one log expands into several rows.
func (p BaseEventParams) WithBatchIndex(i uint64) BaseEventParams {
	p.BatchIndex = i
	return p
}

// EnhancedEvent is one matched log plus its provenance.
type EnhancedEvent struct {
	Kind    EventKind       `json:"kind"`
	SubKind EventSubKind    `json:"sub_kind"`
	Log     LogRecord       `json:"log"`
	Params  BaseEventParams `json:"base_event_params"`
}

// EventsBatch is the unit of dispatch and persistence.
type EventsBatch struct {
	ID       string          `json:"id"`
	Events   []EnhancedEvent `json:"events"`
	Backfill bool            `json:"backfill"`
}

// Block is an observed block header.
type Block struct {
	Hash       string `json:"hash"`
	ParentHash string `json:"parent_hash"`
	Number     uint64 `json:"number"`
	Timestamp  uint64 `json:"timestamp"`
}
