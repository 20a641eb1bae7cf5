package model

// DecodeError records a matched log that could not be decoded.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	BlockHash   string `json:"block_hash"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	SubKind     string `json:"sub_kind"`
	Error       string `json:"error"`
}

// NewDecodeError builds a DecodeError for an event.
func NewDecodeError(event EnhancedEvent, err error) DecodeError {
	return DecodeError{
		ChainID:     event.Log.ChainID,
		BlockNumber: event.Params.Block,
		BlockHash:   event.Params.BlockHash,
		TxHash:      event.Params.TxHash,
		LogIndex:    event.Params.LogIndex,
		Address:     event.Params.Address,
		Topic0:      event.Log.Topic0(),
		SubKind:     string(event.SubKind),
		Error:       err.Error(),
	}
}
