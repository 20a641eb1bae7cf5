package events

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"nftsync/internal/model"
)

func buildLogRecord(chainID uint64, log types.Log, timestamp uint64) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, strings.ToLower(topic.Hex()))
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   strings.ToLower(log.BlockHash.Hex()),
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     strings.ToLower(log.Address.Hex()),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
	}
}

func buildEnhancedEvent(entry Entry, record model.LogRecord) model.EnhancedEvent {
	return model.EnhancedEvent{
		Kind:    entry.Kind,
		SubKind: entry.SubKind,
		Log:     record,
		Params: model.BaseEventParams{
			Address:   record.Address,
			Block:     record.BlockNumber,
			BlockHash: record.BlockHash,
			TxHash:    record.TxHash,
			TxIndex:   record.TxIndex,
			LogIndex:  record.LogIndex,
			Timestamp: record.Timestamp,
		},
	}
}
