package handlers

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"nftsync/internal/model"
)

// unpackLog decodes the indexed topics into indexed and the data into data.
// Either target may be nil. Failures are malformed-event errors.
func unpackLog(event abi.Event, log model.LogRecord, indexed, data interface{}) error {
	topics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return malformed("%s topics: %v", event.Name, err)
	}
	if indexed != nil {
		if err := abi.ParseTopics(indexed, indexedArguments(event.Inputs), topics); err != nil {
			return malformed("%s parse topics: %v", event.Name, err)
		}
	}
	if data != nil {
		raw, err := hexutil.Decode(log.Data)
		if err != nil {
			return malformed("%s data: %v", event.Name, err)
		}
		args := event.Inputs.NonIndexed()
		values, err := args.Unpack(raw)
		if err != nil {
			return malformed("unpack %s: %v", event.Name, err)
		}
		if err := args.Copy(data, values); err != nil {
			return malformed("copy %s: %v", event.Name, err)
		}
	}
	return nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func lower(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func lowerHash(h common.Hash) string {
	return strings.ToLower(h.Hex())
}
