package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseTxHashes validates 32-byte transaction hashes given on the command line.
func ParseTxHashes(inputs []string) ([]common.Hash, error) {
	hashes := make([]common.Hash, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		raw, err := hexutil.Decode(input)
		if err != nil {
			return nil, fmt.Errorf("invalid tx hash %s: %w", input, err)
		}
		if len(raw) != common.HashLength {
			return nil, fmt.Errorf("invalid tx hash %s: expected %d bytes", input, common.HashLength)
		}
		hashes = append(hashes, common.BytesToHash(raw))
	}
	if len(hashes) == 0 {
		return nil, fmt.Errorf("at least one tx hash is required")
	}
	return hashes, nil
}
