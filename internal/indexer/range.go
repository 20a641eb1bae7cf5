package indexer

import (
	"errors"
	"fmt"
)

// ErrInvalidRange is returned for an empty block range or a zero batch size.
var ErrInvalidRange = errors.New("invalid block range")

// BlockRange is an inclusive span of blocks fetched with a single log query.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len is the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	return r.To - r.From + 1
}

func (r BlockRange) String() string {
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// SplitRange cuts [from, to] into consecutive ranges of at most batchSize
// blocks. Only the last range may be shorter.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("%w: batch size must be greater than zero", ErrInvalidRange)
	}
	if to < from {
		return nil, fmt.Errorf("%w: to block %d is before from block %d", ErrInvalidRange, to, from)
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; start += batchSize {
		// to-start avoids overflow near the top of the uint64 range
		if to-start < batchSize {
			return append(ranges, BlockRange{From: start, To: to}), nil
		}
		ranges = append(ranges, BlockRange{From: start, To: start + batchSize - 1})
	}
}
