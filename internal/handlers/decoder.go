package handlers

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"nftsync/internal/config"
	"nftsync/internal/metrics"
	"nftsync/internal/model"
	"nftsync/internal/onchain"
)

var (
	// ErrMalformedEvent marks a matched log that cannot be decoded. The event
	// is skipped and the batch continues.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrUnknownKind is returned when a protocol kind is requested explicitly
	// but no decoder handles it.
	ErrUnknownKind = errors.New("unknown event kind")
)

// Decoder turns the events of one protocol into accumulator rows.
type Decoder interface {
	Kind() model.EventKind
	SubKinds() []model.EventSubKind
	Decode(ctx DecodeContext, events []model.EnhancedEvent, acc *onchain.Data) error
}

// RelatedDecoder is implemented by decoders that also read events owned by
// other decoders in the same transactions, such as ERC20 payments next to a fill.
type RelatedDecoder interface {
	RelatedSubKinds() []model.EventSubKind
}

// ChainState is the optional chain lookup capability of decoders.
type ChainState interface {
	TransactionValue(ctx context.Context, txHash string) (*big.Int, error)
}

// ErrorSink receives skipped events.
type ErrorSink interface {
	PutDecodeErrors(records []model.DecodeError) error
}

// DecodeContext provides shared dependencies for decoders.
type DecodeContext struct {
	Context context.Context
	Network config.Network
	Chain   ChainState
	Logger  *zap.Logger
	Errors  ErrorSink

	// set by Registry so paid mints of every token standard in a
	// transaction share one price
	sales *mintSales
}

func (c DecodeContext) ctx() context.Context {
	if c.Context == nil {
		return context.Background()
	}
	return c.Context
}

// mintCollector returns the collector shared by the current dispatch. A
// decoder called on its own gets a fresh one and must flush it itself.
func (c DecodeContext) mintCollector() (sales *mintSales, owned bool) {
	if c.sales != nil {
		return c.sales, false
	}
	return newMintSales(), true
}

func (c DecodeContext) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c DecodeContext) skip(ev model.EnhancedEvent, err error) {
	metrics.EventsSkipped.WithLabelValues(string(ev.SubKind)).Inc()
	c.logger().Warn("skip malformed event",
		zap.String("sub_kind", string(ev.SubKind)),
		zap.String("tx_hash", ev.Params.TxHash),
		zap.Uint64("log_index", ev.Params.LogIndex),
		zap.Error(err),
	)
	if c.Errors != nil {
		if sinkErr := c.Errors.PutDecodeErrors([]model.DecodeError{model.NewDecodeError(ev, err)}); sinkErr != nil {
			c.logger().Warn("write decode error failed", zap.Error(sinkErr))
		}
	}
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedEvent, fmt.Sprintf(format, args...))
}

// eachEvent runs fn per event, skipping malformed ones. Any other error aborts.
func eachEvent(ctx DecodeContext, events []model.EnhancedEvent, fn func(i int, ev model.EnhancedEvent) error) error {
	for i, ev := range events {
		if err := fn(i, ev); err != nil {
			if errors.Is(err, ErrMalformedEvent) {
				ctx.skip(ev, err)
				continue
			}
			return fmt.Errorf("decode %s %s:%d: %w", ev.SubKind, ev.Params.TxHash, ev.Params.LogIndex, err)
		}
	}
	return nil
}
