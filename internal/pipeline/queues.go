// Package pipeline turns extracted batches into committed rows and fans the
// outcome out to the job queues.
package pipeline

import (
	"time"

	"nftsync/internal/queue"
	"nftsync/internal/reorg"
)

const (
	QueueOrderUpdatesByID    = "order-updates-by-id"
	QueueOrderUpdatesByMaker = "order-updates-by-maker"
	QueueMintInfo            = "mint-info"
	QueueOrderbookOrders     = "orderbook-orders"
	QueueFillPostProcess     = "fill-post-process"
	QueueActivities          = "activities-index"
	QueueWebsocket           = "websocket-events"
)

// Subscribers receive one batch-processed notification per committed batch.
var Subscribers = []string{QueueActivities, QueueWebsocket}

// QueueOptions tunes the declared queues.
type QueueOptions struct {
	MaxRetries  int
	Backoff     time.Duration
	Concurrency map[string]int
}

// Declare registers every queue the pipeline produces to or consumes from.
// Handlers are bound by the process that consumes them; order and mint
// queues are consumed by services outside this module.
func Declare(m *queue.Manager, opts QueueOptions) error {
	backoff := queue.Backoff{Strategy: queue.BackoffExponential, Delay: opts.Backoff, MaxDelay: time.Minute}
	defs := []queue.Definition{
		{Name: QueueOrderUpdatesByID, Lazy: true},
		{Name: QueueOrderUpdatesByMaker, Lazy: true},
		{Name: QueueMintInfo, Lazy: true},
		{Name: QueueOrderbookOrders, Lazy: true},
		{Name: QueueFillPostProcess, MaxRetries: opts.MaxRetries, Backoff: backoff, Concurrency: 10, Timeout: time.Minute},
		{Name: QueueActivities, MaxRetries: opts.MaxRetries, Backoff: backoff, Concurrency: 5, Timeout: time.Minute},
		// fan-out is best effort; a stale notification is worse than none
		{Name: QueueWebsocket, MaxRetries: 3, Backoff: queue.Backoff{Strategy: queue.BackoffFixed, Delay: time.Second}, Timeout: 10 * time.Second},
		{
			Name:        reorg.Queue,
			MaxRetries:  opts.MaxRetries,
			Backoff:     backoff,
			Concurrency: 1,
			Timeout:     5 * time.Minute,
		},
	}
	for _, def := range defs {
		if n, ok := opts.Concurrency[def.Name]; ok && n > 0 {
			def.Concurrency = n
		}
		if err := m.Register(def); err != nil {
			return err
		}
	}
	return nil
}
