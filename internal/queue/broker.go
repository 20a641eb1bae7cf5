package queue

import (
	"context"
	"time"
)

// Stats counts the jobs of a queue by state.
type Stats struct {
	Queue    string `json:"queue"`
	Ready    int    `json:"ready"`
	Delayed  int    `json:"delayed"`
	InFlight int    `json:"in_flight"`
	Dead     int    `json:"dead"`
}

// Pending is the number of jobs waiting to run.
func (s Stats) Pending() int { return s.Ready + s.Delayed }

// Broker stores jobs durably. Claim leases jobs for lease; a job whose
// lease ran out without Complete, Retry or DeadLetter is claimable again.
type Broker interface {
	// Enqueue reports false when a live job with the same key exists.
	Enqueue(ctx context.Context, job Job) (bool, error)
	Claim(ctx context.Context, queue string, limit int, lease time.Duration) ([]Job, error)
	Complete(ctx context.Context, job Job) error
	Retry(ctx context.Context, job Job, runAt time.Time, attempt int, lastErr string) error
	DeadLetter(ctx context.Context, job Job, lastErr string) error
	Stats(ctx context.Context, queue string) (Stats, error)
	DeadLetters(ctx context.Context, queue string, limit int) ([]Job, error)
}
