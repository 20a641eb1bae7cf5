// Package queue runs durable, at-least-once background jobs with retry,
// dead-lettering, per-queue concurrency, priorities and pause flags.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sugawarayuuta/sonnet"
)

var (
	ErrUnknownQueue   = errors.New("queue: unknown queue")
	ErrDuplicateQueue = errors.New("queue: queue already registered")
	ErrNoHandler      = errors.New("queue: queue has no handler")
)

// State is the lifecycle position of a job. Completed jobs are removed.
type State string

const (
	StateEnqueued State = "enqueued"
	StateInFlight State = "inflight"
	StateRetrying State = "retrying"
	StateDead     State = "dead"
)

// Job is one unit of work. Key is the optional idempotency key: while a job
// with the same key is not completed or dead, enqueuing it again is a no-op.
type Job struct {
	ID         string
	Queue      string
	Key        string
	Payload    []byte
	Priority   int
	RunAt      time.Time
	Attempt    int
	MaxRetries int
	State      State
	LastError  string
	CreatedAt  time.Time
}

// Summary is the operator view of a job.
type Summary struct {
	ID        string    `json:"id"`
	Queue     string    `json:"queue"`
	Key       string    `json:"key,omitempty"`
	Attempt   int       `json:"attempt"`
	LastError string    `json:"last_error,omitempty"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

func (j Job) Summary() Summary {
	return Summary{
		ID:        j.ID,
		Queue:     j.Queue,
		Key:       j.Key,
		Attempt:   j.Attempt,
		LastError: j.LastError,
		Payload:   string(j.Payload),
		CreatedAt: j.CreatedAt,
	}
}

// Decode unmarshals the JSON payload into v.
func (j Job) Decode(v any) error {
	if err := sonnet.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s job %s: %w", j.Queue, j.ID, err)
	}
	return nil
}

// Result tells the worker what to do with a job that did not fail. Retry
// re-enqueues it after Delay without counting an attempt.
type Result struct {
	Retry bool
	Delay time.Duration
}

// Done is the result of a finished job.
var Done = Result{}

// Again asks for the job to run again after delay.
func Again(delay time.Duration) Result { return Result{Retry: true, Delay: delay} }

// Handler processes one job. A returned error counts as a failed attempt.
type Handler func(ctx context.Context, job Job) (Result, error)

// BackoffStrategy selects how retry delays grow.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// Backoff computes the delay before a failed job runs again.
type Backoff struct {
	Strategy BackoffStrategy
	Delay    time.Duration
	MaxDelay time.Duration
}

// Next returns the delay after the attempt-th failure (attempt >= 1).
// Exponential backoff multiplies the base delay by the attempt count.
func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Delay
	if b.Strategy == BackoffExponential {
		delay = b.Delay * time.Duration(attempt)
	}
	if b.MaxDelay > 0 && delay > b.MaxDelay {
		delay = b.MaxDelay
	}
	return delay
}

const (
	defaultMaxRetries  = 10
	defaultConcurrency = 30
	defaultTimeout     = 5 * time.Minute
	defaultBackoff     = time.Second
)

// Definition declares a queue. A definition without a Handler only allows
// producing to the queue.
type Definition struct {
	Name        string
	Handler     Handler
	MaxRetries  int
	Backoff     Backoff
	Concurrency int
	Timeout     time.Duration
	// Lazy consumers start claiming only once the queue has work.
	Lazy bool
}

func (d Definition) withDefaults() Definition {
	if d.MaxRetries < 0 {
		d.MaxRetries = 0
	} else if d.MaxRetries == 0 {
		d.MaxRetries = defaultMaxRetries
	}
	if d.Concurrency <= 0 {
		d.Concurrency = defaultConcurrency
	}
	if d.Timeout <= 0 {
		d.Timeout = defaultTimeout
	}
	if d.Backoff.Strategy == "" {
		d.Backoff.Strategy = BackoffExponential
	}
	if d.Backoff.Delay <= 0 {
		d.Backoff.Delay = defaultBackoff
	}
	return d
}

// EnqueueOptions are the producer side knobs of a job.
type EnqueueOptions struct {
	JobID    string
	Delay    time.Duration
	Priority int
}
