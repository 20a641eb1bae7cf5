// Package kv is the short-lived coordination store: advisory locks, flags and
// small pending-work lists. It is never authoritative; losing its contents
// only delays work.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("kv: key not found")

// Store is implemented by the in-memory and Postgres backends.
type Store interface {
	// AcquireLock takes key for ttl. It reports false when another holder
	// owns an unexpired lock.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	Get(ctx context.Context, key string) (string, error)
	// Set stores value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	PushPending(ctx context.Context, list string, values ...string) error
	// PopPending removes and returns up to limit values, oldest first.
	PopPending(ctx context.Context, list string, limit int) ([]string, error)
}
