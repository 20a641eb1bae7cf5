package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nftsync/internal/kv"
)

func newTestManager(t *testing.T) (*Manager, *MemoryBroker) {
	t.Helper()
	broker := NewMemoryBroker()
	return NewManager(broker, kv.NewMemory(), zap.NewNop(), WithPollInterval(5*time.Millisecond)), broker
}

// run starts consumers and returns a stop func that waits for them.
func run(t *testing.T, m *Manager, queues ...string) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, queues...) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("consumers did not stop")
		}
	}
}

func TestBackoffNext(t *testing.T) {
	fixed := Backoff{Strategy: BackoffFixed, Delay: time.Second}
	assert.Equal(t, time.Second, fixed.Next(1))
	assert.Equal(t, time.Second, fixed.Next(7))

	exp := Backoff{Strategy: BackoffExponential, Delay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, exp.Next(0))
	assert.Equal(t, 3*time.Second, exp.Next(3))
	assert.Equal(t, 5*time.Second, exp.Next(9))
}

func TestEnqueueUnknownQueue(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Enqueue(context.Background(), "nope", struct{}{}, EnqueueOptions{})
	assert.ErrorIs(t, err, ErrUnknownQueue)

	require.NoError(t, m.Register(Definition{Name: "a"}))
	assert.ErrorIs(t, m.Register(Definition{Name: "a"}), ErrDuplicateQueue)
	assert.ErrorIs(t, m.Run(context.Background(), "a"), ErrNoHandler)
}

func TestJobIDDedupeRunsOnce(t *testing.T) {
	m, _ := newTestManager(t)
	var calls atomic.Int32
	require.NoError(t, m.Register(Definition{Name: "fill-post-process", Handler: func(ctx context.Context, job Job) (Result, error) {
		var payload struct{ TxHash string }
		assert.NoError(t, job.Decode(&payload))
		assert.Equal(t, "0xaa", payload.TxHash)
		calls.Add(1)
		return Done, nil
	}}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		inserted, err := m.Enqueue(ctx, "fill-post-process", map[string]string{"TxHash": "0xaa"}, EnqueueOptions{JobID: "fill-post-process:0xaa"})
		require.NoError(t, err)
		assert.Equal(t, i == 0, inserted)
	}

	stop := run(t, m)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	stop()
	assert.Equal(t, int32(1), calls.Load())

	// completed jobs free their key
	inserted, err := m.Enqueue(ctx, "fill-post-process", map[string]string{"TxHash": "0xaa"}, EnqueueOptions{JobID: "fill-post-process:0xaa"})
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestRetryThenDeadLetter(t *testing.T) {
	m, _ := newTestManager(t)
	var calls atomic.Int32
	var attempts []int
	var mu sync.Mutex
	require.NoError(t, m.Register(Definition{
		Name:       "flaky",
		MaxRetries: 2,
		Backoff:    Backoff{Strategy: BackoffFixed, Delay: time.Millisecond},
		Handler: func(ctx context.Context, job Job) (Result, error) {
			mu.Lock()
			attempts = append(attempts, job.Attempt)
			mu.Unlock()
			calls.Add(1)
			return Done, errors.New("rpc timeout")
		},
	}))
	ctx := context.Background()
	_, err := m.Enqueue(ctx, "flaky", "x", EnqueueOptions{JobID: "k"})
	require.NoError(t, err)

	stop := run(t, m)
	require.Eventually(t, func() bool {
		st, err := m.Status(ctx, "flaky")
		return err == nil && st.Dead == 1
	}, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []int{0, 1, 2}, attempts)

	dead, err := m.DeadLetters(ctx, "flaky", 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 3, dead[0].Attempt)
	assert.Equal(t, "rpc timeout", dead[0].LastError)
}

func TestRetryResultDoesNotCountAttempt(t *testing.T) {
	m, _ := newTestManager(t)
	var calls atomic.Int32
	require.NoError(t, m.Register(Definition{
		Name:       "reorg-cleanup",
		MaxRetries: -1,
		Handler: func(ctx context.Context, job Job) (Result, error) {
			assert.Equal(t, 0, job.Attempt)
			if calls.Add(1) < 4 {
				return Again(0), nil
			}
			return Done, nil
		},
	}))
	ctx := context.Background()
	_, err := m.Enqueue(ctx, "reorg-cleanup", "x", EnqueueOptions{})
	require.NoError(t, err)

	stop := run(t, m)
	require.Eventually(t, func() bool { return calls.Load() == 4 }, 2*time.Second, 5*time.Millisecond)
	stop()

	st, err := m.Status(ctx, "reorg-cleanup")
	require.NoError(t, err)
	assert.Zero(t, st.Pending())
	assert.Zero(t, st.Dead)
}

func TestPanicAndTimeoutAreFailures(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Register(Definition{
		Name:       "panics",
		MaxRetries: -1,
		Handler: func(ctx context.Context, job Job) (Result, error) {
			panic("boom")
		},
	}))
	require.NoError(t, m.Register(Definition{
		Name:       "slow",
		MaxRetries: -1,
		Timeout:    20 * time.Millisecond,
		Handler: func(ctx context.Context, job Job) (Result, error) {
			<-ctx.Done()
			return Done, ctx.Err()
		},
	}))
	ctx := context.Background()
	_, err := m.Enqueue(ctx, "panics", "x", EnqueueOptions{})
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, "slow", "x", EnqueueOptions{})
	require.NoError(t, err)

	stop := run(t, m)
	require.Eventually(t, func() bool {
		a, _ := m.Status(ctx, "panics")
		b, _ := m.Status(ctx, "slow")
		return a.Dead == 1 && b.Dead == 1
	}, 2*time.Second, 5*time.Millisecond)
	stop()

	dead, err := m.DeadLetters(ctx, "panics", 1)
	require.NoError(t, err)
	assert.Contains(t, dead[0].LastError, "panicked")
	dead, err = m.DeadLetters(ctx, "slow", 1)
	require.NoError(t, err)
	assert.Contains(t, dead[0].LastError, "deadline")
}

func TestConcurrencyLimit(t *testing.T) {
	m, _ := newTestManager(t)
	var current, peak, done atomic.Int32
	require.NoError(t, m.Register(Definition{
		Name:        "activities-index",
		Concurrency: 2,
		Handler: func(ctx context.Context, job Job) (Result, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
			done.Add(1)
			return Done, nil
		},
	}))
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, err := m.Enqueue(ctx, "activities-index", i, EnqueueOptions{})
		require.NoError(t, err)
	}

	stop := run(t, m)
	require.Eventually(t, func() bool { return done.Load() == 6 }, 3*time.Second, 5*time.Millisecond)
	stop()
	assert.Equal(t, int32(2), peak.Load())
}

func TestPauseResume(t *testing.T) {
	m, _ := newTestManager(t)
	var calls atomic.Int32
	require.NoError(t, m.Register(Definition{Name: "websocket-events", Handler: func(ctx context.Context, job Job) (Result, error) {
		calls.Add(1)
		return Done, nil
	}}))
	ctx := context.Background()
	require.NoError(t, m.Pause(ctx, "websocket-events"))

	inserted, err := m.Enqueue(ctx, "websocket-events", "x", EnqueueOptions{})
	require.NoError(t, err)
	assert.True(t, inserted, "enqueue works while paused")

	stop := run(t, m)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load())
	st, err := m.Status(ctx, "websocket-events")
	require.NoError(t, err)
	assert.True(t, st.Paused)
	assert.Equal(t, 1, st.Ready)

	require.NoError(t, m.Resume(ctx, "websocket-events"))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	stop()
}

func TestLazyQueueStartsOnFirstJob(t *testing.T) {
	m, _ := newTestManager(t)
	var calls atomic.Int32
	require.NoError(t, m.Register(Definition{Name: "mint-info", Lazy: true, Handler: func(ctx context.Context, job Job) (Result, error) {
		calls.Add(1)
		return Done, nil
	}}))

	stop := run(t, m)
	time.Sleep(20 * time.Millisecond)
	_, err := m.Enqueue(context.Background(), "mint-info", "x", EnqueueOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	stop()
}

func TestMemoryBrokerClaimOrderAndLease(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	b := NewMemoryBroker()
	b.now = func() time.Time { return now }

	enqueue := func(id string, priority int, runAt time.Time) {
		_, err := b.Enqueue(ctx, Job{ID: id, Queue: "q", Priority: priority, RunAt: runAt, CreatedAt: now})
		require.NoError(t, err)
	}
	enqueue("low", 0, now)
	enqueue("high", 5, now)
	enqueue("later", 9, now.Add(time.Minute))

	jobs, err := b.Claim(ctx, "q", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "high", jobs[0].ID)
	assert.Equal(t, "low", jobs[1].ID)

	jobs, err = b.Claim(ctx, "q", 10, time.Second)
	require.NoError(t, err)
	assert.Empty(t, jobs, "leased and delayed jobs are not claimable")

	now = now.Add(2 * time.Minute)
	jobs, err = b.Claim(ctx, "q", 10, time.Second)
	require.NoError(t, err)
	assert.Len(t, jobs, 3, "expired leases are reclaimed")
}
