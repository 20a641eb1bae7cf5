package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryJob struct {
	Job
	lockedUntil time.Time
}

// MemoryBroker keeps jobs in process memory. It backs tests and single
// binary runs without Postgres.
type MemoryBroker struct {
	mu   sync.Mutex
	now  func() time.Time
	jobs map[string]*memoryJob
	keys map[string]string
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		now:  time.Now,
		jobs: make(map[string]*memoryJob),
		keys: make(map[string]string),
	}
}

func dedupeKey(queue, key string) string { return queue + "\x00" + key }

func (b *MemoryBroker) Enqueue(_ context.Context, job Job) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if job.Key != "" {
		if _, ok := b.keys[dedupeKey(job.Queue, job.Key)]; ok {
			return false, nil
		}
		b.keys[dedupeKey(job.Queue, job.Key)] = job.ID
	}
	job.State = StateEnqueued
	b.jobs[job.ID] = &memoryJob{Job: job}
	return true, nil
}

func (b *MemoryBroker) Claim(_ context.Context, queue string, limit int, lease time.Duration) ([]Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()

	var eligible []*memoryJob
	for _, j := range b.jobs {
		if j.Queue != queue {
			continue
		}
		switch j.State {
		case StateEnqueued, StateRetrying:
			if !j.RunAt.After(now) {
				eligible = append(eligible, j)
			}
		case StateInFlight:
			if now.After(j.lockedUntil) {
				eligible = append(eligible, j)
			}
		}
	}
	sort.Slice(eligible, func(i, k int) bool {
		a, c := eligible[i], eligible[k]
		if a.Priority != c.Priority {
			return a.Priority > c.Priority
		}
		if !a.RunAt.Equal(c.RunAt) {
			return a.RunAt.Before(c.RunAt)
		}
		return a.CreatedAt.Before(c.CreatedAt)
	})
	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}

	out := make([]Job, 0, len(eligible))
	for _, j := range eligible {
		j.State = StateInFlight
		j.lockedUntil = now.Add(lease)
		out = append(out, j.Job)
	}
	return out, nil
}

func (b *MemoryBroker) Complete(_ context.Context, job Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(job.ID)
	return nil
}

func (b *MemoryBroker) Retry(_ context.Context, job Job, runAt time.Time, attempt int, lastErr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[job.ID]
	if !ok {
		return nil
	}
	j.State = StateRetrying
	j.RunAt = runAt
	j.Attempt = attempt
	j.LastError = lastErr
	j.lockedUntil = time.Time{}
	return nil
}

func (b *MemoryBroker) DeadLetter(_ context.Context, job Job, lastErr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	j, ok := b.jobs[job.ID]
	if !ok {
		return nil
	}
	j.State = StateDead
	j.Attempt = job.Attempt
	j.LastError = lastErr
	if j.Key != "" {
		delete(b.keys, dedupeKey(j.Queue, j.Key))
	}
	return nil
}

func (b *MemoryBroker) Stats(_ context.Context, queue string) (Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	s := Stats{Queue: queue}
	for _, j := range b.jobs {
		if j.Queue != queue {
			continue
		}
		switch j.State {
		case StateEnqueued, StateRetrying:
			if j.RunAt.After(now) {
				s.Delayed++
			} else {
				s.Ready++
			}
		case StateInFlight:
			s.InFlight++
		case StateDead:
			s.Dead++
		}
	}
	return s, nil
}

func (b *MemoryBroker) DeadLetters(_ context.Context, queue string, limit int) ([]Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Job
	for _, j := range b.jobs {
		if j.Queue == queue && j.State == StateDead {
			out = append(out, j.Job)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *MemoryBroker) remove(id string) {
	j, ok := b.jobs[id]
	if !ok {
		return
	}
	if j.Key != "" && b.keys[dedupeKey(j.Queue, j.Key)] == id {
		delete(b.keys, dedupeKey(j.Queue, j.Key))
	}
	delete(b.jobs, id)
}
