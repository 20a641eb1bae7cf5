package kv

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   string
	expires time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Memory is a process-local Store.
type Memory struct {
	mu    sync.Mutex
	now   func() time.Time
	data  map[string]entry
	lists map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		now:   time.Now,
		data:  make(map[string]entry),
		lists: make(map[string][]string),
	}
}

func (m *Memory) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.data[lockKey(key)]; ok && !e.expired(now) {
		return false, nil
	}
	m.data[lockKey(key)] = entry{value: "1", expires: expiry(now, ttl)}
	return true, nil
}

func (m *Memory) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, lockKey(key))
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok || e.expired(m.now()) {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	m.data[key] = entry{value: value, expires: expiry(m.now(), ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) PushPending(_ context.Context, list string, values ...string) error {
	m.mu.Lock()
	m.lists[list] = append(m.lists[list], values...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) PopPending(_ context.Context, list string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.lists[list]
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	out := append([]string(nil), items[:limit]...)
	m.lists[list] = items[limit:]
	return out, nil
}

func lockKey(key string) string { return "lock:" + key }

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
