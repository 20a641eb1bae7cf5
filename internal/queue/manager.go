package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nftsync/internal/kv"
	"nftsync/internal/metrics"
)

const pausedKeyPrefix = "queue-paused:"

// Manager declares queues, produces jobs and runs consumers.
type Manager struct {
	broker       Broker
	flags        kv.Store
	logger       *zap.Logger
	pollInterval time.Duration
	now          func() time.Time

	mu   sync.RWMutex
	defs map[string]Definition
}

// Option customizes a Manager.
type Option func(*Manager)

// WithPollInterval sets how often idle or paused consumers look for work.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// NewManager builds a manager. flags holds the shared pause state.
func NewManager(broker Broker, flags kv.Store, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		broker:       broker,
		flags:        flags,
		logger:       logger,
		pollInterval: time.Second,
		now:          time.Now,
		defs:         make(map[string]Definition),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register declares a queue.
func (m *Manager) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("queue: empty name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.defs[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateQueue, def.Name)
	}
	m.defs[def.Name] = def.withDefaults()
	return nil
}

// SetHandler attaches a consumer to a declared queue.
func (m *Manager) SetHandler(name string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.defs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	def.Handler = handler
	m.defs[name] = def
	return nil
}

// SetConcurrency overrides the consumer concurrency of a declared queue.
func (m *Manager) SetConcurrency(name string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.defs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	if n > 0 {
		def.Concurrency = n
	}
	m.defs[name] = def
	return nil
}

func (m *Manager) definition(name string) (Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	return def, nil
}

// Queues lists the declared queue names.
func (m *Manager) Queues() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.defs))
	for name := range m.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enqueue submits payload as JSON. It reports false when opts.JobID matches
// a job that is still pending or running.
func (m *Manager) Enqueue(ctx context.Context, queue string, payload any, opts EnqueueOptions) (bool, error) {
	def, err := m.definition(queue)
	if err != nil {
		return false, err
	}
	body, err := sonnet.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode %s payload: %w", queue, err)
	}
	now := m.now()
	job := Job{
		ID:         uuid.NewString(),
		Queue:      queue,
		Key:        opts.JobID,
		Payload:    body,
		Priority:   opts.Priority,
		RunAt:      now.Add(opts.Delay),
		MaxRetries: def.MaxRetries,
		State:      StateEnqueued,
		CreatedAt:  now,
	}
	inserted, err := m.broker.Enqueue(ctx, job)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", queue, err)
	}
	if !inserted {
		m.logger.Debug("job deduplicated", zap.String("queue", queue), zap.String("job_id", opts.JobID))
	}
	return inserted, nil
}

// Pause stops consumption of a queue in every process sharing the flag
// store. Producing is unaffected.
func (m *Manager) Pause(ctx context.Context, queue string) error {
	if _, err := m.definition(queue); err != nil {
		return err
	}
	if err := m.flags.Set(ctx, pausedKeyPrefix+queue, "1", 0); err != nil {
		return fmt.Errorf("pause %s: %w", queue, err)
	}
	metrics.QueuePaused.WithLabelValues(queue).Set(1)
	return nil
}

func (m *Manager) Resume(ctx context.Context, queue string) error {
	if _, err := m.definition(queue); err != nil {
		return err
	}
	if err := m.flags.Delete(ctx, pausedKeyPrefix+queue); err != nil {
		return fmt.Errorf("resume %s: %w", queue, err)
	}
	metrics.QueuePaused.WithLabelValues(queue).Set(0)
	return nil
}

func (m *Manager) Paused(ctx context.Context, queue string) (bool, error) {
	_, err := m.flags.Get(ctx, pausedKeyPrefix+queue)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Status is the operator view of a queue.
type Status struct {
	Stats
	Paused bool `json:"paused"`
}

func (m *Manager) Status(ctx context.Context, queue string) (Status, error) {
	if _, err := m.definition(queue); err != nil {
		return Status{}, err
	}
	stats, err := m.broker.Stats(ctx, queue)
	if err != nil {
		return Status{}, err
	}
	paused, err := m.Paused(ctx, queue)
	if err != nil {
		return Status{}, err
	}
	return Status{Stats: stats, Paused: paused}, nil
}

func (m *Manager) DeadLetters(ctx context.Context, queue string, limit int) ([]Job, error) {
	if _, err := m.definition(queue); err != nil {
		return nil, err
	}
	return m.broker.DeadLetters(ctx, queue, limit)
}

// Run consumes the named queues (all declared queues with a handler when
// none are named) until ctx is cancelled. Running jobs are allowed to finish.
func (m *Manager) Run(ctx context.Context, queues ...string) error {
	if len(queues) == 0 {
		for _, name := range m.Queues() {
			if def, _ := m.definition(name); def.Handler != nil {
				queues = append(queues, name)
			}
		}
	}
	defs := make([]Definition, 0, len(queues))
	for _, name := range queues {
		def, err := m.definition(name)
		if err != nil {
			return err
		}
		if def.Handler == nil {
			return fmt.Errorf("%w: %s", ErrNoHandler, name)
		}
		defs = append(defs, def)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, def := range defs {
		def := def
		g.Go(func() error {
			return m.consume(gctx, def)
		})
	}
	return g.Wait()
}
