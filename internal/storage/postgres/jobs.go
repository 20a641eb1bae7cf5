package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"nftsync/internal/queue"
)

// Broker is a queue.Broker on the jobs table. Claims use SKIP LOCKED so
// several worker processes can share a queue.
type Broker struct {
	store *Store
}

var _ queue.Broker = (*Broker)(nil)

func (s *Store) Broker() *Broker { return &Broker{store: s} }

const jobColumns = `id, queue, job_key, payload, priority, run_at, attempt, max_retries, state, last_error, created_at`

func scanJob(row pgx.CollectableRow) (queue.Job, error) {
	var (
		j       queue.Job
		key     *string
		state   string
		lastErr *string
	)
	err := row.Scan(&j.ID, &j.Queue, &key, &j.Payload, &j.Priority, &j.RunAt, &j.Attempt, &j.MaxRetries, &state, &lastErr, &j.CreatedAt)
	if err != nil {
		return j, err
	}
	j.Key = stringOrEmpty(key)
	j.State = queue.State(state)
	j.LastError = stringOrEmpty(lastErr)
	return j, nil
}

func (b *Broker) Enqueue(ctx context.Context, job queue.Job) (bool, error) {
	runAt := job.RunAt
	if runAt.IsZero() {
		runAt = time.Now()
	}
	createdAt := job.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	tag, err := b.store.pool.Exec(ctx, `
		INSERT INTO jobs (id, queue, job_key, payload, priority, run_at, attempt, max_retries, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT DO NOTHING
	`,
		job.ID,
		job.Queue,
		nullString(job.Key),
		job.Payload,
		job.Priority,
		runAt,
		job.Attempt,
		job.MaxRetries,
		string(queue.StateEnqueued),
		createdAt,
	)
	if err != nil {
		return false, fmt.Errorf("enqueue %s job: %w", job.Queue, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (b *Broker) Claim(ctx context.Context, name string, limit int, lease time.Duration) ([]queue.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := b.store.pool.Query(ctx, `
		WITH next AS (
			SELECT id FROM jobs
			WHERE queue = $1
				AND (
					(state IN ('enqueued', 'retrying') AND run_at <= now())
					OR (state = 'inflight' AND locked_until < now())
				)
			ORDER BY priority DESC, run_at, created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs SET
			state = 'inflight',
			locked_until = now() + make_interval(secs => $3),
			updated_at = now()
		FROM next
		WHERE jobs.id = next.id
		RETURNING jobs.id, jobs.queue, jobs.job_key, jobs.payload, jobs.priority, jobs.run_at,
			jobs.attempt, jobs.max_retries, jobs.state, jobs.last_error, jobs.created_at
	`, name, limit, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim %s jobs: %w", name, err)
	}
	return pgx.CollectRows(rows, scanJob)
}

func (b *Broker) Complete(ctx context.Context, job queue.Job) error {
	_, err := b.store.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, job.ID)
	return err
}

func (b *Broker) Retry(ctx context.Context, job queue.Job, runAt time.Time, attempt int, lastErr string) error {
	_, err := b.store.pool.Exec(ctx, `
		UPDATE jobs SET state = 'retrying', run_at = $2, attempt = $3, last_error = $4,
			locked_until = NULL, updated_at = now()
		WHERE id = $1
	`, job.ID, runAt, attempt, nullString(lastErr))
	return err
}

// DeadLetter parks the job. Its key is released by the partial unique
// index, so a fresh job with the same key can be enqueued.
func (b *Broker) DeadLetter(ctx context.Context, job queue.Job, lastErr string) error {
	_, err := b.store.pool.Exec(ctx, `
		UPDATE jobs SET state = 'dead', attempt = $2, last_error = $3,
			locked_until = NULL, updated_at = now()
		WHERE id = $1
	`, job.ID, job.Attempt, nullString(lastErr))
	return err
}

func (b *Broker) Stats(ctx context.Context, name string) (queue.Stats, error) {
	st := queue.Stats{Queue: name}
	err := b.store.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE state IN ('enqueued', 'retrying') AND run_at <= now()),
			count(*) FILTER (WHERE state IN ('enqueued', 'retrying') AND run_at > now()),
			count(*) FILTER (WHERE state = 'inflight'),
			count(*) FILTER (WHERE state = 'dead')
		FROM jobs WHERE queue = $1
	`, name).Scan(&st.Ready, &st.Delayed, &st.InFlight, &st.Dead)
	if err != nil {
		return st, fmt.Errorf("stats %s: %w", name, err)
	}
	return st, nil
}

func (b *Broker) DeadLetters(ctx context.Context, name string, limit int) ([]queue.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := b.store.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE queue = $1 AND state = 'dead'
		ORDER BY created_at
		LIMIT $2
	`, name, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanJob)
}
