package postgres

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"nftsync/internal/kv"
)

// KV is a kv.Store on the kv_entries and kv_lists tables.
type KV struct {
	store *Store
}

var _ kv.Store = (*KV)(nil)

func (s *Store) KV() *KV { return &KV{store: s} }

func expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}

// AcquireLock inserts the lock row, or takes over one that expired.
func (k *KV) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tag, err := k.store.pool.Exec(ctx, `
		INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, '1', $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
		WHERE kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= now()
	`, "lock:"+key, expiry(ttl))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (k *KV) ReleaseLock(ctx context.Context, key string) error {
	_, err := k.store.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, "lock:"+key)
	return err
}

func (k *KV) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := k.store.pool.QueryRow(ctx, `
		SELECT value FROM kv_entries
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())
	`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", kv.ErrNotFound
	}
	return value, err
}

func (k *KV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := k.store.pool.Exec(ctx, `
		INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, key, value, expiry(ttl))
	return err
}

func (k *KV) Delete(ctx context.Context, key string) error {
	_, err := k.store.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key)
	return err
}

func (k *KV) PushPending(ctx context.Context, list string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	_, err := k.store.pool.Exec(ctx, `
		INSERT INTO kv_lists (list, value) SELECT $1, unnest($2::text[])
	`, list, values)
	return err
}

func (k *KV) PopPending(ctx context.Context, list string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := k.store.pool.Query(ctx, `
		DELETE FROM kv_lists WHERE id IN (
			SELECT id FROM kv_lists WHERE list = $1 ORDER BY id LIMIT $2 FOR UPDATE SKIP LOCKED
		)
		RETURNING id, value
	`, list, limit)
	if err != nil {
		return nil, err
	}
	type entry struct {
		id    int64
		value string
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entry, error) {
		var e entry
		err := row.Scan(&e.id, &e.value)
		return e, err
	})
	if err != nil {
		return nil, err
	}
	// RETURNING does not keep the subquery order.
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out, nil
}
