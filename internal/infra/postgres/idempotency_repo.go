// Package postgres provides PostgreSQL database connectivity and repositories.
// This file implements a durable idempotency store for exactly-once task
// handling; it backs internal/worker/idempotency when deduplication must
// survive a Redis flush.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nimbusgate/core/internal/worker/idempotency"
)

// pgUniqueViolationCode is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolationCode = "23505"

// ErrKeyAlreadyExists indicates a concurrent insert won the race for a key.
var ErrKeyAlreadyExists = errors.New("idempotency key already exists")

// IdempotencyRepo implements idempotency.Store for PostgreSQL.
type IdempotencyRepo struct {
	pool Pooler
}

// NewIdempotencyRepo creates a new IdempotencyRepo instance.
func NewIdempotencyRepo(pool Pooler) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Check atomically claims a key. Returns true when this is the first time
// the key was seen; false for a duplicate that hasn't expired yet.
func (r *IdempotencyRepo) Check(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	const op = "idempotencyRepo.Check"

	pool := r.pool.Pool()
	if pool == nil {
		return false, fmt.Errorf("%s: database not connected", op)
	}

	now := time.Now().UTC()
	const query = `
		INSERT INTO idempotency_keys (key, created_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
			SET created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
			WHERE idempotency_keys.expires_at <= $2`

	tag, err := pool.Exec(ctx, query, key, now, now.Add(ttl))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	// One row affected: either a fresh insert or an expired key reclaimed.
	return tag.RowsAffected() == 1, nil
}

// StoreResult attaches a cached result to an already-claimed key.
func (r *IdempotencyRepo) StoreResult(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	const op = "idempotencyRepo.StoreResult"

	pool := r.pool.Pool()
	if pool == nil {
		return fmt.Errorf("%s: database not connected", op)
	}

	now := time.Now().UTC()
	const query = `
		UPDATE idempotency_keys
		SET result = $2, expires_at = $3
		WHERE key = $1`

	if _, err := pool.Exec(ctx, query, key, result, now.Add(ttl)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetResult retrieves a cached result for key, if one was stored and has
// not expired.
func (r *IdempotencyRepo) GetResult(ctx context.Context, key string) ([]byte, bool, error) {
	const op = "idempotencyRepo.GetResult"

	pool := r.pool.Pool()
	if pool == nil {
		return nil, false, fmt.Errorf("%s: database not connected", op)
	}

	const query = `
		SELECT result FROM idempotency_keys
		WHERE key = $1 AND result IS NOT NULL AND expires_at > $2`

	var result []byte
	err := pool.QueryRow(ctx, query, key, time.Now().UTC()).Scan(&result)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return result, true, nil
}

// DeleteExpired removes all expired idempotency records.
// Returns the number of deleted records.
func (r *IdempotencyRepo) DeleteExpired(ctx context.Context) (int64, error) {
	const op = "idempotencyRepo.DeleteExpired"

	pool := r.pool.Pool()
	if pool == nil {
		return 0, fmt.Errorf("%s: database not connected", op)
	}

	tag, err := pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

// Ensure IdempotencyRepo implements idempotency.Store at compile time.
var _ idempotency.Store = (*IdempotencyRepo)(nil)
