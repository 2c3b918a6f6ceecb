package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// RateLimitRepository keeps the last accepted submission time per submitter key in PostgreSQL.
type RateLimitRepository struct {
	db *sqlx.DB
}

// NewRateLimitRepository constructs the repository.
func NewRateLimitRepository(db *sqlx.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Acquire records now for key unless the stored timestamp is younger than cooldown.
// The upsert is a single statement, so concurrent attempts for one key cannot both succeed.
// When rejected, last holds the stored timestamp.
func (r *RateLimitRepository) Acquire(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, time.Time, error) {
	ok, last, err := r.tryAcquire(ctx, key, now, cooldown)
	if errors.Is(err, errSlotReleased) {
		// The blocking row was released between the upsert and the lookup.
		ok, last, err = r.tryAcquire(ctx, key, now, cooldown)
	}
	if errors.Is(err, errSlotReleased) {
		return false, time.Time{}, fmt.Errorf("load rate limit slot: %w", sql.ErrNoRows)
	}
	return ok, last, err
}

var errSlotReleased = errors.New("rate limit slot released concurrently")

func (r *RateLimitRepository) tryAcquire(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, time.Time, error) {
	const upsert = `INSERT INTO support_rate_limits (submitter_key, last_submitted_at) VALUES ($1, $2)
ON CONFLICT (submitter_key) DO UPDATE SET last_submitted_at = EXCLUDED.last_submitted_at
WHERE support_rate_limits.last_submitted_at <= $3
RETURNING last_submitted_at`
	var recorded time.Time
	err := r.db.GetContext(ctx, &recorded, upsert, key, now, now.Add(-cooldown))
	if err == nil {
		return true, recorded, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, time.Time{}, fmt.Errorf("acquire rate limit slot: %w", err)
	}

	var last time.Time
	err = r.db.GetContext(ctx, &last, `SELECT last_submitted_at FROM support_rate_limits WHERE submitter_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, time.Time{}, errSlotReleased
	}
	if err != nil {
		return false, time.Time{}, fmt.Errorf("load rate limit slot: %w", err)
	}
	return false, last, nil
}

// Release removes the slot for key if it still carries recordedAt.
func (r *RateLimitRepository) Release(ctx context.Context, key string, recordedAt time.Time) error {
	const query = `DELETE FROM support_rate_limits WHERE submitter_key = $1 AND last_submitted_at = $2`
	if _, err := r.db.ExecContext(ctx, query, key, recordedAt); err != nil {
		return fmt.Errorf("release rate limit slot: %w", err)
	}
	return nil
}
