package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRateLimitRepoMock(t *testing.T) (*RateLimitRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewRateLimitRepository(sqlxDB), mock, func() {
		sqlxDB.Close()
	}
}

func TestRateLimitRepositoryAcquireGranted(t *testing.T) {
	repo, mock, cleanup := newRateLimitRepoMock(t)
	defer cleanup()

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO support_rate_limits").
		WithArgs("key-1", now, now.Add(-5*time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"last_submitted_at"}).AddRow(now))

	ok, recorded, err := repo.Acquire(context.Background(), "key-1", now, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, now, recorded)
}

func TestRateLimitRepositoryAcquireRejected(t *testing.T) {
	repo, mock, cleanup := newRateLimitRepoMock(t)
	defer cleanup()

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	last := now.Add(-2 * time.Minute)
	mock.ExpectQuery("INSERT INTO support_rate_limits").
		WithArgs("key-1", now, now.Add(-5*time.Minute)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT last_submitted_at FROM support_rate_limits").
		WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows([]string{"last_submitted_at"}).AddRow(last))

	ok, got, err := repo.Acquire(context.Background(), "key-1", now, 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, last, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitRepositoryAcquireRetriesAfterConcurrentRelease(t *testing.T) {
	repo, mock, cleanup := newRateLimitRepoMock(t)
	defer cleanup()

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO support_rate_limits").
		WithArgs("key-1", now, now.Add(-5*time.Minute)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT last_submitted_at FROM support_rate_limits").
		WithArgs("key-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO support_rate_limits").
		WithArgs("key-1", now, now.Add(-5*time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"last_submitted_at"}).AddRow(now))

	ok, recorded, err := repo.Acquire(context.Background(), "key-1", now, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, now, recorded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimitRepositoryRelease(t *testing.T) {
	repo, mock, cleanup := newRateLimitRepoMock(t)
	defer cleanup()

	now := time.Now().UTC()
	mock.ExpectExec("DELETE FROM support_rate_limits").
		WithArgs("key-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Release(context.Background(), "key-1", now))
}

func TestRedisRateLimitRepositoryWithoutClient(t *testing.T) {
	repo := NewRedisRateLimitRepository(nil)
	_, _, err := repo.Acquire(context.Background(), "key", time.Now(), time.Minute)
	assert.Error(t, err)
	assert.NoError(t, repo.Release(context.Background(), "key", time.Now()))
}

func TestRedisRateLimitRepositoryAgainstServer(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	repo := NewRedisRateLimitRepository(client)
	ctx := context.Background()
	key := "test-" + time.Now().Format("150405.000000")

	now := time.Now().UTC()
	ok, recorded, err := repo.Acquire(ctx, key, now, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = repo.Acquire(ctx, key, now.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Release(ctx, key, recorded))
	ok, _, err = repo.Acquire(ctx, key, now.Add(31*time.Second), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
