package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/voter-support-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest map[string]int
	err := repo.Get(context.Background(), "chat_support:stats:summary", &dest)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", 1, 0))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "chat_support:*"))
}

func TestCacheRepositoryAgainstServer(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	repo := NewCacheRepository(client, nil)
	ctx := context.Background()
	prefix := "cache-test-" + time.Now().Format("150405.000000") + ":"

	for i := 0; i < cacheDeleteBatch+5; i++ {
		require.NoError(t, repo.Set(ctx, fmt.Sprintf("%s%d", prefix, i), map[string]int{"total": i}, time.Minute))
	}
	var got map[string]int
	require.NoError(t, repo.Get(ctx, prefix+"7", &got))
	assert.Equal(t, 7, got["total"])

	require.NoError(t, client.Set(ctx, prefix+"broken", "{not json", time.Minute).Err())
	assert.ErrorIs(t, repo.Get(ctx, prefix+"broken", &got), appErrors.ErrCacheMiss)
	assert.Zero(t, client.Exists(ctx, prefix+"broken").Val())

	require.NoError(t, repo.DeleteByPattern(ctx, prefix+"*"))
	assert.ErrorIs(t, repo.Get(ctx, prefix+"7", &got), appErrors.ErrCacheMiss)
}
