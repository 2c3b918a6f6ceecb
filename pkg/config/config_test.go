package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 5*time.Minute, cfg.ChatSupport.Cooldown)
	assert.Equal(t, RateLimitKeySchoolID, cfg.ChatSupport.RateLimitKey)
	assert.Equal(t, RateLimitBackendPostgres, cfg.ChatSupport.RateLimitBackend)
	assert.Equal(t, 500, cfg.ChatSupport.BulkMaxItems)
	assert.False(t, cfg.ChatSupport.StrictTransitions)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHAT_SUPPORT_COOLDOWN", "90s")
	t.Setenv("CHAT_SUPPORT_RATE_LIMIT_KEY", "EMAIL")
	t.Setenv("CHAT_SUPPORT_RATE_LIMIT_BACKEND", "carrier-pigeon")
	t.Setenv("CHAT_SUPPORT_STRICT_TRANSITIONS", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.ChatSupport.Cooldown)
	assert.Equal(t, RateLimitKeyEmail, cfg.ChatSupport.RateLimitKey)
	assert.Equal(t, RateLimitBackendPostgres, cfg.ChatSupport.RateLimitBackend)
	assert.True(t, cfg.ChatSupport.StrictTransitions)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("-5s", time.Minute))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}
