package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigFromEnv(t *testing.T) {
	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Address())
	assert.Equal(t, 24*time.Hour, cfg.SeenTTL)
	assert.Equal(t, "pio:relay:seen:", cfg.KeyPrefix)

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("RELAY_DEDUPE_TTL", "3600")
	cfg, err = NewConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", cfg.Address())
	assert.Equal(t, time.Hour, cfg.SeenTTL)
}

func TestNewConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv("RELAY_DEDUPE_TTL", "forever")
	_, err := NewConfigFromEnv()
	assert.ErrorContains(t, err, "RELAY_DEDUPE_TTL")
}

func TestCacheError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewCacheError("failed to mark message id", true).WithError(cause)

	assert.Equal(t, "failed to mark message id: connection refused", err.Error())
	assert.True(t, err.IsRetryable())
	assert.ErrorIs(t, err, cause)
	assert.False(t, ErrEmptyID.IsRetryable())
}

func TestRedisSeenSet_RejectsEmptyID(t *testing.T) {
	set := &RedisSeenSet{config: &Config{KeyPrefix: "p:"}}
	_, err := set.Seen(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyID)
	assert.ErrorIs(t, set.Mark(context.Background(), ""), ErrEmptyID)
	assert.Equal(t, "p:abc", set.key("abc"))
}

func TestNewRedisSeenSet_NilConfig(t *testing.T) {
	_, err := NewRedisSeenSet(nil)
	assert.Error(t, err)
}
