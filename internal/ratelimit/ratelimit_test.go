package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/trustmark/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledLimiterAllows(t *testing.T) {
	limiter, err := NewVerifyLimiter(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())
	assert.Zero(t, limiter.Limit())

	res, err := limiter.AllowClient(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNewVerifyLimiterValidatesConfig(t *testing.T) {
	_, err := NewVerifyLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true}})
	assert.Error(t, err)

	_, err = NewVerifyLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true, RedisAddr: "localhost:6379"}})
	assert.Error(t, err)

	limiter, err := NewVerifyLimiter(config.Config{RateLimit: config.RateLimitConfig{
		Enabled:     true,
		RedisAddr:   "localhost:6379",
		VerifyRate:  5,
		VerifyBurst: 10,
	}})
	require.NoError(t, err)
	assert.True(t, limiter.Enabled())
	assert.Equal(t, 10, limiter.Limit())
	require.NoError(t, limiter.client.Close())
}

func TestClientBucketKeyHashesAddress(t *testing.T) {
	key := clientBucketKey("203.0.113.9")
	assert.True(t, strings.HasPrefix(key, keyVerifyClientPrefix))
	assert.NotContains(t, key, "203.0.113.9")
	assert.Len(t, key, len(keyVerifyClientPrefix)+32)
	assert.Equal(t, key, clientBucketKey(" 203.0.113.9 "))
	assert.NotEqual(t, key, clientBucketKey("203.0.113.10"))
	assert.Equal(t, clientBucketKey(""), clientBucketKey("unknown"))
}

func TestTokenBucketRejectsBadArguments(t *testing.T) {
	var bucket *TokenBucket
	res, err := bucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
	assert.False(t, res.Allowed)
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, defaultBucketTTL(0, 5))
	assert.Equal(t, 4*time.Second, defaultBucketTTL(5, 10))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
}

func TestCastHelpers(t *testing.T) {
	assert.Equal(t, int64(3), castToInt(int64(3)))
	assert.Equal(t, int64(2), castToInt(2.9))
	assert.Equal(t, int64(0), castToInt("x"))
	assert.Equal(t, 1.5, castToFloat("1.5"))
	assert.Equal(t, 4.0, castToFloat(int64(4)))
	assert.Equal(t, 0.0, castToFloat(nil))
}
