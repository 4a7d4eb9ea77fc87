// internal/orchestrator/cache_test.go
package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func newTestCache(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisResultCache) {
	mr, client := setupRedis(t)
	return mr, NewRedisResultCache(client, ttl, logger.NewTestLogger(t))
}

func TestCacheKey_TickerOrderAndCaseInsensitive(t *testing.T) {
	a := CacheKey("What was revenue?", []string{"AAPL", "MSFT"})
	b := CacheKey("What was revenue?", []string{"msft", " aapl "})

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "retrieval:response:"))
}

func TestCacheKey_NormalizesQueryCase(t *testing.T) {
	a := CacheKey("  What was revenue?  ", []string{"AAPL"})
	b := CacheKey("what was revenue?", []string{"AAPL"})

	assert.Equal(t, a, b)
}

func TestCacheKey_DistinguishesQueryAndTickers(t *testing.T) {
	base := CacheKey("what was revenue?", []string{"AAPL"})

	assert.NotEqual(t, base, CacheKey("what was net income?", []string{"AAPL"}))
	assert.NotEqual(t, base, CacheKey("what was revenue?", []string{"MSFT"}))
	assert.NotEqual(t, base, CacheKey("what was revenue?", nil))
}

func TestRedisResultCache_RoundTrip(t *testing.T) {
	_, cache := newTestCache(t, time.Minute)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	stored := &models.RetrievalResponse{
		RequestID:         "req-1",
		Query:             "what was AAPL revenue?",
		Intent:            models.IntentMetricLookup,
		Complexity:        models.ComplexitySimple,
		OverallConfidence: 0.91,
		Decision:          models.GroundedDecision{ShouldAnswer: true, Confidence: 0.91, Reason: "evidence sufficient"},
		ElapsedMs:         42,
		CachedAt:          &now,
	}

	key := CacheKey(stored.Query, []string{"AAPL"})
	cache.Set(ctx, key, stored)

	got, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, stored.Query, got.Query)
	assert.Equal(t, models.IntentMetricLookup, got.Intent)
	assert.Equal(t, 0.91, got.OverallConfidence)
	assert.True(t, got.Decision.ShouldAnswer)
	require.NotNil(t, got.CachedAt)
	assert.True(t, now.Equal(*got.CachedAt))
}

func TestRedisResultCache_MissingKey(t *testing.T) {
	_, cache := newTestCache(t, time.Minute)

	_, ok := cache.Get(context.Background(), "retrieval:response:absent")
	assert.False(t, ok)
}

func TestRedisResultCache_EntryExpires(t *testing.T) {
	mr, cache := newTestCache(t, time.Second)
	ctx := context.Background()

	key := CacheKey("expiring", nil)
	cache.Set(ctx, key, &models.RetrievalResponse{Query: "expiring"})

	_, ok := cache.Get(ctx, key)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok = cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestRedisResultCache_CorruptEntryEvicted(t *testing.T) {
	mr, cache := newTestCache(t, time.Minute)
	ctx := context.Background()

	key := CacheKey("corrupt", nil)
	require.NoError(t, mr.Set(key, "{not json"))

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	// The bad entry is dropped so the next write is not blocked behind it.
	assert.False(t, mr.Exists(key))
}
