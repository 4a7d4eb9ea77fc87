// internal/orchestrator/cache.go
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"finqa-retrieval/internal/common/logger"
	"finqa-retrieval/internal/models"
)

const cacheKeyPrefix = "retrieval:response:"

// ResultCache memoizes full responses for identical (query, tickers) pairs.
// Implementations never fail the request: errors and misses look the same.
type ResultCache interface {
	Get(ctx context.Context, key string) (*models.RetrievalResponse, bool)
	Set(ctx context.Context, key string, resp *models.RetrievalResponse)
}

// CacheKey is insensitive to ticker order, ticker case, and query
// whitespace/case.
func CacheKey(query string, tickers []string) string {
	sorted := make([]string, 0, len(tickers))
	for _, ticker := range tickers {
		cleaned := strings.ToUpper(strings.TrimSpace(ticker))
		if cleaned != "" {
			sorted = append(sorted, cleaned)
		}
	}
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query)) + "\x1f" + strings.Join(sorted, ",")))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisResultCache(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisResultCache {
	return &RedisResultCache{
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "result-cache"}),
	}
}

func (c *RedisResultCache) Get(ctx context.Context, key string) (*models.RetrievalResponse, bool) {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", map[string]interface{}{"error": err.Error()})
		}
		return nil, false
	}

	var resp models.RetrievalResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		c.logger.Warn("dropping corrupt cache entry", map[string]interface{}{"error": err.Error()})
		c.client.Del(ctx, key)
		return nil, false
	}
	return &resp, true
}

func (c *RedisResultCache) Set(ctx context.Context, key string, resp *models.RetrievalResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("cache encode failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{"error": err.Error()})
	}
}
